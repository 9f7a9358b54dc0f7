package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// RobotState represents the current connection state of a robot.
type RobotState string

// Robot connection states.
const (
	StateConnected    RobotState = "connected"
	StatePaired       RobotState = "paired"
	StateDisconnected RobotState = "disconnected"
)

// Robot is a connected robot.
type Robot struct {
	mu          sync.Mutex
	ID          string
	Name        string
	Platform    string
	State       RobotState
	ConnectedAt time.Time
	LastSeenAt  time.Time
	BatteryPct  *int
	conn        *websocket.Conn
}

// RobotInfo is a point-in-time view of a Robot.
type RobotInfo struct {
	ID          string     `json:"robot_id"`
	Name        string     `json:"name"`
	Platform    string     `json:"platform,omitempty"`
	State       RobotState `json:"state"`
	ConnectedAt time.Time  `json:"connected_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	BatteryPct  *int       `json:"battery_pct,omitempty"`
}

// Info returns a snapshot of the robot.
func (r *Robot) Info() RobotInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RobotInfo{
		ID:          r.ID,
		Name:        r.Name,
		Platform:    r.Platform,
		State:       r.State,
		ConnectedAt: r.ConnectedAt,
		LastSeenAt:  r.LastSeenAt,
		BatteryPct:  r.BatteryPct,
	}
}

func (r *Robot) touch(now time.Time) {
	r.mu.Lock()
	r.LastSeenAt = now
	r.mu.Unlock()
}

// send writes one envelope. Conn writes are safe for concurrent use, so
// replies to overlapping requests may interleave freely.
func (r *Robot) send(ctx context.Context, typ MessageType, id string, payload any) error {
	env := Envelope{Type: typ, ID: id, Timestamp: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bridge: marshal %s: %w", typ, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bridge: marshal envelope: %w", err)
	}
	if err := r.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("bridge: write to robot %s: %w", r.ID, err)
	}
	return nil
}

// RobotStore is a concurrent-safe in-memory store for connected robots.
type RobotStore struct {
	mu     sync.RWMutex
	robots map[string]*Robot
}

// NewRobotStore creates an empty RobotStore.
func NewRobotStore() *RobotStore {
	return &RobotStore{robots: make(map[string]*Robot)}
}

// AddIfUnder registers r unless the store already holds limit robots.
func (s *RobotStore) AddIfUnder(r *Robot, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.robots) >= limit {
		return false
	}
	s.robots[r.ID] = r
	return true
}

// Get returns the robot with the given ID, or false if not found.
func (s *RobotStore) Get(id string) (*Robot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.robots[id]
	return r, ok
}

// Remove deletes a robot from the store.
func (s *RobotStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.robots, id)
}

// Len returns the number of robots in the store.
func (s *RobotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.robots)
}

// Range calls fn for each robot until fn returns false.
func (s *RobotStore) Range(fn func(r *Robot) bool) {
	s.mu.RLock()
	robots := make([]*Robot, 0, len(s.robots))
	for _, r := range s.robots {
		robots = append(robots, r)
	}
	s.mu.RUnlock()

	for _, r := range robots {
		if !fn(r) {
			return
		}
	}
}

// List returns snapshots of every robot.
func (s *RobotStore) List() []RobotInfo {
	var out []RobotInfo
	s.Range(func(r *Robot) bool {
		out = append(out, r.Info())
		return true
	})
	return out
}

func newRobotID() string {
	return "robot-" + uuid.NewString()
}
