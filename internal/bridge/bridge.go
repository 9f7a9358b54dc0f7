package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/session"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Bridge{})
}

// Service names registered during Provision.
const (
	HandlerService = "bridge.handler"
	RobotsService  = "bridge.robots"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxRobots         = 10
	pairReadTimeout          = 10 * time.Second
	writeTimeout             = 5 * time.Second
	maxMissedHeartbeats      = 3
)

// Config holds the YAML configuration of the bridge module.
type Config struct {
	PairingTokens     []string      `yaml:"pairing_tokens"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxRobots         int           `yaml:"max_robots"`
}

func (c *Config) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.MaxRobots <= 0 {
		c.MaxRobots = defaultMaxRobots
	}
}

// Conversation is the part of the brain a robot talks to.
type Conversation interface {
	ProcessSpeech(ctx context.Context, in brain.SpeechInput) (brain.SpeechResult, error)
	UpdateContext(u brain.ContextUpdate) (session.Session, error)
}

// Bridge accepts robot WebSocket connections and relays their utterances
// and context updates to the brain.
type Bridge struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger
	store  *RobotStore
	tokens map[string]struct{}
	brain  Conversation

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (b *Bridge) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "bridge.websocket",
		New: func() core.Module { return &Bridge{} },
	}
}

// Configure implements core.Configurable.
func (b *Bridge) Configure(node *yaml.Node) error {
	if err := node.Decode(&b.config); err != nil {
		return err
	}
	b.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (b *Bridge) Provision(ctx *core.AppContext) error {
	b.config.defaults()
	b.appCtx = ctx
	b.logger = ctx.Logger
	b.store = NewRobotStore()

	b.tokens = make(map[string]struct{}, len(b.config.PairingTokens))
	for _, t := range b.config.PairingTokens {
		if t != "" {
			b.tokens[t] = struct{}{}
		}
	}

	ctx.RegisterService(RobotsService, b.store)
	ctx.RegisterService(HandlerService, http.HandlerFunc(b.handleWebSocket))
	return nil
}

// Validate implements core.Validator.
func (b *Bridge) Validate() error {
	if len(b.tokens) == 0 {
		return errors.New("bridge: at least one pairing_token is required")
	}
	return nil
}

// Start implements core.Starter. The brain must be registered by then.
func (b *Bridge) Start() error {
	if b.brain == nil {
		conv, ok := core.ServiceAs[Conversation](b.appCtx, brain.ServiceName)
		if !ok {
			return errors.New("bridge: brain service not registered")
		}
		b.brain = conv
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.heartbeatLoop(ctx)
	}()

	b.logger.Info("robot bridge started",
		"heartbeat_interval", b.config.HeartbeatInterval,
		"max_robots", b.config.MaxRobots,
	)
	return nil
}

// Stop implements core.Stopper. It closes every robot connection.
func (b *Bridge) Stop(_ context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.store.Range(func(r *Robot) bool {
		r.mu.Lock()
		r.State = StateDisconnected
		r.mu.Unlock()
		if r.conn != nil {
			_ = r.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		return true
	})

	b.logger.Info("robot bridge stopped")
	return nil
}

// Robots returns the connected robot registry.
func (b *Bridge) Robots() *RobotStore {
	return b.store
}

// handleWebSocket runs one robot connection: pair, then serve requests
// until the robot goes away.
func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if b.brain == nil {
		http.Error(w, "bridge not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	now := time.Now()
	robot := &Robot{
		State:       StateConnected,
		ConnectedAt: now,
		LastSeenAt:  now,
		conn:        conn,
	}

	if err := b.pair(r.Context(), robot); err != nil {
		b.logger.Warn("pairing failed", "error", err)
		return
	}
	b.logger.Info("robot paired",
		"robot_id", robot.ID,
		"name", robot.Name,
		"platform", robot.Platform,
	)

	// In-flight turns share the connection lifetime: a robot that drops
	// mid-turn cancels its turns, which roll back.
	connCtx, cancel := context.WithCancel(r.Context())
	var turns sync.WaitGroup
	b.readLoop(connCtx, robot, &turns)
	cancel()
	turns.Wait()

	robot.mu.Lock()
	robot.State = StateDisconnected
	robot.mu.Unlock()
	b.store.Remove(robot.ID)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	b.logger.Info("robot disconnected", "robot_id", robot.ID)
}

func (b *Bridge) pair(ctx context.Context, robot *Robot) error {
	pairCtx, cancel := context.WithTimeout(ctx, pairReadTimeout)
	defer cancel()

	_, data, err := robot.conn.Read(pairCtx)
	if err != nil {
		return fmt.Errorf("read pair_request: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.reply(ctx, robot, MsgError, "", ErrorPayload{Message: "invalid message format"})
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != MsgPairRequest {
		b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: "expected pair_request"})
		return fmt.Errorf("unexpected message type: %s", env.Type)
	}

	var req PairRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: "invalid pair_request payload"})
		return fmt.Errorf("unmarshal pair_request: %w", err)
	}

	if _, ok := b.tokens[req.Token]; !ok {
		b.reply(ctx, robot, MsgPairResponse, env.ID, PairResponse{Reason: "invalid pairing token"})
		return ErrInvalidToken
	}

	robot.ID = newRobotID()
	robot.Name = req.RobotName
	robot.Platform = req.Platform
	robot.State = StatePaired

	if !b.store.AddIfUnder(robot, b.config.MaxRobots) {
		b.reply(ctx, robot, MsgPairResponse, env.ID, PairResponse{Reason: "maximum number of robots reached"})
		return ErrMaxRobots
	}

	b.reply(ctx, robot, MsgPairResponse, env.ID, PairResponse{Accepted: true, RobotID: robot.ID})
	return nil
}

func (b *Bridge) readLoop(ctx context.Context, robot *Robot, turns *sync.WaitGroup) {
	queue := newTurnQueue()
	for {
		_, data, err := robot.conn.Read(ctx)
		if err != nil {
			return
		}
		robot.touch(time.Now())

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			b.logger.Warn("invalid message from robot", "robot_id", robot.ID, "error", err)
			b.reply(ctx, robot, MsgError, "", ErrorPayload{Message: "invalid message format"})
			continue
		}

		switch env.Type {
		case MsgHeartbeat:
			var hb HeartbeatPayload
			if len(env.Payload) > 0 && json.Unmarshal(env.Payload, &hb) == nil && hb.BatteryPct != nil {
				robot.mu.Lock()
				robot.BatteryPct = hb.BatteryPct
				robot.mu.Unlock()
			}
			b.reply(ctx, robot, MsgHeartbeatAck, env.ID, nil)

		case MsgSpeechInput:
			var in brain.SpeechInput
			if err := json.Unmarshal(env.Payload, &in); err != nil {
				b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: "invalid speech_input payload"})
				continue
			}
			// Turns run off the read loop so heartbeats keep flowing during
			// a slow generation. One worker per session keeps arrival order.
			if queue.push(queuedTurn{id: env.ID, in: in}) {
				turns.Add(1)
				go func(session string) {
					defer turns.Done()
					for {
						t, ok := queue.next(session)
						if !ok {
							return
						}
						b.speech(ctx, robot, t.id, t.in)
					}
				}(in.SessionID)
			}

		case MsgContextUpdate:
			var u brain.ContextUpdate
			if err := json.Unmarshal(env.Payload, &u); err != nil {
				b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: "invalid context_update payload"})
				continue
			}
			if _, err := b.brain.UpdateContext(u); err != nil {
				b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: err.Error()})
				continue
			}
			b.reply(ctx, robot, MsgContextAck, env.ID, ContextAck{Status: "success", SessionID: u.SessionID})

		default:
			b.logger.Warn("unexpected message type from robot",
				"robot_id", robot.ID,
				"type", env.Type,
			)
			b.reply(ctx, robot, MsgError, env.ID, ErrorPayload{Message: fmt.Sprintf("unsupported message type %q", env.Type)})
		}
	}
}

func (b *Bridge) speech(ctx context.Context, robot *Robot, id string, in brain.SpeechInput) {
	res, err := b.brain.ProcessSpeech(ctx, in)
	switch {
	case err == nil:
		b.reply(ctx, robot, MsgSpeechResult, id, res)
	case errors.Is(err, brain.ErrValidation):
		b.reply(ctx, robot, MsgError, id, ErrorPayload{Message: err.Error()})
	case ctx.Err() != nil:
		// Connection gone; the turn was rolled back.
	default:
		b.logger.Error("speech turn failed", "robot_id", robot.ID, "session_id", in.SessionID, "error", err)
		b.reply(ctx, robot, MsgError, id, ErrorPayload{Message: "internal error"})
	}
}

func (b *Bridge) reply(ctx context.Context, robot *Robot, typ MessageType, id string, payload any) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := robot.send(wctx, typ, id, payload); err != nil {
		b.logger.Debug("reply to robot failed", "type", typ, "error", err)
	}
}

func (b *Bridge) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.checkHeartbeats(now)
		}
	}
}

// checkHeartbeats closes robots silent for maxMissedHeartbeats intervals.
// The connection handler removes them once its read fails.
func (b *Bridge) checkHeartbeats(now time.Time) int {
	threshold := b.config.HeartbeatInterval * maxMissedHeartbeats

	var stale []*Robot
	b.store.Range(func(r *Robot) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.State == StatePaired && now.Sub(r.LastSeenAt) > threshold {
			r.State = StateDisconnected
			stale = append(stale, r)
		}
		return true
	})

	// Close outside the robot lock: the close handshake needs the read loop.
	for _, r := range stale {
		b.logger.Warn("robot heartbeat timeout, disconnecting", "robot_id", r.ID)
		if r.conn != nil {
			_ = r.conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
		}
	}
	return len(stale)
}
