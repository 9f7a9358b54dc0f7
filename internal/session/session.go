// Package session holds per-conversation state: identity, robot location,
// environment readings and a bounded conversation history. Sessions live for
// the lifetime of the process.
package session

import (
	"maps"
	"slices"
	"time"
)

// Role identifies who produced a turn.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation. Turns are appended, never edited.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the state of one conversation. Optional fields are nil until
// set; callers decide how to present missing values.
type Session struct {
	ID              string         `json:"session_id"`
	StudentID       *string        `json:"student_id"`
	StudentName     *string        `json:"student_name"`
	CurrentLocation *string        `json:"current_location"`
	Environment     map[string]any `json:"environment_info"`
	History         []Turn         `json:"conversation_history"`
	CreatedAt       time.Time      `json:"created_at"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// Clone returns a deep copy that shares no mutable state with s.
// Environment values are copied shallowly; they are expected to be scalars.
func (s *Session) Clone() Session {
	cp := *s
	cp.StudentID = clonePtr(s.StudentID)
	cp.StudentName = clonePtr(s.StudentName)
	cp.CurrentLocation = clonePtr(s.CurrentLocation)
	if s.Environment != nil {
		cp.Environment = maps.Clone(s.Environment)
	} else {
		cp.Environment = map[string]any{}
	}
	cp.History = slices.Clone(s.History)
	if cp.History == nil {
		cp.History = []Turn{}
	}
	return cp
}

// RecentTurns returns up to n of the most recent turns, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// isBlank reports whether the session carries nothing beyond its key.
func (s *Session) isBlank() bool {
	return s.StudentID == nil && s.StudentName == nil && s.CurrentLocation == nil &&
		len(s.Environment) == 0 && len(s.History) == 0
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
