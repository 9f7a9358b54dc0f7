package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/session"
)

// ContextUpdate carries robot-side knowledge about a conversation.
type ContextUpdate struct {
	SessionID   string         `json:"session_id"`
	StudentID   string         `json:"student_id,omitempty"`
	StudentName string         `json:"student_name,omitempty"`
	Location    string         `json:"location,omitempty"`
	Environment map[string]any `json:"environment_data,omitempty"`
}

// UpdateContext creates the session if needed and applies the update.
// Identity is only set when both id and name are given.
func (b *Brain) UpdateContext(u ContextUpdate) (session.Session, error) {
	if strings.TrimSpace(u.SessionID) == "" {
		return session.Session{}, invalid("session_id", "must not be empty")
	}

	var sess session.Session
	applied := false
	if u.StudentID != "" && u.StudentName != "" {
		sess = b.sessions.UpsertIdentity(u.SessionID, u.StudentID, u.StudentName)
		applied = true
	}
	if u.Location != "" {
		sess = b.sessions.UpsertLocation(u.SessionID, u.Location)
		applied = true
	}
	if len(u.Environment) > 0 {
		sess = b.sessions.MergeEnvironment(u.SessionID, u.Environment)
		applied = true
	}
	if !applied {
		sess = b.sessions.Update(u.SessionID, func(*session.Session) {})
	}

	b.logger.Debug("context updated", "session_id", u.SessionID)
	return sess, nil
}

// Session returns a copy of a session.
func (b *Brain) Session(id string) (session.Session, error) {
	sess, ok := b.sessions.Get(id)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// ClearSession forgets a session. Any id is accepted; clearing one that
// was never created is a no-op.
func (b *Brain) ClearSession(id string) {
	b.sessions.Delete(id)
	b.logger.Info("session cleared", "session_id", id)
}

// Sessions returns copies of every live session.
func (b *Brain) Sessions() []session.Session {
	out := make([]session.Session, 0, b.sessions.Len())
	b.sessions.Range(func(s session.Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

// SessionCount returns the number of live sessions.
func (b *Brain) SessionCount() int {
	return b.sessions.Len()
}

// PruneSessions removes sessions idle longer than the configured TTL.
func (b *Brain) PruneSessions() int {
	if b.cfg.SessionIdleTTL <= 0 {
		return 0
	}
	n := b.sessions.Prune(b.cfg.SessionIdleTTL)
	if n > 0 {
		b.logger.Info("idle sessions pruned", "count", n, "ttl", b.cfg.SessionIdleTTL)
	}
	return n
}

// InsertMemory stores a record and returns it with its ID and timestamp.
func (b *Brain) InsertMemory(ctx context.Context, rec memory.Record) (memory.Record, error) {
	if strings.TrimSpace(rec.Text) == "" {
		return memory.Record{}, invalid("text", "must not be empty")
	}
	if strings.TrimSpace(rec.MemoryType) == "" {
		return memory.Record{}, invalid("memory_type", "must not be empty")
	}
	if rec.Timestamp < 0 {
		return memory.Record{}, invalid("timestamp", "must not be negative")
	}
	if b.memory == nil {
		return memory.Record{}, fmt.Errorf("%w: no memory store configured", ErrUpstreamUnavailable)
	}

	out, err := b.memory.Insert(ctx, rec)
	if err != nil {
		return memory.Record{}, fmt.Errorf("%w: insert memory: %w", ErrUpstreamUnavailable, err)
	}
	b.logger.Info("memory inserted", "id", out.ID, "memory_type", out.MemoryType, "student_id", out.StudentID)
	return out, nil
}

// SearchMemory returns records ranked by relevance to query. A zero TopK
// uses the default.
func (b *Brain) SearchMemory(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalid("query", "must not be empty")
	}
	if opts.TopK < 0 || opts.TopK > maxTopK {
		return nil, invalid("top_k", fmt.Sprintf("must be within [1, %d]", maxTopK))
	}
	if b.memory == nil {
		return nil, fmt.Errorf("%w: no memory store configured", ErrUpstreamUnavailable)
	}

	recs, err := b.memory.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: search memory: %w", ErrUpstreamUnavailable, err)
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return recs, nil
}
