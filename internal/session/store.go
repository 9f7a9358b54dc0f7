package session

import (
	"hash/fnv"
	"slices"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of turns a session retains.
const DefaultHistoryLimit = 10

const shardCount = 16

// Store is a concurrency-safe, in-memory session store.
//
// The key space is split across shards, each guarded by its own RWMutex that
// is held only to find or insert an entry. Every session additionally owns a
// mutex serializing its mutations, so writes to different sessions never
// wait on each other and writes to the same session never interleave.
type Store struct {
	shards       [shardCount]shard
	historyLimit int

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	sess    Session
	removed bool
}

// Option configures a Store.
type Option func(*Store)

// WithHistoryLimit overrides DefaultHistoryLimit. Non-positive values are ignored.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*entry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HistoryLimit returns the per-session turn cap.
func (s *Store) HistoryLimit() int {
	return s.historyLimit
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *Store) newSession(id string) Session {
	now := s.now()
	return Session{
		ID:          id,
		Environment: map[string]any{},
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Create inserts a fresh session, discarding any existing state for id.
func (s *Store) Create(id string) Session {
	sh := s.shardFor(id)
	fresh := &entry{sess: s.newSession(id)}

	sh.mu.Lock()
	old := sh.entries[id]
	sh.entries[id] = fresh
	sh.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.removed = true
		old.mu.Unlock()
	}
	return fresh.sess.Clone()
}

// Get returns a copy of the session. It never creates one.
func (s *Store) Get(id string) (Session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Session{}, false
	}
	return e.sess.Clone(), true
}

// Update runs fn against the live session while holding its lock, creating
// the session first if absent, then refreshes LastUpdated. fn must not
// retain the pointer. Update returns a copy of the resulting state.
func (s *Store) Update(id string, fn func(*Session)) Session {
	for {
		e := s.getOrCreate(id)
		e.mu.Lock()
		if e.removed {
			// Lost a race with Delete or Create; start over on the live entry.
			e.mu.Unlock()
			continue
		}
		fn(&e.sess)
		e.sess.LastUpdated = s.now()
		out := e.sess.Clone()
		e.mu.Unlock()
		return out
	}
}

func (s *Store) getOrCreate(id string) *entry {
	sh := s.shardFor(id)

	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[id]; ok {
		return e
	}
	e = &entry{sess: s.newSession(id)}
	sh.entries[id] = e
	return e
}

// UpsertIdentity sets the student identity.
func (s *Store) UpsertIdentity(id, studentID, studentName string) Session {
	return s.Update(id, func(sess *Session) {
		sess.StudentID = &studentID
		sess.StudentName = &studentName
	})
}

// UpsertLocation sets the current location.
func (s *Store) UpsertLocation(id, location string) Session {
	return s.Update(id, func(sess *Session) {
		sess.CurrentLocation = &location
	})
}

// MergeEnvironment merges partial into the environment map. Existing keys
// not present in partial are kept.
func (s *Store) MergeEnvironment(id string, partial map[string]any) Session {
	return s.Update(id, func(sess *Session) {
		if sess.Environment == nil {
			sess.Environment = make(map[string]any, len(partial))
		}
		for k, v := range partial {
			sess.Environment[k] = v
		}
	})
}

// AppendTurn appends a turn stamped with the current time and returns it.
// Once the history exceeds the limit the oldest turns are dropped.
func (s *Store) AppendTurn(id string, role Role, content string) Turn {
	turn := Turn{Role: role, Content: content, Timestamp: s.now()}
	s.AppendTurns(id, turn)
	return turn
}

// AppendTurns appends turns in order under a single lock acquisition.
func (s *Store) AppendTurns(id string, turns ...Turn) Session {
	return s.Update(id, func(sess *Session) {
		sess.History = append(sess.History, turns...)
		if over := len(sess.History) - s.historyLimit; over > 0 {
			sess.History = slices.Delete(sess.History, 0, over)
		}
	})
}

// RevertTurn undoes an AppendTurn whose exchange was abandoned: if turn is
// still the newest entry, the history is restored to prior. When the
// session did not exist before the turn and holds nothing else, it is
// removed entirely.
func (s *Store) RevertTurn(id string, turn Turn, prior []Turn, existed bool) {
	var blank bool
	s.Update(id, func(sess *Session) {
		n := len(sess.History)
		if n == 0 || sess.History[n-1] != turn {
			// The session was deleted meanwhile; drop the copy Update just made.
			blank = sess.isBlank() && sess.CreatedAt.Equal(sess.LastUpdated)
			return
		}
		sess.History = slices.Clone(prior)
		blank = !existed && sess.isBlank()
	})
	if blank {
		s.Delete(id)
	}
}

// Delete removes the session. Deleting an absent session is a no-op.
func (s *Store) Delete(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.entries[id]
	delete(sh.entries, id)
	sh.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn with a copy of each session until fn returns false.
// Iteration order is unspecified.
func (s *Store) Range(fn func(Session) bool) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			removed, snap := e.removed, e.sess.Clone()
			e.mu.Unlock()
			if removed {
				continue
			}
			if !fn(snap) {
				return
			}
		}
	}
}

// Prune removes sessions not updated for longer than maxIdle and returns
// how many were removed.
func (s *Store) Prune(maxIdle time.Duration) int {
	now := s.now()
	pruned := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			e.mu.Lock()
			if now.Sub(e.sess.LastUpdated) > maxIdle {
				e.removed = true
				delete(sh.entries, id)
				pruned++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return pruned
}
