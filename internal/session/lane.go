package session

import (
	"context"
	"sync"
)

// Lanes serializes whole conversational turns per session. A turn may hold
// its lane across slow upstream calls, so lanes are kept apart from the
// store's own locks: readers of a session never wait on an in-flight turn.
//
// A global mutex protects the lane map and is held only to look up, create
// or drop a lane. Lanes are removed once nobody holds or waits on them.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	// slot holds a token while a turn owns the lane.
	slot chan struct{}
	refs int
}

// NewLanes creates a ready-to-use Lanes.
func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

// Acquire takes the lane for id, waiting while another turn holds it or
// until ctx ends. On success the caller must call Release with the same id.
func (l *Lanes) Acquire(ctx context.Context, id string) error {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[id] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Wait outside the global mutex so other sessions are not blocked.
	select {
	case ln.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(id, ln)
		return ctx.Err()
	}
}

func (l *Lanes) drop(id string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 && l.lanes[id] == ln {
		delete(l.lanes, id)
	}
}

// Release unlocks the lane for id.
func (l *Lanes) Release(id string) {
	l.mu.Lock()
	ln, ok := l.lanes[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	l.drop(id, ln)
	<-ln.slot
}

// Len returns the number of lanes currently held or waited on.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
