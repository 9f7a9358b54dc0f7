package bridge

import (
	"sync"

	"github.com/flemzord/robobrain/internal/brain"
)

type queuedTurn struct {
	id string
	in brain.SpeechInput
}

// turnQueue keeps the utterances of one connection in arrival order per
// session. A session present in pending has a worker draining it.
type turnQueue struct {
	mu      sync.Mutex
	pending map[string][]queuedTurn
}

func newTurnQueue() *turnQueue {
	return &turnQueue{pending: make(map[string][]queuedTurn)}
}

// push enqueues t and reports whether the caller must start a worker for
// its session.
func (q *turnQueue) push(t queuedTurn) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	list, busy := q.pending[t.in.SessionID]
	q.pending[t.in.SessionID] = append(list, t)
	return !busy
}

// next pops the oldest turn of session. When none is left the worker's
// claim is released and ok is false.
func (q *turnQueue) next(session string) (t queuedTurn, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.pending[session]
	if len(list) == 0 {
		delete(q.pending, session)
		return queuedTurn{}, false
	}
	q.pending[session] = list[1:]
	return list[0], true
}
