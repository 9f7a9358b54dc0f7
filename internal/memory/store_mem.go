package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
// Records are scored with Relevance; records scoring zero are not
// returned.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int // id → index in records slice

	now func() time.Time
}

// NewInMemoryStore creates a new empty memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		index: make(map[string]int),
		now:   time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Insert stores rec. A record with an existing ID is replaced.
func (s *InMemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	rec, err := Prepare(rec, s.now())
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, exists := s.index[rec.ID]; exists {
		s.records[idx] = rec
		return rec, nil
	}
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec, nil
}

// Search ranks matching records by Relevance. Ties keep the more
// recently inserted record first.
func (s *InMemoryStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(Terms(query)) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	var results []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if !opts.Matches(rec) {
			continue
		}
		if score := Relevance(query, rec.Text); score > 0 {
			rec.Score = score
			results = append(results, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(results, func(a, b Record) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit := opts.Limit(); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a record by ID.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[id]
	if !ok {
		return ErrRecordNotFound
	}

	// Shift rather than swap so insertion order, and with it tie-breaking,
	// survives deletes.
	s.records = slices.Delete(s.records, idx, idx+1)
	delete(s.index, id)
	for i := idx; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	return nil
}

// Len returns the total number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
