// Package memorytest provides test doubles for the memory contract.
package memorytest

import (
	"context"
	"sync"

	"github.com/flemzord/robobrain/internal/memory"
)

// MockStore is a configurable memory.Store. Nil Func fields fall back to
// harmless defaults. Every call is recorded.
type MockStore struct {
	SearchFunc func(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error)
	InsertFunc func(ctx context.Context, rec memory.Record) (memory.Record, error)
	DeleteFunc func(ctx context.Context, id string) error

	mu       sync.Mutex
	searches []SearchCall
	inserts  []memory.Record
}

// SearchCall records the arguments of one Search.
type SearchCall struct {
	Query string
	Opts  memory.SearchOptions
}

var _ memory.Store = (*MockStore)(nil)

// Search implements memory.Retriever.
func (m *MockStore) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error) {
	m.mu.Lock()
	m.searches = append(m.searches, SearchCall{Query: query, Opts: opts})
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, opts)
	}
	return nil, nil
}

// Insert implements memory.Writer.
func (m *MockStore) Insert(ctx context.Context, rec memory.Record) (memory.Record, error) {
	m.mu.Lock()
	m.inserts = append(m.inserts, rec)
	m.mu.Unlock()
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, rec)
	}
	return rec, nil
}

// Delete implements memory.Store.
func (m *MockStore) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// Len implements memory.Store.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserts)
}

// Searches returns the recorded Search calls.
func (m *MockStore) Searches() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.searches...)
}

// Inserts returns the records passed to Insert.
func (m *MockStore) Inserts() []memory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Record(nil), m.inserts...)
}
