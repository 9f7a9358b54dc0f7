package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedStore memoizes search results of a wrapped Store for a short TTL.
// Students often repeat themselves, and each miss costs an embedding call
// on vector backends. Any write through the cache flushes it, so a record
// inserted through CachedStore is visible to the next search.
type CachedStore struct {
	Store
	results *gocache.Cache

	// mu orders result stores against flushes; gen counts writes so a
	// search that overlapped one does not store its older result.
	mu  sync.Mutex
	gen uint64
}

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps next. Entries expire after ttl.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:   next,
		results: gocache.New(ttl, 2*ttl),
	}
}

func searchKey(query string, opts SearchOptions) string {
	return fmt.Sprintf("%d\x00%s\x00%s\x00%s", opts.Limit(), opts.MemoryType, opts.StudentID, query)
}

// Search serves a cached result when one is fresh. Errors are never cached.
func (c *CachedStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Record, error) {
	key := searchKey(query, opts)
	if v, ok := c.results.Get(key); ok {
		return slices.Clone(v.([]Record)), nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	recs, err := c.Store.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.results.Set(key, slices.Clone(recs), gocache.DefaultExpiration)
	}
	c.mu.Unlock()
	return recs, nil
}

// Insert writes through and drops every cached result.
func (c *CachedStore) Insert(ctx context.Context, rec Record) (Record, error) {
	out, err := c.Store.Insert(ctx, rec)
	if err == nil {
		c.invalidate()
	}
	return out, err
}

// Delete removes through and drops every cached result.
func (c *CachedStore) Delete(ctx context.Context, id string) error {
	err := c.Store.Delete(ctx, id)
	if err == nil {
		c.invalidate()
	}
	return err
}

func (c *CachedStore) invalidate() {
	c.mu.Lock()
	c.gen++
	c.results.Flush()
	c.mu.Unlock()
}

// Cached returns the number of cached search results.
func (c *CachedStore) Cached() int {
	return c.results.ItemCount()
}
