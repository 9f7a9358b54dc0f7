package provider

import (
	"sync"

	"github.com/flemzord/robobrain/internal/core"
)

// EntriesService is the AppContext service under which provider modules
// collect their chain entries during Provision.
const EntriesService = "provider.entries"

// Entries accumulates chain entries contributed by provider modules.
type Entries struct {
	mu   sync.Mutex
	list []ChainEntry
}

// Add appends an entry.
func (e *Entries) Add(entry ChainEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, entry)
}

// List returns the entries in registration order.
func (e *Entries) List() []ChainEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ChainEntry(nil), e.list...)
}

// EntriesFrom returns the shared Entries registered on ctx, creating it on
// first use. Modules provision sequentially, so no locking is needed here.
func EntriesFrom(ctx *core.AppContext) *Entries {
	if e, ok := core.ServiceAs[*Entries](ctx, EntriesService); ok {
		return e
	}
	e := &Entries{}
	ctx.RegisterService(EntriesService, e)
	return e
}
