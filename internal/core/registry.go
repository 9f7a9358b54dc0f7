package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Compiled-in modules, keyed by ID. The namespace groups modules that
// fill the same role:
//
//	provider.*  language models behind the provider chain
//	memory.*    knowledge stores; at most one is configured
//	gateway.*   the HTTP surface robots and operators call
//	bridge.*    persistent robot connections
//	mcp.*       tools exposed to agent clients
var (
	registry   = make(map[ModuleID]ModuleInfo)
	registryMu sync.RWMutex
)

// RegisterModule adds a module to the set robobrain can load from config.
// Call it from init(). An empty ID, a nil constructor or a second module
// with the same ID panics.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, taken := registry[info.ID]; taken {
		panic(fmt.Sprintf("core: module already registered: %s", info.ID))
	}
	registry[info.ID] = info
}

// GetModule looks up a compiled-in module, e.g. "memory.sqlite".
func GetModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// GetModules lists the compiled-in modules ordered by ID, which groups
// them by namespace.
func GetModules() []ModuleInfo {
	registryMu.RLock()
	out := make([]ModuleInfo, 0, len(registry))
	for _, info := range registry {
		out = append(out, info)
	}
	registryMu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// GetModulesByNamespace lists the modules of one namespace, so
// GetModulesByNamespace("provider") yields provider.anthropic,
// provider.ollama and provider.openai_compatible when all are compiled in.
// A trailing dot is optional.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	namespace = strings.TrimSuffix(namespace, ".")
	var out []ModuleInfo
	for _, info := range GetModules() {
		if _, _, dotted := strings.Cut(string(info.ID), "."); dotted && info.ID.Namespace() == namespace {
			out = append(out, info)
		}
	}
	return out
}

// resetRegistry empties the registry between tests.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ModuleID]ModuleInfo)
}
