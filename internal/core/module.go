// Package core provides the module system robobrain is assembled from.
// Modules register from init(), are instantiated from the YAML config and
// discover each other through the AppContext service registry.
package core

import "strings"

// ModuleID is a dotted identifier such as "memory.sqlite" or "gateway.http".
// The part before the first dot is the namespace.
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot, or the whole ID
// when it has no namespace.
func (id ModuleID) Name() string {
	_, name, ok := strings.Cut(string(id), ".")
	if !ok {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every registrable component.
type Module interface {
	ModuleInfo() ModuleInfo
}
