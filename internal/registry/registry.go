// Package registry maps module type names to factories. The engine asks it
// for fresh instances when topology edits add modules; the modules packages
// register themselves into it at application startup.
package registry

import (
	"fmt"
	"sort"

	"github.com/Cignor/Collider-sub010/internal/module"
)

// Factory builds one unconfigured module instance.
type Factory func() module.Module

// Module is the interface a modules package implements to contribute its
// types to a registry.
type Module interface {
	Register(r *Registry)
}

// Registry holds the module type catalogue for a single engine instance.
// Registration happens during startup wiring, before any lookups, so lookups
// take no lock.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterModule adds a factory under a type name. A duplicate registration
// is a programmer error and panics.
func (r *Registry) RegisterModule(typeName string, f Factory) {
	if _, exists := r.factories[typeName]; exists {
		panic(fmt.Sprintf("module type '%s' already registered", typeName))
	}
	if f == nil {
		panic(fmt.Sprintf("module type '%s' registered with nil factory", typeName))
	}
	r.factories[typeName] = f
}

// NewModule builds a fresh instance of the named type.
func (r *Registry) NewModule(typeName string) (module.Module, error) {
	f, ok := r.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown module type '%s'", typeName)
	}
	return f(), nil
}

// Has reports whether a type name is registered.
func (r *Registry) Has(typeName string) bool {
	_, ok := r.factories[typeName]
	return ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
