// Package providers holds the provider registry: the factory callers use to
// obtain a concrete backend by name without depending on its package.
package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"chatgate/internal/core"
)

// Constructor builds a provider instance from resolved credentials.
type Constructor func(creds core.ProviderCredentials) (core.Provider, error)

// Registry maps provider names to constructors. It starts empty: the
// available set is whatever the startup code registers, a visible list
// rather than an artifact of package imports.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor under name, overwriting any previous one.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Create instantiates the named provider. Unknown names fail with the full
// registered list so a typo is diagnosable from the error alone.
func (r *Registry) Create(name string, creds core.ProviderCredentials) (core.Provider, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return ctor(creds)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
