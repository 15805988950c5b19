package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an adapter from raw template configuration. Construction may
// reach the source to verify reachability and credentials, so it takes a
// context.
type Factory func(ctx context.Context, config map[string]any) (Adapter, error)

// Registry maps connector template IDs to adapter factories. Connectors
// register themselves at init time; registering the same template twice is a
// programming error and panics.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given template ID.
func (r *Registry) Register(templateID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[templateID]; dup {
		panic("source: duplicate adapter template " + templateID)
	}
	r.factories[templateID] = factory
}

// List returns the registered template IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Create instantiates an adapter for templateID. An unknown template reports
// the registered ones, so a config typo is obvious from the error alone.
func (r *Registry) Create(ctx context.Context, templateID string, config map[string]any) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[templateID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown adapter template %q (registered: %s)",
			templateID, strings.Join(r.List(), ", "))
	}
	return factory(ctx, config)
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry connectors register into.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a factory to the default registry.
func Register(templateID string, factory Factory) {
	defaultRegistry.Register(templateID, factory)
}
