package surface

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/types"
)

// Factory builds one adapter instance
type Factory func() (Adapter, error)

// Registry maps surface ids to adapters. The set of surfaces is fixed
// at construction from configuration; there is no runtime mutation.
// Adapter instances are created lazily and cached for reuse.
type Registry struct {
	defs      map[string]Definition
	factories map[string]Factory
	adapters  map[string]Adapter
	mu        sync.Mutex
}

// NewRegistry builds a registry from surface definitions
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:      make(map[string]Definition, len(defs)),
		factories: make(map[string]Factory, len(defs)),
		adapters:  make(map[string]Adapter, len(defs)),
	}

	for _, def := range defs {
		def := def
		if def.ID == "" {
			return nil, fmt.Errorf("surface definition missing id")
		}
		if _, exists := r.defs[def.ID]; exists {
			return nil, fmt.Errorf("duplicate surface definition %q", def.ID)
		}

		switch def.Kind {
		case KindRESTChat:
			r.factories[def.ID] = func() (Adapter, error) { return newRESTChatAdapter(def) }
		case KindEcho:
			r.factories[def.ID] = func() (Adapter, error) { return newEchoAdapter(def.ID), nil }
		default:
			return nil, fmt.Errorf("unknown surface kind %q for %q", def.Kind, def.ID)
		}

		r.defs[def.ID] = def
	}

	return r, nil
}

// Adapter returns the cached adapter for a surface, creating it on
// first use. Unknown surfaces fail with SURFACE_UNAVAILABLE.
func (r *Registry) Adapter(id string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[id]; ok {
		return adapter, nil
	}

	factory, ok := r.factories[id]
	if !ok {
		return nil, NewError(types.ErrCodeSurfaceUnavailable, fmt.Sprintf("surface not registered: %s", id))
	}

	adapter, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter for %s: %w", id, err)
	}

	r.adapters[id] = adapter
	return adapter, nil
}

// Has reports whether a surface id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.defs[id]
	return ok
}

// IDs returns the registered surface ids in stable order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ceiling returns the per-call timeout for a surface, zero when none
func (r *Registry) Ceiling(id string) time.Duration {
	return time.Duration(r.defs[id].TimeoutMs) * time.Millisecond
}

// Pricing assembles the cost table from the surface definitions
func (r *Registry) Pricing() costs.Table {
	table := make(costs.Table, len(r.defs))
	for id, def := range r.defs {
		table[id] = def.Pricing
	}
	return table
}

// CloseAll closes every instantiated adapter. The first error is
// returned; all adapters are closed regardless.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, adapter := range r.adapters {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close adapter %s: %w", id, err)
		}
		delete(r.adapters, id)
	}
	return firstErr
}
