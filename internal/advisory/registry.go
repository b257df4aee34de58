package advisory

import (
	"fmt"
	"sync"
)

// Registry maps each capability to the provider that answers it.
// It is populated at startup; the lock only matters when tests swap providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[Capability]Provider
}

// NewRegistry creates a Registry and registers the given providers under their own capability.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Capability]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register binds p under p.Capability(), replacing any existing binding.
func (r *Registry) Register(p Provider) {
	r.RegisterAs(p.Capability(), p)
}

// RegisterAs binds p under c, replacing any existing binding.
func (r *Registry) RegisterAs(c Capability, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[c] = p
}

// Resolve returns the provider bound to c.
func (r *Registry) Resolve(c Capability) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[c]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredCapability, c)
	}
	return p, nil
}

// Capabilities lists bound capabilities in canonical order.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.providers))
	for _, c := range allCapabilities {
		if _, ok := r.providers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
