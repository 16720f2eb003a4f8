// Package diagnostics collects per-subsystem diagnostic snapshots for the
// HTTP API. Subsystems register a named provider once at startup; the
// registry gathers their reports on demand.
package diagnostics

import "sync"

// Provider reports a subsystem's current diagnostic state. Implementations
// must be safe to call from the API serving goroutine.
type Provider interface {
	Diagnostics() map[string]any
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func() map[string]any

// Diagnostics calls the wrapped function.
func (f ProviderFunc) Diagnostics() map[string]any {
	return f()
}

// Registry holds the registered diagnostic providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under a subsystem name, replacing any previous
// provider with the same name.
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = provider
}

// Names returns the registered subsystem names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Collect gathers every provider's report keyed by subsystem name. A nil
// report is replaced with an empty map so consumers always see an object.
func (r *Registry) Collect() map[string]map[string]any {
	r.mu.RLock()
	providers := make(map[string]Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	out := make(map[string]map[string]any, len(providers))
	for name, p := range providers {
		report := p.Diagnostics()
		if report == nil {
			report = map[string]any{}
		}
		out[name] = report
	}
	return out
}
