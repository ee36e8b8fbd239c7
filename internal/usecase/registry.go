// File: internal/usecase/registry.go
package usecase

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"avatar-live-server/internal/domain"
	"avatar-live-server/internal/domain/model"
	"avatar-live-server/internal/domain/ports/adapter"
)

type registryEntry[P adapter.Provider] struct {
	name string
	p    P
}

// Registry holds the named providers of one capability and the currently
// active one. Switching only replaces the active pointer, so callers that
// already loaded a provider finish their call on it.
type Registry[P adapter.Provider] struct {
	kind model.ProviderKind

	mu        sync.RWMutex
	providers map[string]P

	active atomic.Pointer[registryEntry[P]]
}

func NewRegistry[P adapter.Provider](kind model.ProviderKind, providers ...P) *Registry[P] {
	r := &Registry[P]{kind: kind, providers: make(map[string]P, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry[P]) Kind() model.ProviderKind { return r.kind }

// Register adds or replaces a provider. The active pointer is untouched.
func (r *Registry[P]) Register(p P) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Select makes name the active provider.
func (r *Registry[P]) Select(name string) error {
	p, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%s provider %q: %w", r.kind, name, domain.ErrUnknownProvider)
	}
	r.active.Store(&registryEntry[P]{name: name, p: p})
	return nil
}

// Active returns the active provider, ok=false when none was selected.
func (r *Registry[P]) Active() (P, bool) {
	e := r.active.Load()
	if e == nil {
		var zero P
		return zero, false
	}
	return e.p, true
}

func (r *Registry[P]) ActiveName() string {
	if e := r.active.Load(); e != nil {
		return e.name
	}
	return ""
}

func (r *Registry[P]) Get(name string) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns registered names in lexical order.
func (r *Registry[P]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// All returns the registered providers in Names order.
func (r *Registry[P]) All() []P {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]P, 0, len(names))
	for _, n := range names {
		if p, ok := r.providers[n]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Describe builds the status view, filling availability from cache when set.
func (r *Registry[P]) Describe(cache *AvailabilityCache) []model.ProviderDescriptor {
	active := r.ActiveName()
	names := r.Names()
	out := make([]model.ProviderDescriptor, 0, len(names))
	for _, n := range names {
		d := model.ProviderDescriptor{Name: n, Kind: r.kind, Active: n == active}
		if cache != nil {
			if a, ok := cache.Peek(n); ok {
				avail := a.Available
				at := a.CheckedAt
				d.Available = &avail
				d.LastProbeAt = &at
			}
		}
		out = append(out, d)
	}
	return out
}
