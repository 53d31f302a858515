// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teamcast/teamcast/internal/log"
)

// Registration describes one provider entry in the registry.
type Registration struct {
	Name     string
	Priority int // lower = tried first
	Enabled  bool
	Factory  func() Provider
}

// Registry is the only way other components reach providers. Providers are
// tried in priority order; a provider that returns nothing is skipped and the
// next one is tried by the caller.
type Registry struct {
	mu        sync.RWMutex
	regs      []Registration
	instances map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]Provider)}
}

// Register adds a provider registration. Registering the same name twice
// replaces the earlier entry.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.regs {
		if r.regs[i].Name == reg.Name {
			r.regs[i] = reg
			delete(r.instances, reg.Name)
			r.sortLocked()
			return
		}
	}
	r.regs = append(r.regs, reg)
	r.sortLocked()
}

func (r *Registry) sortLocked() {
	sort.SliceStable(r.regs, func(i, j int) bool {
		return r.regs[i].Priority < r.regs[j].Priority
	})
}

// GetAll returns enabled providers in priority order.
func (r *Registry) GetAll() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Provider, 0, len(r.regs))
	for _, reg := range r.regs {
		if !reg.Enabled {
			continue
		}
		out = append(out, r.instanceLocked(reg))
	}
	return out
}

// GetForLeague returns the first enabled provider supporting the league.
// Fails with ErrNoProvider when no mapping exists anywhere.
func (r *Registry) GetForLeague(league string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if !reg.Enabled {
			continue
		}
		p := r.instanceLocked(reg)
		if p.SupportsLeague(league) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("league %q: %w", league, ErrNoProvider)
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.Name == name && reg.Enabled {
			return r.instanceLocked(reg), true
		}
	}
	return nil, false
}

// instanceLocked lazily constructs the provider. Caller holds r.mu.
func (r *Registry) instanceLocked(reg Registration) Provider {
	if p, ok := r.instances[reg.Name]; ok {
		return p
	}
	p := reg.Factory()
	r.instances[reg.Name] = p
	logger := log.WithComponent("registry")
	logger.Debug().
		Str("event", "provider.construct").
		Str("provider", reg.Name).
		Int("priority", reg.Priority).
		Msg("provider constructed")
	return p
}
