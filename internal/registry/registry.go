// Package registry holds the process-wide set of contracts.
//
// Contracts are registered at startup, before any validation traffic, and
// the registry is then sealed. After Seal the contract map is never written
// again, so lookups take no lock. Registration itself is serialized.
package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/aiguard/internal/compiler"
	"github.com/roach88/aiguard/internal/contract"
)

// Registry maps contract ids to immutable contracts.
type Registry struct {
	mu        sync.Mutex
	sealed    atomic.Bool
	contracts atomic.Pointer[map[string]*contract.Contract]
}

// New returns an empty, unsealed registry.
func New() *Registry {
	r := &Registry{}
	empty := map[string]*contract.Contract{}
	r.contracts.Store(&empty)
	return r
}

// Register statically checks c and adds it under c.ID.
//
// Registration copies the map on write, so a Lookup racing a Register sees
// either the old or the new set, never a partial one.
func (r *Registry) Register(c *contract.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return contract.NewSealedError(c.ID)
	}

	current := *r.contracts.Load()
	if _, exists := current[c.ID]; exists {
		return contract.NewDuplicateError(c.ID)
	}

	if errs := compiler.Validate(c); len(errs) > 0 {
		details := make([]string, len(errs))
		for i, e := range errs {
			details[i] = e.Error()
		}
		return contract.NewInvalidError(c.ID, details)
	}

	next := make(map[string]*contract.Contract, len(current)+1)
	for id, existing := range current {
		next[id] = existing
	}
	next[c.ID] = c
	r.contracts.Store(&next)
	return nil
}

// MustRegister is Register for static contracts; it panics on error.
func (r *Registry) MustRegister(c *contract.Contract) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup returns the contract registered under id.
func (r *Registry) Lookup(id string) (*contract.Contract, error) {
	c, ok := (*r.contracts.Load())[id]
	if !ok {
		return nil, contract.NewUnknownError(id)
	}
	return c, nil
}

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []string {
	current := *r.contracts.Load()
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Seal rejects further registration.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}
