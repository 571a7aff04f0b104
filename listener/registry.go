// Package listener discovers TechLife strips by watching for traffic on their state topics and registers each strip
// exactly once.
package listener

import (
	"slices"
	"sync"

	"github.com/nlowe/techlife/strip"
)

// Registry is the set of strip IDs that have been seen. It only grows. The zero value is ready to use.
type Registry struct {
	mu  sync.Mutex
	ids map[strip.ID]struct{}
}

// Add records id and reports whether it was new. Checking and inserting happen atomically, so of several concurrent
// calls with the same id exactly one returns true.
func (r *Registry) Add(id strip.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}

	if r.ids == nil {
		r.ids = map[strip.ID]struct{}{}
	}

	r.ids[id] = struct{}{}
	return true
}

func (r *Registry) Has(id strip.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ids[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.ids)
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []strip.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]strip.ID, 0, len(r.ids))
	for id := range r.ids {
		result = append(result, id)
	}

	slices.Sort(result)
	return result
}
