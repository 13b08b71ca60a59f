package tracker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a new, uninitialized IssueTracker.
type Factory func() IssueTracker

// Registry maps tracker type names to factories. A registry is built once
// at startup and handed to the dispatcher.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]Factory)}
}

// Register adds a tracker factory. The name should be lowercase.
// Registering the same name twice replaces the earlier factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[name] = factory
}

// Get retrieves a tracker factory, or nil if name is not registered.
func (r *Registry) Get(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trackers[name]
}

// List returns the registered names, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a tracker with the given name is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.trackers[name]
	return ok
}

// NewTracker creates a new instance of the named tracker. Unknown names
// fail with ErrUnsupportedTracker.
func (r *Registry) NewTracker(name string) (IssueTracker, error) {
	factory := r.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnsupportedTracker, name, r.List())
	}
	return factory(), nil
}
