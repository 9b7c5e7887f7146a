package validator

import (
	"fmt"
	"sort"
	"sync"
)

// Predicate is a host-supplied check over the decoded payload of a response.
type Predicate func(data any) bool

// Registry maps predicate names used by custom rules to their implementations,
// so rule sets stay plain data.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// DefaultRegistry backs the package-level ValidateResponse and validators built
// without WithRegistry.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

func (r *Registry) Register(name string, p Predicate) error {
	if name == "" {
		return fmt.Errorf("predicate name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("predicate %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.predicates[name]; exists {
		return fmt.Errorf("duplicate predicate name: %s", name)
	}
	r.predicates[name] = p
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(name string, p Predicate) {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.predicates[name]
	return p, ok
}

// Names returns the registered predicate names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a predicate to DefaultRegistry.
func Register(name string, p Predicate) error {
	return DefaultRegistry.Register(name, p)
}
