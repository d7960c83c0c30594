// Package filters provides the stock rewrite passes shipped with the
// converter, plus the name registry the façade resolves option strings
// against.
package filters

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rbconv/rbconv/pkg/filter"
)

var errUnknownFilter = errors.New("unknown filter")

// Registry maps filter names to implementations. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]filter.Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]filter.Filter)}
}

// Default returns a registry with the stock filters registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Return())
	r.Register(Camelcase())
	r.Register(Functions())

	return r
}

// Register adds a filter, replacing any previous one of the same name.
func (r *Registry) Register(f filter.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[f.Name()] = f
}

// Lookup returns the filter registered under name.
func (r *Registry) Lookup(name string) (filter.Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownFilter, name)
	}

	return f, nil
}

// Resolve maps names to filters, preserving the requested order.
func (r *Registry) Resolve(names []string) ([]filter.Filter, error) {
	resolved := make([]filter.Filter, 0, len(names))

	for _, name := range names {
		f, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, f)
	}

	return resolved, nil
}

// Names returns the registered filter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
