// Package parser defines the seam between the conversion pipeline and
// source-language parsers. Any back-end that normalizes its native parse
// tree into the canonical ast vocabulary can be plugged in; the pipeline
// never sees parser-native types.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rbconv/rbconv/pkg/ast"
)

// Backend parses source text into a canonical node tree plus a parallel
// comment list. On malformed input it returns a *ParseError and no tree;
// partial trees are never returned.
type Backend interface {
	// Name identifies the backend in options and diagnostics.
	Name() string

	// Parse converts source text into a canonical tree. The filename is
	// used only for error positions and diagnostics.
	Parse(ctx context.Context, filename string, src []byte) (*ast.Node, []ast.Comment, error)
}

// ParseError reports malformed source. It aborts the conversion.
type ParseError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

var errUnknownBackend = errors.New("unknown parser backend")

// Registry maps backend names to implementations. The zero value is not
// usable; construct with NewRegistry. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend, replacing any previous backend of the same name.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[b.Name()] = b
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, name)
	}

	return b, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
