// Package filter implements the tree-rewriting pipeline: named rewrite
// passes composed into a per-node chain of responsibility, applied
// bottom-up over the canonical tree.
package filter

import (
	"fmt"

	"github.com/rbconv/rbconv/pkg/ast"
)

// Handler rewrites one node. It may call chain.Process to delegate to the
// remaining filters before or after its own rewrite, or ignore the chain
// and return a replacement outright. The returned node replaces n in the
// parent; children have already been rewritten when the handler runs.
type Handler func(ctx *Context, n *ast.Node, chain Chain) (*ast.Node, error)

// Filter is a named, stateless-between-invocations rewrite unit. Handlers
// are keyed by node type; a filter without a handler for a type is
// transparently skipped for that type. Filters must keep all
// per-conversion state in the Context: instances are shared read-only
// across concurrent conversions.
type Filter interface {
	Name() string
	Handlers() map[ast.Type]Handler
}

// Chain exposes the rest of the pipeline to a handler.
type Chain interface {
	// Process delegates n to the remaining filters in the chain (and
	// finally to the identity default). It does not re-process children.
	Process(n *ast.Node) (*ast.Node, error)

	// ProcessAll runs each node through the full pipeline, children
	// included. Use it on freshly built subtrees that still need the
	// other filters applied.
	ProcessAll(nodes []*ast.Node) ([]*ast.Node, error)
}

// Error wraps a handler failure with the filter name and node position.
// Handler failures are fatal to the conversion; there is no per-filter
// recovery.
type Error struct {
	Filter   string
	NodeType ast.Type
	Line     int
	Col      int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filter %q on %s node (line %d, col %d): %v",
		e.Filter, e.NodeType, e.Line, e.Col, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
