package filter

import (
	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/scope"
)

// Processor composes an ordered filter list into a single effective
// visitor. A Processor is immutable after construction and safe to share
// across concurrent conversions; all mutable state lives in the Context
// passed to Run.
type Processor struct {
	filters []Filter
}

// NewProcessor returns a processor applying filters in the given order.
func NewProcessor(filters ...Filter) *Processor {
	return &Processor{filters: filters}
}

// Run rewrites the tree bottom-up: children are processed before their
// parent's handlers, so a parent-level filter always sees already
// rewritten children. For each node the filters are tried in list order,
// each able to delegate to the rest of the chain before or after its own
// rewrite. Scope frames are replayed around scope-introducing nodes using
// the pre-pass snapshot, so handlers can query ctx.Scope consistently.
func (p *Processor) Run(root *ast.Node, ctx *Context) (*ast.Node, error) {
	run := &runState{processor: p, ctx: ctx, info: scope.Annotate(root)}

	// Restore top-level locals before descending.
	for _, name := range run.info.LocalsOf(root) {
		ctx.Scope.DeclareLocal(name)
	}

	return run.rewrite(root)
}

// runState is the per-Run traversal state.
type runState struct {
	processor *Processor
	ctx       *Context
	info      *scope.Info
}

func (run *runState) rewrite(n *ast.Node) (*ast.Node, error) {
	if n == nil {
		return nil, nil
	}

	kind, introduces := scope.FrameKind(n)
	if introduces {
		run.ctx.Scope.Enter(kind, scope.FrameName(n))

		for _, name := range run.info.LocalsOf(n) {
			run.ctx.Scope.DeclareLocal(name)
		}
	}

	rebuilt, err := run.rewriteChildren(n)

	if introduces {
		defer run.ctx.Scope.Exit()
	}

	if err != nil {
		return nil, err
	}

	if run.ctx.Excluded(rebuilt.Type) {
		return rebuilt, nil
	}

	return run.chainFor(rebuilt).Process(rebuilt)
}

// rewriteChildren returns n with every node child replaced by its
// rewritten form. The original node is never mutated; when no child
// changed, n itself is returned.
func (run *runState) rewriteChildren(n *ast.Node) (*ast.Node, error) {
	var rebuilt []any

	for i, child := range n.Children {
		node, ok := child.(*ast.Node)
		if !ok {
			if rebuilt != nil {
				rebuilt[i] = child
			}

			continue
		}

		next, err := run.rewrite(node)
		if err != nil {
			return nil, err
		}

		if next != node && rebuilt == nil {
			rebuilt = make([]any, len(n.Children))
			copy(rebuilt, n.Children[:i])
		}

		if rebuilt != nil {
			rebuilt[i] = next
		}
	}

	if rebuilt == nil {
		return n, nil
	}

	return n.Updated("", rebuilt), nil
}

// chainFor builds the chain of handlers registered for the node's type,
// in filter-list order.
func (run *runState) chainFor(n *ast.Node) *nodeChain {
	var links []chainLink

	for _, f := range run.processor.filters {
		if handler, ok := f.Handlers()[n.Type]; ok {
			links = append(links, chainLink{filter: f.Name(), handler: handler})
		}
	}

	return &nodeChain{run: run, nodeType: n.Type, links: links}
}

type chainLink struct {
	filter  string
	handler Handler
}

// nodeChain advances through the handlers for one node. Each Process call
// consumes the next link; past the end it is the identity, so a filter
// calling chain.Process on its own input receives it back unchanged.
type nodeChain struct {
	run      *runState
	nodeType ast.Type
	links    []chainLink
	idx      int
}

func (c *nodeChain) Process(n *ast.Node) (*ast.Node, error) {
	if c.idx >= len(c.links) {
		return n, nil
	}

	link := c.links[c.idx]
	c.idx++

	out, err := link.handler(c.run.ctx, n, c)
	if err != nil {
		return nil, wrapFilterError(link.filter, n, err)
	}

	return out, nil
}

func (c *nodeChain) ProcessAll(nodes []*ast.Node) ([]*ast.Node, error) {
	out := make([]*ast.Node, len(nodes))

	for i, n := range nodes {
		next, err := c.run.rewrite(n)
		if err != nil {
			return nil, err
		}

		out[i] = next
	}

	return out, nil
}

func wrapFilterError(filterName string, n *ast.Node, err error) error {
	ferr := &Error{Filter: filterName, NodeType: n.Type, Err: err}

	if n.Loc != nil {
		ferr.Line = n.Loc.StartLine
		ferr.Col = n.Loc.StartCol
	}

	// Do not re-wrap an error a nested Process call already wrapped.
	if inner, ok := err.(*Error); ok { //nolint:errorlint // direct nesting only
		return inner
	}

	return ferr
}
