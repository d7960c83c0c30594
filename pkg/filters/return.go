package filters

import (
	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/filter"
)

// Return inserts an explicit return on the last evaluated expression of
// method and block bodies, descending into if and case tails so every
// branch yields its value.
func Return() filter.Filter {
	return returnFilter{}
}

type returnFilter struct{}

func (returnFilter) Name() string {
	return "return"
}

func (f returnFilter) Handlers() map[ast.Type]filter.Handler {
	return map[ast.Type]filter.Handler{
		ast.TypeDef:   f.rewriteDef,
		ast.TypeDefS:  f.rewriteDef,
		ast.TypeBlock: f.rewriteBlock,
	}
}

func (f returnFilter) rewriteDef(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
	bodyIdx := 2
	if n.Type == ast.TypeDefS {
		bodyIdx = 3
	}

	return chain.Process(f.withReturnedBody(n, bodyIdx))
}

func (f returnFilter) rewriteBlock(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
	return chain.Process(f.withReturnedBody(n, 2))
}

func (f returnFilter) withReturnedBody(n *ast.Node, bodyIdx int) *ast.Node {
	body := n.ChildNode(bodyIdx)

	returned := insertReturn(body)
	if returned == body {
		return n
	}

	children := make([]any, len(n.Children))
	copy(children, n.Children)
	children[bodyIdx] = returned

	return n.Updated("", children)
}

// insertReturn rewrites the last evaluated expression of a body into a
// return statement. Statements without a usable value (loops, definitions,
// assignments) are left alone, as are bodies that already end in a jump.
//
//nolint:cyclop // tail classification is one flat switch
func insertReturn(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}

	switch n.Type {
	case ast.TypeBegin:
		return withRewrittenTail(n)
	case ast.TypeReturn, ast.TypeBreak, ast.TypeNext:
		return n
	case ast.TypeIf:
		return withReturnedBranches(n)
	case ast.TypeCase:
		return withReturnedWhens(n)
	case ast.TypeWhile, ast.TypeUntil,
		ast.TypeDef, ast.TypeDefS, ast.TypeClass, ast.TypeModule,
		ast.TypeLVAsgn, ast.TypeIVAsgn, ast.TypeGVAsgn, ast.TypeCAsgn,
		ast.TypeOpAsgn, ast.TypeKwBegin:
		return n
	default:
		return ast.New(ast.TypeReturn, n)
	}
}

func withRewrittenTail(n *ast.Node) *ast.Node {
	last := len(n.Children) - 1
	if last < 0 {
		return n
	}

	tail, ok := n.Children[last].(*ast.Node)
	if !ok {
		return n
	}

	returned := insertReturn(tail)
	if returned == tail {
		return n
	}

	children := make([]any, len(n.Children))
	copy(children, n.Children)
	children[last] = returned

	return n.Updated("", children)
}

func withReturnedBranches(n *ast.Node) *ast.Node {
	thenBranch := insertReturn(n.ChildNode(1))
	elseBranch := insertReturn(n.ChildNode(2))

	if thenBranch == n.ChildNode(1) && elseBranch == n.ChildNode(2) {
		return n
	}

	return n.Updated("", []any{n.Children[0], thenBranch, elseBranch})
}

func withReturnedWhens(n *ast.Node) *ast.Node {
	changed := false
	children := make([]any, len(n.Children))
	copy(children, n.Children)

	for i := 1; i < len(n.Children); i++ {
		clause, ok := n.Children[i].(*ast.Node)
		if !ok || clause == nil {
			continue
		}

		var rewritten *ast.Node

		if clause.Type == ast.TypeWhen {
			rewritten = withRewrittenWhenBody(clause)
		} else {
			// The trailing else body.
			rewritten = insertReturn(clause)
		}

		if rewritten != clause {
			children[i] = rewritten
			changed = true
		}
	}

	if !changed {
		return n
	}

	return n.Updated("", children)
}

func withRewrittenWhenBody(when *ast.Node) *ast.Node {
	last := len(when.Children) - 1
	if last < 0 {
		return when
	}

	whenBody, ok := when.Children[last].(*ast.Node)
	if !ok {
		return when
	}

	returned := insertReturn(whenBody)
	if returned == whenBody {
		return when
	}

	children := make([]any, len(when.Children))
	copy(children, when.Children)
	children[last] = returned

	return when.Updated("", children)
}
