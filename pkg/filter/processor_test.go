package filter_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/filter"
)

// stubFilter builds a filter from a handler map.
type stubFilter struct {
	name     string
	handlers map[ast.Type]filter.Handler
}

func (f *stubFilter) Name() string                         { return f.name }
func (f *stubFilter) Handlers() map[ast.Type]filter.Handler { return f.handlers }

func newContext() *filter.Context {
	return filter.NewContext("test.rb", dialect.ES2015)
}

// Filter A wraps the chain result in a marker node ("after" rewrite);
// filter B uppercases identifier symbols ("replace"). Chained as [A, B]
// the marker must wrap the uppercased identifier, proving A delegated to B
// before applying its own rewrite.
func TestChainDelegationOrder(t *testing.T) {
	t.Parallel()

	wrap := &stubFilter{
		name: "wrap",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeLVar: func(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
				inner, err := chain.Process(n)
				if err != nil {
					return nil, err
				}

				return ast.New("wrapped", inner), nil
			},
		},
	}

	upcase := &stubFilter{
		name: "upcase",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeLVar: func(_ *filter.Context, n *ast.Node, _ filter.Chain) (*ast.Node, error) {
				name := n.ChildSymbol(0)

				return n.Updated("", []any{ast.Symbol(strings.ToUpper(string(name)))}), nil
			},
		},
	}

	root := ast.New(ast.TypeLVar, ast.Symbol("x"))

	out, err := filter.NewProcessor(wrap, upcase).Run(root, newContext())
	require.NoError(t, err)

	want := ast.New("wrapped", ast.New(ast.TypeLVar, ast.Symbol("X")))
	assert.True(t, ast.StructurallyEqual(out, want), "got %s, want %s", out, want)
}

// Children must be rewritten before the parent's handlers run.
func TestBottomUpTraversal(t *testing.T) {
	t.Parallel()

	var seen []string

	record := &stubFilter{
		name: "record",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeInt: func(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
				seen = append(seen, "child")

				return chain.Process(n)
			},
			ast.TypeArray: func(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
				seen = append(seen, "parent")

				return chain.Process(n)
			},
		},
	}

	root := ast.New(ast.TypeArray, ast.New(ast.TypeInt, int64(1)), ast.New(ast.TypeInt, int64(2)))

	_, err := filter.NewProcessor(record).Run(root, newContext())
	require.NoError(t, err)

	assert.Equal(t, []string{"child", "child", "parent"}, seen)
}

// A parent handler must observe already-rewritten children.
func TestParentSeesRewrittenChildren(t *testing.T) {
	t.Parallel()

	double := &stubFilter{
		name: "double",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeInt: func(_ *filter.Context, n *ast.Node, _ filter.Chain) (*ast.Node, error) {
				v, _ := n.Children[0].(int64)

				return n.Updated("", []any{v * 2}), nil
			},
		},
	}

	var observed *ast.Node

	observe := &stubFilter{
		name: "observe",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeArray: func(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
				observed = n

				return chain.Process(n)
			},
		},
	}

	root := ast.New(ast.TypeArray, ast.New(ast.TypeInt, int64(3)))

	_, err := filter.NewProcessor(double, observe).Run(root, newContext())
	require.NoError(t, err)

	require.NotNil(t, observed)
	assert.True(t, ast.StructurallyEqual(observed.ChildNode(0), ast.New(ast.TypeInt, int64(6))))
}

func TestExclusionPassesThrough(t *testing.T) {
	t.Parallel()

	upcase := &stubFilter{
		name: "upcase",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeLVar: func(_ *filter.Context, n *ast.Node, _ filter.Chain) (*ast.Node, error) {
				return n.Updated("", []any{ast.Symbol("CHANGED")}), nil
			},
		},
	}

	ctx := newContext()
	ctx.Exclude(ast.TypeLVar)

	root := ast.New(ast.TypeLVar, ast.Symbol("x"))

	out, err := filter.NewProcessor(upcase).Run(root, ctx)
	require.NoError(t, err)

	assert.True(t, ast.StructurallyEqual(out, root), "excluded type must pass through unchanged")
}

func TestHandlerErrorIsFatalAndWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("structural precondition violated")

	failing := &stubFilter{
		name: "failing",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeSend: func(_ *filter.Context, _ *ast.Node, _ filter.Chain) (*ast.Node, error) {
				return nil, boom
			},
		},
	}

	root := ast.NewAt(ast.TypeSend, &ast.Loc{StartLine: 4, StartCol: 7}, nil, ast.Symbol("save"))

	_, err := filter.NewProcessor(failing).Run(root, newContext())
	require.Error(t, err)

	var ferr *filter.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "failing", ferr.Filter)
	assert.Equal(t, ast.TypeSend, ferr.NodeType)
	assert.Equal(t, 4, ferr.Line)
	assert.Equal(t, 7, ferr.Col)
	assert.ErrorIs(t, err, boom)
}

func TestEmptyFilterListIsIdentity(t *testing.T) {
	t.Parallel()

	root := ast.New(ast.TypeBegin,
		ast.New(ast.TypeLVAsgn, ast.Symbol("x"), ast.New(ast.TypeInt, int64(1))),
		ast.New(ast.TypeSend, nil, ast.Symbol("puts"), ast.New(ast.TypeLVar, ast.Symbol("x"))),
	)

	out, err := filter.NewProcessor().Run(root, newContext())
	require.NoError(t, err)

	assert.Same(t, root, out, "no filters should return the input tree unchanged")
}

func TestScopeReplayDuringRun(t *testing.T) {
	t.Parallel()

	var isLocal, sawOuter bool

	probe := &stubFilter{
		name: "probe",
		handlers: map[ast.Type]filter.Handler{
			ast.TypeSend: func(ctx *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
				isLocal = ctx.Scope.IsLocal("x")
				sawOuter = ctx.Scope.IsLocal("outer")

				return chain.Process(n)
			},
		},
	}

	// outer = 1; def f; x = 2; x.bar; end
	root := ast.New(ast.TypeBegin,
		ast.New(ast.TypeLVAsgn, ast.Symbol("outer"), ast.New(ast.TypeInt, int64(1))),
		ast.New(ast.TypeDef,
			ast.Symbol("f"),
			ast.New(ast.TypeArgs),
			ast.New(ast.TypeBegin,
				ast.New(ast.TypeLVAsgn, ast.Symbol("x"), ast.New(ast.TypeInt, int64(2))),
				ast.New(ast.TypeSend, ast.New(ast.TypeLVar, ast.Symbol("x")), ast.Symbol("bar")),
			),
		),
	)

	_, err := filter.NewProcessor(probe).Run(root, newContext())
	require.NoError(t, err)

	assert.True(t, isLocal, "x must be visible as a local inside its def")
	assert.False(t, sawOuter, "outer local must not leak across the method boundary")
}
