package scope //nolint:testpackage // Tests exercise frame internals.

import (
	"reflect"
	"testing"

	"github.com/rbconv/rbconv/pkg/ast"
)

func TestTrackerLocalLookupStopsAtMethods(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.DeclareLocal("top")

	tracker.Enter(KindClass, "Widget")
	tracker.Enter(KindMethod, "render")
	tracker.DeclareLocal("x")

	if !tracker.IsLocal("x") {
		t.Errorf("x should be local in its own method")
	}

	if tracker.IsLocal("top") {
		t.Errorf("method frames must not see outer locals")
	}

	tracker.Enter(KindBlock, "")

	if !tracker.IsLocal("x") {
		t.Errorf("blocks inherit enclosing method locals")
	}

	tracker.Exit()
	tracker.Exit()
	tracker.Exit()

	if !tracker.IsLocal("top") {
		t.Errorf("top-level local lost after exits")
	}
}

func TestTrackerClassPath(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Enter(KindModule, "Admin")
	tracker.Enter(KindClass, "User")
	tracker.Enter(KindMethod, "save")

	want := []string{"Admin", "User"}
	if got := tracker.ClassPath(); !reflect.DeepEqual(got, want) {
		t.Errorf("ClassPath: got %v, want %v", got, want)
	}
}

func TestTrackerConstLookupCrossesMethods(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Enter(KindClass, "User")
	tracker.DeclareConst("LIMIT")
	tracker.Enter(KindMethod, "save")

	if !tracker.IsConst("LIMIT") {
		t.Errorf("constants must be visible across method boundaries")
	}
}

// x = 1; def f(a) y = 2 end
func TestAnnotateSnapshotsPerScope(t *testing.T) {
	t.Parallel()

	def := ast.New(ast.TypeDef,
		ast.Symbol("f"),
		ast.New(ast.TypeArgs, ast.New(ast.TypeArg, ast.Symbol("a"))),
		ast.New(ast.TypeLVAsgn, ast.Symbol("y"), ast.New(ast.TypeInt, int64(2))),
	)
	root := ast.New(ast.TypeBegin,
		ast.New(ast.TypeLVAsgn, ast.Symbol("x"), ast.New(ast.TypeInt, int64(1))),
		def,
	)

	info := Annotate(root)

	if got, want := info.LocalsOf(root), []string{"x"}; !reflect.DeepEqual(got, want) {
		t.Errorf("top-level locals: got %v, want %v", got, want)
	}

	if got, want := info.LocalsOf(def), []string{"a", "y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("def locals: got %v, want %v", got, want)
	}
}
