// Package scope tracks lexical scope (class/module nesting, declared
// locals) for the conversion pipeline. Scope is computed in one forward
// tree walk before filtering, so every filter observes the same answer for
// "is this bare identifier a local variable or an implicit method call".
package scope

import (
	"sort"

	"github.com/rbconv/rbconv/pkg/ast"
)

// Kind classifies a scope frame.
type Kind int

// Frame kinds. Method frames are local-variable boundaries: lookups do not
// cross them. Block frames inherit enclosing locals.
const (
	KindTop Kind = iota
	KindClass
	KindModule
	KindMethod
	KindBlock
)

type frame struct {
	kind   Kind
	name   string
	locals map[string]struct{}
	consts map[string]struct{}
}

// Tracker is a stack of lexical frames. It is not safe for concurrent use;
// each conversion owns its own Tracker.
type Tracker struct {
	frames []frame
}

// NewTracker returns a tracker with the top-level frame pushed.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.push(KindTop, "")

	return t
}

func (t *Tracker) push(kind Kind, name string) {
	t.frames = append(t.frames, frame{
		kind:   kind,
		name:   name,
		locals: make(map[string]struct{}),
		consts: make(map[string]struct{}),
	})
}

// Enter pushes a scope frame. The name is recorded for class/module frames
// and contributes to ClassPath.
func (t *Tracker) Enter(kind Kind, name string) {
	t.push(kind, name)
}

// Exit pops the innermost frame. The top-level frame is never popped.
func (t *Tracker) Exit() {
	if len(t.frames) > 1 {
		t.frames = t.frames[:len(t.frames)-1]
	}
}

// DeclareLocal records a local variable in the innermost frame.
func (t *Tracker) DeclareLocal(name string) {
	t.frames[len(t.frames)-1].locals[name] = struct{}{}
}

// IsLocal reports whether name is a declared local, searching outward but
// stopping at the nearest method boundary (blocks inherit, methods do not).
func (t *Tracker) IsLocal(name string) bool {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if _, ok := t.frames[i].locals[name]; ok {
			return true
		}

		if t.frames[i].kind == KindMethod {
			return false
		}
	}

	return false
}

// DeclareConst records a constant in the innermost class/module frame.
func (t *Tracker) DeclareConst(name string) {
	t.frames[len(t.frames)-1].consts[name] = struct{}{}
}

// IsConst reports whether name is a declared constant in any enclosing
// frame. Constant lookup crosses method boundaries.
func (t *Tracker) IsConst(name string) bool {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if _, ok := t.frames[i].consts[name]; ok {
			return true
		}
	}

	return false
}

// ClassPath returns the names of enclosing class/module frames, outermost
// first.
func (t *Tracker) ClassPath() []string {
	var path []string

	for _, f := range t.frames {
		if f.kind == KindClass || f.kind == KindModule {
			path = append(path, f.name)
		}
	}

	return path
}

// Depth returns the current frame count, including the top-level frame.
func (t *Tracker) Depth() int {
	return len(t.frames)
}

// Annotate walks the tree in document order, populating the tracker with
// every local and constant declaration, and returns a snapshot of declared
// locals per scope-introducing node. The processor replays Enter/Exit
// around those nodes during filtering, restoring each scope's full local
// set from the snapshot so that filters see locals declared anywhere in
// the scope, not just before the current node.
func Annotate(root *ast.Node) *Info {
	info := &Info{
		locals: make(map[*ast.Node][]string),
	}

	tracker := NewTracker()
	annotate(root, tracker, info)

	// Top-level locals are keyed by the root node itself.
	info.locals[root] = localNames(tracker)

	return info
}

// Info is the result of the scope pre-pass: per scope-introducing node,
// the full set of locals declared inside it.
type Info struct {
	locals map[*ast.Node][]string
}

// LocalsOf returns the locals declared directly inside the scope opened by
// n (a def, defs, block, class, module, or the root node).
func (info *Info) LocalsOf(n *ast.Node) []string {
	return info.locals[n]
}

// FrameKind returns the scope kind a node introduces, and whether it
// introduces one at all.
func FrameKind(n *ast.Node) (Kind, bool) {
	switch n.Type {
	case ast.TypeDef, ast.TypeDefS:
		return KindMethod, true
	case ast.TypeClass:
		return KindClass, true
	case ast.TypeModule:
		return KindModule, true
	case ast.TypeBlock:
		return KindBlock, true
	default:
		return KindTop, false
	}
}

// FrameName returns the display name for a scope-introducing node.
func FrameName(n *ast.Node) string {
	switch n.Type {
	case ast.TypeDef:
		return string(n.ChildSymbol(0))
	case ast.TypeDefS:
		return string(n.ChildSymbol(1))
	case ast.TypeClass, ast.TypeModule:
		if name := n.ChildNode(0); name != nil && name.Type == ast.TypeConst {
			return string(name.ChildSymbol(1))
		}
	}

	return ""
}

func annotate(n *ast.Node, tracker *Tracker, info *Info) {
	if n == nil {
		return
	}

	if kind, ok := FrameKind(n); ok {
		tracker.Enter(kind, FrameName(n))
		declareArgs(n, tracker)
		annotateChildren(n, tracker, info)
		info.locals[n] = localNames(tracker)
		tracker.Exit()

		return
	}

	declare(n, tracker)
	annotateChildren(n, tracker, info)
}

func annotateChildren(n *ast.Node, tracker *Tracker, info *Info) {
	for _, child := range n.Children {
		if node, ok := child.(*ast.Node); ok {
			annotate(node, tracker, info)
		}
	}
}

// declare records declarations introduced by non-scoping nodes.
func declare(n *ast.Node, tracker *Tracker) {
	switch n.Type {
	case ast.TypeLVAsgn:
		tracker.DeclareLocal(string(n.ChildSymbol(0)))
	case ast.TypeCAsgn:
		tracker.DeclareConst(string(n.ChildSymbol(1)))
	case ast.TypeArg, ast.TypeOptArg, ast.TypeRestArg, ast.TypeBlockArg:
		tracker.DeclareLocal(string(n.ChildSymbol(0)))
	}
}

// declareArgs pre-declares the formal parameters of a scope-introducing
// node so they count as locals from the first body statement.
func declareArgs(n *ast.Node, tracker *Tracker) {
	args := findArgs(n)
	if args == nil {
		return
	}

	for _, child := range args.Children {
		if arg, ok := child.(*ast.Node); ok {
			declare(arg, tracker)
		}
	}
}

func findArgs(n *ast.Node) *ast.Node {
	for _, child := range n.Children {
		if node, ok := child.(*ast.Node); ok && node.Type == ast.TypeArgs {
			return node
		}
	}

	return nil
}

func localNames(tracker *Tracker) []string {
	top := tracker.frames[len(tracker.frames)-1]

	names := make([]string, 0, len(top.locals))
	for name := range top.locals {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
