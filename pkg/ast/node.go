package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is the canonical tree element. Children are ordered and
// heterogeneous: each is a *Node, Symbol, string, int64, float64, bool, or
// nil, with arity and meaning defined per Type (e.g. send is
// [receiver-or-nil, method-name, args...]).
//
// Nodes are immutable by convention: rewrites go through Updated, which
// returns a fresh node, so any number of filters may safely hold
// references to the original.
type Node struct {
	Type     Type
	Children []any
	Loc      *Loc
}

// New constructs a node. Arity is not validated; callers own the shape,
// matching the dynamic nature of the source grammar.
func New(typ Type, children ...any) *Node {
	return &Node{Type: typ, Children: children}
}

// NewAt constructs a node carrying a source location.
func NewAt(typ Type, loc *Loc, children ...any) *Node {
	return &Node{Type: typ, Children: children, Loc: loc}
}

// Updated returns a copy of n with the given type and children, keeping
// any field passed as its zero value ("" or nil). This is the canonical
// rewrite primitive for filters; the receiver is never mutated.
func (n *Node) Updated(typ Type, children []any) *Node {
	out := &Node{Type: n.Type, Children: n.Children, Loc: n.Loc}

	if typ != "" {
		out.Type = typ
	}

	if children != nil {
		out.Children = children
	}

	return out
}

// Synthetic reports whether the node was created by a filter rather than
// parsed from source.
func (n *Node) Synthetic() bool {
	return n.Loc == nil
}

// ChildNode returns child i as a *Node, or nil when out of range or the
// child is not a node.
func (n *Node) ChildNode(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}

	child, _ := n.Children[i].(*Node)

	return child
}

// ChildSymbol returns child i as a Symbol, or "" when absent.
func (n *Node) ChildSymbol(i int) Symbol {
	if i < 0 || i >= len(n.Children) {
		return ""
	}

	sym, _ := n.Children[i].(Symbol)

	return sym
}

// StructurallyEqual reports deep value equality of two trees: equal types
// and pairwise equal children, recursing into child nodes. Location and
// parenthesis metadata are ignored. This is the comparison filters must
// use; pointer equality on nodes is meaningless after a rewrite.
func StructurallyEqual(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a.Type != b.Type || len(a.Children) != len(b.Children) {
		return false
	}

	for i := range a.Children {
		if !childEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}

	return true
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n *Node) int {
	if n == nil {
		return 0
	}

	total := 1

	for _, child := range n.Children {
		if cn, ok := child.(*Node); ok {
			total += Count(cn)
		}
	}

	return total
}

func childEqual(a, b any) bool {
	an, aIsNode := a.(*Node)
	bn, bIsNode := b.(*Node)

	if aIsNode || bIsNode {
		if aIsNode != bIsNode {
			return false
		}

		return StructurallyEqual(an, bn)
	}

	return a == b
}

// IsMethodCall decides whether a zero/one-argument send renders with
// parentheses. The policy, in priority order: an attr node is never a
// call; a call node always is; a parsed node follows the recorded source
// parentheses; a synthetic node is a call when it has arguments and
// attribute-like otherwise.
func (n *Node) IsMethodCall() bool {
	switch n.Type {
	case TypeAttr:
		return false
	case TypeCall:
		return true
	}

	if n.Loc != nil {
		return n.Loc.HasParens
	}

	return n.argCount() > 0
}

// argCount returns the number of argument children for send-shaped nodes.
func (n *Node) argCount() int {
	if len(n.Children) <= sendArgOffset {
		return 0
	}

	return len(n.Children) - sendArgOffset
}

// sendArgOffset is the index of the first argument child in a send-shaped
// node: [receiver, method-name, args...].
const sendArgOffset = 2

// String renders the node as an s-expression, for diagnostics and tests.
func (n *Node) String() string {
	var buf strings.Builder

	writeSexp(&buf, n)

	return buf.String()
}

func writeSexp(buf *strings.Builder, n *Node) {
	if n == nil {
		buf.WriteString("nil")

		return
	}

	buf.WriteString("(")
	buf.WriteString(string(n.Type))

	for _, child := range n.Children {
		buf.WriteString(" ")
		writeSexpChild(buf, child)
	}

	buf.WriteString(")")
}

func writeSexpChild(buf *strings.Builder, child any) {
	switch v := child.(type) {
	case nil:
		buf.WriteString("nil")
	case *Node:
		writeSexp(buf, v)
	case Symbol:
		buf.WriteString(":")
		buf.WriteString(string(v))
	case string:
		buf.WriteString(strconv.Quote(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	default:
		fmt.Fprintf(buf, "%v", v)
	}
}
