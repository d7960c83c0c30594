package filters

import (
	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/filter"
)

// Functions maps common Ruby core methods onto their JavaScript
// counterparts: puts onto console.log, to_s onto toString, size onto
// length, Float/Integer rounding onto Math, and so on. Calls it does not
// recognize pass through untouched.
func Functions() filter.Filter {
	return functionsFilter{}
}

type functionsFilter struct{}

func (functionsFilter) Name() string {
	return "functions"
}

func (f functionsFilter) Handlers() map[ast.Type]filter.Handler {
	return map[ast.Type]filter.Handler{
		ast.TypeSend:  f.rewrite,
		ast.TypeCSend: f.rewrite,
	}
}

// Receiver-method renames that keep their argument list.
var methodRenames = map[ast.Symbol]ast.Symbol{
	"to_s":     "toString",
	"upcase":   "toUpperCase",
	"downcase": "toLowerCase",
	"strip":    "trim",
	"sub":      "replace",
	"include?": "includes",
	"select":   "filter",
	"index":    "indexOf",
}

// Receiverless kernel calls that become console methods.
var kernelCalls = map[ast.Symbol]ast.Symbol{
	"puts": "log",
	"p":    "log",
	"warn": "warn",
}

// Zero-argument receiver methods that become Math calls on the receiver.
var mathCalls = map[ast.Symbol]ast.Symbol{
	"floor": "floor",
	"ceil":  "ceil",
	"round": "round",
	"abs":   "abs",
}

//nolint:cyclop // idiom dispatch is one flat switch
func (functionsFilter) rewrite(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
	recv := n.ChildNode(0)
	name := n.ChildSymbol(1)
	args := n.Children[sendArgOffset:]

	switch {
	case recv == nil && kernelCalls[name] != "":
		return chain.Process(consoleCall(kernelCalls[name], args))

	case recv == nil && name == "rand" && len(args) == 0:
		return chain.Process(mathCall("random"))

	case recv != nil && methodRenames[name] != "":
		return chain.Process(renamed(n, methodRenames[name]))

	case recv != nil && mathCalls[name] != "" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeCall, mathConst(), mathCalls[name], recv))

	case recv != nil && name == "size" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeAttr, recv, ast.Symbol("length")))

	case recv != nil && name == "to_i" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeCall, nil, ast.Symbol("parseInt"), recv))

	case recv != nil && name == "to_f" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeCall, nil, ast.Symbol("parseFloat"), recv))

	case recv != nil && name == "first" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeSend, recv, ast.Symbol("[]"), ast.New(ast.TypeInt, int64(0))))

	case recv != nil && name == "empty?" && len(args) == 0:
		length := ast.New(ast.TypeAttr, recv, ast.Symbol("length"))

		return chain.Process(ast.New(ast.TypeSend, length, ast.Symbol("=="), ast.New(ast.TypeInt, int64(0))))

	case recv != nil && name == "nil?" && len(args) == 0:
		return chain.Process(ast.New(ast.TypeSend, recv, ast.Symbol("=="), ast.New(ast.TypeNil)))

	default:
		return chain.Process(n)
	}
}

const sendArgOffset = 2

func consoleCall(method ast.Symbol, args []any) *ast.Node {
	children := append([]any{ast.New(ast.TypeLVar, ast.Symbol("console")), method}, args...)

	return ast.New(ast.TypeCall, children...)
}

func mathConst() *ast.Node {
	return ast.New(ast.TypeConst, nil, ast.Symbol("Math"))
}

func mathCall(method ast.Symbol) *ast.Node {
	return ast.New(ast.TypeCall, mathConst(), ast.Symbol(method))
}

// renamed keeps the node's shape and location, swapping the selector. The
// call type marker forces parentheses on the renamed form.
func renamed(n *ast.Node, name ast.Symbol) *ast.Node {
	children := make([]any, len(n.Children))
	copy(children, n.Children)
	children[1] = name

	typ := ast.TypeCall
	if n.Type == ast.TypeCSend {
		typ = n.Type
	}

	return n.Updated(typ, children)
}
