package serializer

import (
	"strconv"
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/scope"
)

const sendArgOffset = 2

//nolint:gocyclo,cyclop // selector special cases are one flat switch
func (s *Serializer) send(n *ast.Node) error {
	recv := n.ChildNode(0)
	name := n.ChildSymbol(1)
	args := n.Children[sendArgOffset:]

	switch {
	case name == "new" && recv != nil && len(n.Children) >= 2:
		return s.constructorCall(n, recv, args)
	case recv != nil && len(args) == 1:
		if op, ok := binaryOps[name]; ok {
			return s.binarySend(n, op)
		}
	}

	switch {
	case name == "-@" && recv != nil:
		s.write("-")

		return s.expr(recv, precUnary)
	case name == "[]" && recv != nil:
		return s.indexRead(recv, args)
	case name == "[]=" && recv != nil && len(args) >= 2:
		return s.indexWrite(recv, args)
	case name == "<<" && recv != nil && len(args) == 1:
		return s.pushCall(n, recv, args)
	case isWriterName(name) && recv != nil && len(args) == 1:
		return s.attrWrite(recv, name, args[0])
	default:
		return s.methodCall(n, recv, name, args)
	}
}

func (s *Serializer) binarySend(n *ast.Node, op binaryOp) error {
	recv := n.ChildNode(0)
	arg := n.ChildNode(sendArgOffset)

	// Exponentiation predates the ** operator only as Math.pow.
	if op.js == "**" && !s.opts.ESLevel.AtLeast(dialect.ES2015) {
		s.write("Math.pow(")

		if err := s.expr(recv, precAssign); err != nil {
			return err
		}

		s.write(", ")

		if err := s.expr(arg, precAssign); err != nil {
			return err
		}

		s.write(")")

		return nil
	}

	leftMin, rightMin := op.prec, op.prec+1
	if op.rightAssoc {
		leftMin, rightMin = op.prec+1, op.prec
	}

	if err := s.expr(recv, leftMin); err != nil {
		return err
	}

	s.write(" " + op.js + " ")

	return s.expr(arg, rightMin)
}

func (s *Serializer) constructorCall(n *ast.Node, recv *ast.Node, args []any) error {
	s.write("new ")

	if err := s.expr(recv, precPostfix); err != nil {
		return err
	}

	return s.argList(n, args)
}

func (s *Serializer) indexRead(recv *ast.Node, args []any) error {
	if err := s.expr(recv, precPostfix); err != nil {
		return err
	}

	s.write("[")

	for i, arg := range args {
		if i > 0 {
			s.write(", ")
		}

		node, ok := arg.(*ast.Node)
		if !ok {
			return unsupported(recv, "malformed index argument")
		}

		if err := s.expr(node, precAssign); err != nil {
			return err
		}
	}

	s.write("]")

	return nil
}

func (s *Serializer) indexWrite(recv *ast.Node, args []any) error {
	if err := s.indexRead(recv, args[:len(args)-1]); err != nil {
		return err
	}

	s.write(" = ")

	value, ok := args[len(args)-1].(*ast.Node)
	if !ok {
		return unsupported(recv, "malformed index assignment")
	}

	return s.expr(value, precAssign)
}

// pushCall lowers the append operator onto Array.prototype.push.
func (s *Serializer) pushCall(n *ast.Node, recv *ast.Node, args []any) error {
	if err := s.expr(recv, precPostfix); err != nil {
		return err
	}

	s.write(".push")

	return s.argList(n, args)
}

func (s *Serializer) attrWrite(recv *ast.Node, name ast.Symbol, arg any) error {
	if err := s.expr(recv, precPostfix); err != nil {
		return err
	}

	s.write("." + jsName(strings.TrimSuffix(string(name), "=")) + " = ")

	value, ok := arg.(*ast.Node)
	if !ok {
		return unsupported(recv, "malformed attribute assignment")
	}

	return s.expr(value, precAssign)
}

func (s *Serializer) methodCall(n *ast.Node, recv *ast.Node, name ast.Symbol, args []any) error {
	if n.Type == ast.TypeCSend {
		return s.safeCall(n, recv, name, args)
	}

	if recv != nil {
		if err := s.expr(recv, precPostfix); err != nil {
			return err
		}

		s.write(".")
	}

	s.write(jsName(string(name)))

	// The call-vs-attribute policy: explicit markers win, then recorded
	// source parentheses, then argument count.
	if !n.IsMethodCall() && len(args) == 0 {
		return nil
	}

	return s.argList(n, args)
}

// safeCall renders safe navigation, degrading to a guarded && chain when
// optional chaining is not available.
func (s *Serializer) safeCall(n *ast.Node, recv *ast.Node, name ast.Symbol, args []any) error {
	if s.opts.ESLevel.AtLeast(dialect.ES2020) {
		if err := s.expr(recv, precPostfix); err != nil {
			return err
		}

		s.write("?." + jsName(string(name)))

		if !n.IsMethodCall() && len(args) == 0 {
			return nil
		}

		return s.argList(n, args)
	}

	s.warnf("safe navigation at %s lowered to a && guard; the receiver is evaluated twice", locString(n))

	if err := s.expr(recv, precAnd); err != nil {
		return err
	}

	s.write(" && ")

	if err := s.expr(recv, precPostfix); err != nil {
		return err
	}

	s.write("." + jsName(string(name)))

	if !n.IsMethodCall() && len(args) == 0 {
		return nil
	}

	return s.argList(n, args)
}

func locString(n *ast.Node) string {
	if n.Loc == nil {
		return "?:?"
	}

	return strconv.Itoa(n.Loc.StartLine) + ":" + strconv.Itoa(n.Loc.StartCol)
}

func (s *Serializer) argList(n *ast.Node, args []any) error {
	s.write("(")

	for i, arg := range args {
		if i > 0 {
			s.write(", ")
		}

		node, ok := arg.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed argument")
		}

		if err := s.expr(node, precAssign); err != nil {
			return err
		}
	}

	s.write(")")

	return nil
}

// blockCall renders an iterator block as a trailing function argument.
func (s *Serializer) blockCall(n *ast.Node) error {
	call := n.ChildNode(0)
	params := n.ChildNode(1)
	blockBody := n.ChildNode(2)

	if call == nil {
		return unsupported(n, "block without a call")
	}

	recv := call.ChildNode(0)
	name := call.ChildSymbol(1)
	args := call.Children[sendArgOffset:]

	if recv != nil {
		if err := s.expr(recv, precPostfix); err != nil {
			return err
		}

		if call.Type == ast.TypeCSend {
			s.write("?.")
		} else {
			s.write(".")
		}
	}

	s.write(jsName(string(name)) + "(")

	for _, arg := range args {
		node, ok := arg.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed argument")
		}

		if err := s.expr(node, precAssign); err != nil {
			return err
		}

		s.write(", ")
	}

	if err := s.functionLiteral(params, blockBody); err != nil {
		return err
	}

	s.write(")")

	return nil
}

// functionLiteral writes an arrow function (or a function expression
// below ES2015) for the given params and body.
func (s *Serializer) functionLiteral(params, fnBody *ast.Node) error {
	s.locals.Enter(scope.KindBlock, "")
	defer s.locals.Exit()

	if s.opts.ESLevel.AtLeast(dialect.ES2015) {
		if err := s.paramList(params); err != nil {
			return err
		}

		s.write(" => ")

		return s.functionBody(fnBody)
	}

	s.write("function")

	if err := s.paramList(params); err != nil {
		return err
	}

	s.write(" ")

	return s.functionBody(fnBody)
}

// functionBody writes `{ ... }`; a single expression body stays inline.
func (s *Serializer) functionBody(fnBody *ast.Node) error {
	s.write("{")

	if fnBody == nil {
		s.write("}")

		return nil
	}

	s.newline()

	if err := s.renderBlockBody(fnBody); err != nil {
		return err
	}

	s.writeIndent()
	s.write("}")

	return nil
}

func (s *Serializer) paramList(params *ast.Node) error {
	s.write("(")

	if params != nil {
		for i, child := range params.Children {
			if i > 0 {
				s.write(", ")
			}

			param, ok := child.(*ast.Node)
			if !ok {
				return unsupported(params, "malformed parameter")
			}

			if err := s.param(param); err != nil {
				return err
			}
		}
	}

	s.write(")")

	return nil
}

func (s *Serializer) param(param *ast.Node) error {
	name := jsName(string(param.ChildSymbol(0)))
	s.locals.DeclareLocal(string(param.ChildSymbol(0)))

	switch param.Type {
	case ast.TypeArg, ast.TypeBlockArg:
		s.write(name)

		return nil
	case ast.TypeOptArg:
		if !s.opts.ESLevel.AtLeast(dialect.ES2015) {
			return unsupported(param, "default parameter values require --es 2015 or later")
		}

		s.write(name + " = ")

		return s.exprChild(param, 1, precAssign)
	case ast.TypeRestArg:
		if !s.opts.ESLevel.AtLeast(dialect.ES2015) {
			return unsupported(param, "rest parameters require --es 2015 or later")
		}

		s.write("..." + name)

		return nil
	default:
		return unsupported(param, "unsupported parameter form")
	}
}
