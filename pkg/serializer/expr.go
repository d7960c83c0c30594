package serializer

import (
	"strconv"
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
)

// JavaScript operator precedence tiers, higher binds tighter.
const (
	precSequence       = 1
	precAssign         = 2
	precTernary        = 3
	precOr             = 4
	precAnd            = 5
	precEquality       = 9
	precRelational     = 10
	precShift          = 11
	precAdditive       = 12
	precMultiplicative = 13
	precExponent       = 14
	precUnary          = 15
	precPostfix        = 17
	precPrimary        = 20
)

type binaryOp struct {
	js         string
	prec       int
	rightAssoc bool
}

var binaryOps = map[ast.Symbol]binaryOp{
	"+":  {js: "+", prec: precAdditive},
	"-":  {js: "-", prec: precAdditive},
	"*":  {js: "*", prec: precMultiplicative},
	"/":  {js: "/", prec: precMultiplicative},
	"%":  {js: "%", prec: precMultiplicative},
	"**": {js: "**", prec: precExponent, rightAssoc: true},
	"==": {js: "==", prec: precEquality},
	"!=": {js: "!=", prec: precEquality},
	"<":  {js: "<", prec: precRelational},
	"<=": {js: "<=", prec: precRelational},
	">":  {js: ">", prec: precRelational},
	">=": {js: ">=", prec: precRelational},
}

// jsName converts a Ruby identifier into a legal JavaScript one: predicate
// and bang suffixes are dropped.
func jsName(name string) string {
	name = strings.TrimSuffix(name, "?")
	name = strings.TrimSuffix(name, "!")

	return name
}

// quote renders a string literal in the configured quote style.
func (s *Serializer) quote(text string) string {
	quoted := strconv.Quote(text)
	if s.opts.Quote != "single" {
		return quoted
	}

	inner := quoted[1 : len(quoted)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	inner = strings.ReplaceAll(inner, "'", `\'`)

	return "'" + inner + "'"
}

// isBinarySend reports whether a send renders as an infix operator.
func isBinarySend(n *ast.Node) (binaryOp, bool) {
	if n.Type != ast.TypeSend || n.ChildNode(0) == nil || len(n.Children) != 3 {
		return binaryOp{}, false
	}

	op, ok := binaryOps[n.ChildSymbol(1)]

	return op, ok
}

//nolint:cyclop // precedence classification is one flat switch
func (s *Serializer) nodePrec(n *ast.Node) int {
	switch n.Type {
	case ast.TypeSend, ast.TypeCSend, ast.TypeAttr, ast.TypeCall:
		if op, ok := isBinarySend(n); ok {
			return op.prec
		}

		// A lowered safe-navigation guard is an && chain.
		if n.Type == ast.TypeCSend && !s.opts.ESLevel.AtLeast(dialect.ES2020) {
			return precAnd
		}

		name := n.ChildSymbol(1)

		switch {
		case name == "-@":
			return precUnary
		case isWriterName(name) && len(n.Children) == 3:
			return precAssign
		case name == "[]=":
			return precAssign
		default:
			return precPostfix
		}
	case ast.TypeAnd:
		return precAnd
	case ast.TypeOr:
		return precOr
	case ast.TypeNot:
		return precUnary
	case ast.TypeIf:
		return precTernary
	case ast.TypeLVAsgn, ast.TypeIVAsgn, ast.TypeGVAsgn, ast.TypeCAsgn, ast.TypeOpAsgn:
		return precAssign
	case ast.TypeBegin:
		return precSequence
	case ast.TypeDStr:
		return precAdditive
	default:
		return precPrimary
	}
}

// isWriterName matches attribute writer selectors like name=, excluding
// comparison operators and index assignment.
func isWriterName(name ast.Symbol) bool {
	s := string(name)

	if !strings.HasSuffix(s, "=") {
		return false
	}

	switch s {
	case "==", "!=", "<=", ">=", "===", "[]=":
		return false
	}

	return true
}

// expr renders n in expression position, parenthesizing when its
// precedence is below the context minimum.
func (s *Serializer) expr(n *ast.Node, min int) error {
	if n == nil {
		s.write("null")

		return nil
	}

	if s.nodePrec(n) < min {
		s.write("(")

		if err := s.exprInner(n); err != nil {
			return err
		}

		s.write(")")

		return nil
	}

	return s.exprInner(n)
}

func (s *Serializer) exprChild(n *ast.Node, i, min int) error {
	return s.expr(n.ChildNode(i), min)
}

//nolint:gocyclo,cyclop,funlen // expression dispatch is one flat switch
func (s *Serializer) exprInner(n *ast.Node) error {
	switch n.Type {
	case ast.TypeInt:
		v, _ := n.Children[0].(int64)
		s.write(strconv.FormatInt(v, 10))

		return nil
	case ast.TypeFloat:
		v, _ := n.Children[0].(float64)
		s.write(strconv.FormatFloat(v, 'g', -1, 64))

		return nil
	case ast.TypeStr:
		text, _ := n.Children[0].(string)
		s.write(s.quote(text))

		return nil
	case ast.TypeSym:
		s.write(s.quote(string(n.ChildSymbol(0))))

		return nil
	case ast.TypeRegexp:
		text, _ := n.Children[0].(string)
		s.write("/" + text + "/")

		return nil
	case ast.TypeDStr:
		return s.dstr(n)
	case ast.TypeTrue:
		s.write("true")

		return nil
	case ast.TypeFalse:
		s.write("false")

		return nil
	case ast.TypeNil:
		s.write("null")

		return nil
	case ast.TypeSelf:
		s.write("this")

		return nil
	case ast.TypeArray:
		return s.arrayLiteral(n)
	case ast.TypeHash:
		return s.hashLiteral(n)
	case ast.TypeIRange, ast.TypeERange:
		return unsupported(n, "range literals have no JavaScript equivalent")
	case ast.TypeLVar, ast.TypeGVar:
		s.write(jsName(string(n.ChildSymbol(0))))

		return nil
	case ast.TypeIVar:
		s.write("this." + jsName(string(n.ChildSymbol(0))))

		return nil
	case ast.TypeConst:
		return s.constRef(n)
	case ast.TypeLVAsgn:
		name := string(n.ChildSymbol(0))
		s.locals.DeclareLocal(name)
		s.write(jsName(name) + " = ")

		return s.exprChild(n, 1, precAssign)
	case ast.TypeGVAsgn:
		s.write(jsName(string(n.ChildSymbol(0))) + " = ")

		return s.exprChild(n, 1, precAssign)
	case ast.TypeIVAsgn:
		s.write("this." + jsName(string(n.ChildSymbol(0))) + " = ")

		return s.exprChild(n, 1, precAssign)
	case ast.TypeCAsgn:
		return s.casgnExpr(n)
	case ast.TypeOpAsgn:
		return s.opAsgn(n)
	case ast.TypeAnd:
		return s.logical(n, "&&", precAnd)
	case ast.TypeOr:
		return s.logical(n, "||", precOr)
	case ast.TypeNot:
		s.write("!")

		return s.exprChild(n, 0, precUnary)
	case ast.TypeIf:
		return s.ternary(n)
	case ast.TypeSend, ast.TypeCSend, ast.TypeAttr, ast.TypeCall:
		return s.send(n)
	case ast.TypeBlock:
		return s.blockCall(n)
	case ast.TypeBegin:
		return s.sequence(n)
	case ast.TypeSplat:
		if !s.opts.ESLevel.AtLeast(dialect.ES2015) {
			return unsupported(n, "splat requires --es 2015 or later")
		}

		s.write("...")

		return s.exprChild(n, 0, precAssign)
	case ast.TypeBlockPass:
		return s.exprChild(n, 0, precAssign)
	default:
		return unsupported(n, "not valid in expression position")
	}
}

// dstr renders interpolated strings as template literals, falling back to
// concatenation below ES2015.
func (s *Serializer) dstr(n *ast.Node) error {
	if s.opts.ESLevel.AtLeast(dialect.ES2015) {
		s.write("`")

		for _, child := range n.Children {
			part, ok := child.(*ast.Node)
			if !ok {
				return unsupported(n, "malformed interpolated string")
			}

			if part.Type == ast.TypeStr {
				text, _ := part.Children[0].(string)
				s.write(escapeTemplate(text))

				continue
			}

			s.write("${")

			if err := s.expr(part, precSequence); err != nil {
				return err
			}

			s.write("}")
		}

		s.write("`")

		return nil
	}

	for i, child := range n.Children {
		part, ok := child.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed interpolated string")
		}

		if i > 0 {
			s.write(" + ")
		}

		if err := s.expr(part, precAdditive+1); err != nil {
			return err
		}
	}

	return nil
}

func escapeTemplate(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "${", "\\${")

	return text
}

func (s *Serializer) arrayLiteral(n *ast.Node) error {
	s.write("[")

	for i, child := range n.Children {
		if i > 0 {
			s.write(", ")
		}

		elem, ok := child.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed array literal")
		}

		if err := s.expr(elem, precAssign); err != nil {
			return err
		}
	}

	s.write("]")

	return nil
}

func (s *Serializer) hashLiteral(n *ast.Node) error {
	s.write("{")

	for i, child := range n.Children {
		if i > 0 {
			s.write(", ")
		}

		pair, ok := child.(*ast.Node)
		if !ok || pair.Type != ast.TypePair {
			return unsupported(n, "malformed hash literal")
		}

		if err := s.hashKey(pair.ChildNode(0)); err != nil {
			return err
		}

		s.write(": ")

		if err := s.exprChild(pair, 1, precAssign); err != nil {
			return err
		}
	}

	s.write("}")

	return nil
}

func (s *Serializer) hashKey(key *ast.Node) error {
	if key == nil {
		return unsupported(&ast.Node{Type: ast.TypeHash}, "missing hash key")
	}

	switch key.Type {
	case ast.TypeSym:
		name := string(key.ChildSymbol(0))
		if isIdentifier(name) {
			s.write(name)
		} else {
			s.write(s.quote(name))
		}

		return nil
	case ast.TypeStr:
		text, _ := key.Children[0].(string)
		s.write(s.quote(text))

		return nil
	default:
		if !s.opts.ESLevel.AtLeast(dialect.ES2015) {
			return unsupported(key, "computed hash keys require --es 2015 or later")
		}

		s.write("[")

		if err := s.expr(key, precAssign); err != nil {
			return err
		}

		s.write("]")

		return nil
	}
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func (s *Serializer) constRef(n *ast.Node) error {
	if scopeNode := n.ChildNode(0); scopeNode != nil {
		if err := s.expr(scopeNode, precPostfix); err != nil {
			return err
		}

		s.write(".")
	}

	s.write(string(n.ChildSymbol(1)))

	return nil
}

func (s *Serializer) casgnExpr(n *ast.Node) error {
	if scopeNode := n.ChildNode(0); scopeNode != nil {
		if err := s.expr(scopeNode, precPostfix); err != nil {
			return err
		}

		s.write(".")
	}

	s.write(string(n.ChildSymbol(1)) + " = ")

	return s.exprChild(n, 2, precAssign)
}

func (s *Serializer) opAsgn(n *ast.Node) error {
	target := n.ChildNode(0)
	op := n.ChildSymbol(1)

	if target == nil {
		return unsupported(n, "malformed operator assignment")
	}

	switch target.Type {
	case ast.TypeLVAsgn, ast.TypeGVAsgn:
		s.write(jsName(string(target.ChildSymbol(0))))
	case ast.TypeIVAsgn:
		s.write("this." + jsName(string(target.ChildSymbol(0))))
	default:
		return unsupported(n, "unsupported operator-assignment target")
	}

	s.write(" " + string(op) + "= ")

	return s.exprChild(n, 2, precAssign)
}

func (s *Serializer) logical(n *ast.Node, op string, prec int) error {
	if err := s.exprChild(n, 0, prec); err != nil {
		return err
	}

	s.write(" " + op + " ")

	return s.exprChild(n, 1, prec+1)
}

func (s *Serializer) ternary(n *ast.Node) error {
	if err := s.exprChild(n, 0, precOr); err != nil {
		return err
	}

	s.write(" ? ")

	if err := s.exprChild(n, 1, precAssign); err != nil {
		return err
	}

	s.write(" : ")

	return s.exprChild(n, 2, precAssign)
}

// sequence renders an expression-position begin as a comma sequence.
func (s *Serializer) sequence(n *ast.Node) error {
	for i, child := range n.Children {
		stmt, ok := child.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed expression sequence")
		}

		if i > 0 {
			s.write(", ")
		}

		if err := s.expr(stmt, precAssign); err != nil {
			return err
		}
	}

	return nil
}
