package miniruby

import (
	"strconv"
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
)

func (ps *parseState) parseExpression() (*ast.Node, error) {
	return ps.parseAssignment()
}

func (ps *parseState) parseAssignment() (*ast.Node, error) {
	start := ps.cur()

	lhs, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	switch {
	case ps.atOp("="):
		ps.advance()
		ps.skipTerminators()

		value, err := ps.parseAssignment()
		if err != nil {
			return nil, err
		}

		return ps.buildAssignment(start, lhs, value)
	case ps.atOpAssign():
		op := ps.advance().lit
		ps.skipTerminators()

		value, err := ps.parseAssignment()
		if err != nil {
			return nil, err
		}

		return ps.buildOpAssignment(start, lhs, op, value)
	default:
		return lhs, nil
	}
}

func (ps *parseState) atOpAssign() bool {
	if ps.cur().typ != tokenOp {
		return false
	}

	switch ps.cur().lit {
	case "+=", "-=", "*=", "/=", "%=", "**=", "||=", "&&=":
		return true
	default:
		return false
	}
}

// buildAssignment converts an already-parsed expression into an
// assignment target.
func (ps *parseState) buildAssignment(start token, lhs *ast.Node, value *ast.Node) (*ast.Node, error) {
	loc := ps.locFrom(start)

	switch lhs.Type {
	case ast.TypeLVar:
		name := lhs.ChildSymbol(0)
		ps.declareLocal(string(name))

		return ast.NewAt(ast.TypeLVAsgn, loc, name, value), nil
	case ast.TypeIVar:
		return ast.NewAt(ast.TypeIVAsgn, loc, lhs.ChildSymbol(0), value), nil
	case ast.TypeGVar:
		return ast.NewAt(ast.TypeGVAsgn, loc, lhs.ChildSymbol(0), value), nil
	case ast.TypeConst:
		return ast.NewAt(ast.TypeCAsgn, loc, lhs.Children[0], lhs.ChildSymbol(1), value), nil
	case ast.TypeSend:
		return ps.buildSendAssignment(loc, lhs, value)
	default:
		return nil, ps.syntaxError("invalid assignment target")
	}
}

func (ps *parseState) buildSendAssignment(loc *ast.Loc, lhs *ast.Node, value *ast.Node) (*ast.Node, error) {
	recv := lhs.ChildNode(0)
	name := lhs.ChildSymbol(1)

	// Bare identifier parsed as an implicit call becomes a new local.
	if lhs.Children[0] == nil && len(lhs.Children) == 2 {
		ps.declareLocal(string(name))

		return ast.NewAt(ast.TypeLVAsgn, loc, name, value), nil
	}

	// Index assignment: a[i] = v.
	if name == "[]" {
		children := append(append([]any{}, lhs.Children[0], ast.Symbol("[]=")), lhs.Children[2:]...)
		children = append(children, value)

		return ast.NewAt(ast.TypeSend, loc, children...), nil
	}

	// Attribute writer: obj.name = v.
	if recv != nil && len(lhs.Children) == 2 {
		return ast.NewAt(ast.TypeSend, loc, recv, name+"=", value), nil
	}

	return nil, ps.syntaxError("invalid assignment target")
}

// buildOpAssignment handles `x += v` and desugars `x ||= v` / `x &&= v`.
func (ps *parseState) buildOpAssignment(start token, lhs *ast.Node, op string, value *ast.Node) (*ast.Node, error) {
	loc := ps.locFrom(start)

	var target *ast.Node

	switch lhs.Type {
	case ast.TypeLVar:
		ps.declareLocal(string(lhs.ChildSymbol(0)))

		target = ast.New(ast.TypeLVAsgn, lhs.ChildSymbol(0))
	case ast.TypeIVar:
		target = ast.New(ast.TypeIVAsgn, lhs.ChildSymbol(0))
	case ast.TypeGVar:
		target = ast.New(ast.TypeGVAsgn, lhs.ChildSymbol(0))
	case ast.TypeSend:
		if lhs.Children[0] == nil && len(lhs.Children) == 2 {
			ps.declareLocal(string(lhs.ChildSymbol(1)))

			target = ast.New(ast.TypeLVAsgn, lhs.ChildSymbol(1))
			lhs = ast.NewAt(ast.TypeLVar, lhs.Loc, lhs.ChildSymbol(1))

			break
		}

		return nil, ps.syntaxError("unsupported op-assignment target")
	default:
		return nil, ps.syntaxError("unsupported op-assignment target")
	}

	switch op {
	case "||=":
		combined := ast.New(ast.TypeOr, lhs, value)

		return ps.completeDesugaredAssign(loc, target, combined), nil
	case "&&=":
		combined := ast.New(ast.TypeAnd, lhs, value)

		return ps.completeDesugaredAssign(loc, target, combined), nil
	default:
		opSym := ast.Symbol(strings.TrimSuffix(op, "="))

		return ast.NewAt(ast.TypeOpAsgn, loc, target, opSym, value), nil
	}
}

func (ps *parseState) completeDesugaredAssign(loc *ast.Loc, target, value *ast.Node) *ast.Node {
	children := append(append([]any{}, target.Children...), value)

	return ast.NewAt(target.Type, loc, children...)
}

func (ps *parseState) parseTernary() (*ast.Node, error) {
	start := ps.cur()

	cond, err := ps.parseOr()
	if err != nil {
		return nil, err
	}

	if !ps.atOp("?") {
		return cond, nil
	}

	ps.advance()
	ps.skipTerminators()

	whenTrue, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	if err := ps.expectOp(":"); err != nil {
		return nil, err
	}

	ps.skipTerminators()

	whenFalse, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, whenTrue, whenFalse), nil
}

func (ps *parseState) parseOr() (*ast.Node, error) {
	start := ps.cur()

	left, err := ps.parseAnd()
	if err != nil {
		return nil, err
	}

	for ps.atOp("||") || ps.atKeyword("or") {
		ps.advance()
		ps.skipTerminators()

		right, err := ps.parseAnd()
		if err != nil {
			return nil, err
		}

		left = ast.NewAt(ast.TypeOr, ps.locFrom(start), left, right)
	}

	return left, nil
}

func (ps *parseState) parseAnd() (*ast.Node, error) {
	start := ps.cur()

	left, err := ps.parseEquality()
	if err != nil {
		return nil, err
	}

	for ps.atOp("&&") || ps.atKeyword("and") {
		ps.advance()
		ps.skipTerminators()

		right, err := ps.parseEquality()
		if err != nil {
			return nil, err
		}

		left = ast.NewAt(ast.TypeAnd, ps.locFrom(start), left, right)
	}

	return left, nil
}

func (ps *parseState) parseEquality() (*ast.Node, error) {
	return ps.parseBinaryLevel(
		[]string{"==", "!=", "===", "<=>"},
		ps.parseComparison,
	)
}

func (ps *parseState) parseComparison() (*ast.Node, error) {
	return ps.parseBinaryLevel(
		[]string{"<", "<=", ">", ">="},
		ps.parseRangeLevel,
	)
}

func (ps *parseState) parseRangeLevel() (*ast.Node, error) {
	start := ps.cur()

	left, err := ps.parseAdditive()
	if err != nil {
		return nil, err
	}

	if ps.atOp("..") || ps.atOp("...") {
		typ := ast.TypeIRange
		if ps.cur().lit == "..." {
			typ = ast.TypeERange
		}

		ps.advance()

		right, err := ps.parseAdditive()
		if err != nil {
			return nil, err
		}

		return ast.NewAt(typ, ps.locFrom(start), left, right), nil
	}

	return left, nil
}

func (ps *parseState) parseAdditive() (*ast.Node, error) {
	return ps.parseBinaryLevel(
		[]string{"+", "-", "<<"},
		ps.parseMultiplicative,
	)
}

func (ps *parseState) parseMultiplicative() (*ast.Node, error) {
	return ps.parseBinaryLevel(
		[]string{"*", "/", "%"},
		ps.parseUnary,
	)
}

// parseBinaryLevel builds left-associative send nodes for one precedence
// tier.
func (ps *parseState) parseBinaryLevel(ops []string, next func() (*ast.Node, error)) (*ast.Node, error) {
	start := ps.cur()

	left, err := next()
	if err != nil {
		return nil, err
	}

	for ps.cur().typ == tokenOp && contains(ops, ps.cur().lit) {
		op := ps.advance().lit
		ps.skipTerminators()

		right, err := next()
		if err != nil {
			return nil, err
		}

		left = ast.NewAt(ast.TypeSend, ps.locFrom(start), left, ast.Symbol(op), right)
	}

	return left, nil
}

func contains(ops []string, lit string) bool {
	for _, op := range ops {
		if op == lit {
			return true
		}
	}

	return false
}

func (ps *parseState) parseUnary() (*ast.Node, error) {
	start := ps.cur()

	switch {
	case ps.atOp("!"), ps.atKeyword("not"):
		ps.advance()

		operand, err := ps.parseUnary()
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeNot, ps.locFrom(start), operand), nil
	case ps.atOp("-"):
		ps.advance()

		operand, err := ps.parseUnary()
		if err != nil {
			return nil, err
		}

		// Fold negation into numeric literals.
		switch operand.Type {
		case ast.TypeInt:
			v, _ := operand.Children[0].(int64)

			return ast.NewAt(ast.TypeInt, ps.locFrom(start), -v), nil
		case ast.TypeFloat:
			v, _ := operand.Children[0].(float64)

			return ast.NewAt(ast.TypeFloat, ps.locFrom(start), -v), nil
		}

		return ast.NewAt(ast.TypeSend, ps.locFrom(start), operand, ast.Symbol("-@")), nil
	default:
		return ps.parsePower()
	}
}

// parsePower is right-associative: 2 ** 3 ** 2 is 2 ** (3 ** 2).
func (ps *parseState) parsePower() (*ast.Node, error) {
	start := ps.cur()

	base, err := ps.parsePostfix()
	if err != nil {
		return nil, err
	}

	if ps.atOp("**") {
		ps.advance()

		exp, err := ps.parseUnary()
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeSend, ps.locFrom(start), base, ast.Symbol("**"), exp), nil
	}

	return base, nil
}

func (ps *parseState) parsePostfix() (*ast.Node, error) {
	start := ps.cur()

	node, err := ps.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case ps.atOp(".") || ps.atOp("&."):
			safe := ps.cur().lit == "&."
			ps.advance()

			node, err = ps.parseMethodCall(start, node, safe)
			if err != nil {
				return nil, err
			}
		case ps.atOp("["):
			ps.advance()

			args, err := ps.parseCallArgs(func() bool { return ps.atOp("]") })
			if err != nil {
				return nil, err
			}

			if err := ps.expectOp("]"); err != nil {
				return nil, err
			}

			children := append([]any{node, ast.Symbol("[]")}, args...)
			node = ast.NewAt(ast.TypeSend, ps.locFrom(start), children...)
		case (ps.atKeyword("do") || ps.atOp("{")) && canAttachBlock(node):
			node, err = ps.parseBlock(start, node)
			if err != nil {
				return nil, err
			}
		default:
			return node, nil
		}
	}
}

// canAttachBlock reports whether a `do` or `{` at the current position is
// an iterator block for the node just parsed (for a `{`, as opposed to a
// hash literal).
func canAttachBlock(node *ast.Node) bool {
	return node.Type == ast.TypeSend || node.Type == ast.TypeCSend
}

func (ps *parseState) parseMethodCall(start token, recv *ast.Node, safe bool) (*ast.Node, error) {
	nameTok := ps.cur()
	if nameTok.typ != tokenIdent && nameTok.typ != tokenConst && nameTok.typ != tokenKeyword {
		return nil, ps.syntaxError("expected method name after .")
	}

	ps.advance()

	typ := ast.TypeSend
	if safe {
		typ = ast.TypeCSend
	}

	hasParens := false

	var args []any

	if ps.atOp("(") {
		ps.advance()

		hasParens = true

		parsed, err := ps.parseCallArgs(func() bool { return ps.atOp(")") })
		if err != nil {
			return nil, err
		}

		if err := ps.expectOp(")"); err != nil {
			return nil, err
		}

		args = parsed
	}

	loc := ps.locFrom(start)
	loc.HasParens = hasParens

	children := append([]any{recv, ast.Symbol(nameTok.lit)}, args...)

	return ast.NewAt(typ, loc, children...), nil
}

// parseCallArgs parses comma-separated arguments until done() is true.
// Trailing keyword arguments are folded into a hash argument.
func (ps *parseState) parseCallArgs(done func() bool) ([]any, error) {
	var args []any

	var pairs []any

	ps.skipNewlinesInsideParens(done)

	for !done() {
		switch {
		case ps.atOp("*"):
			start := ps.advance()

			value, err := ps.parseTernary()
			if err != nil {
				return nil, err
			}

			args = append(args, ast.NewAt(ast.TypeSplat, ps.locFrom(start), value))
		case ps.atOp("&"):
			start := ps.advance()

			value, err := ps.parseTernary()
			if err != nil {
				return nil, err
			}

			args = append(args, ast.NewAt(ast.TypeBlockPass, ps.locFrom(start), value))
		case ps.atKeywordArg():
			pair, err := ps.parseKeywordArg()
			if err != nil {
				return nil, err
			}

			pairs = append(pairs, pair)
		default:
			value, err := ps.parseTernary()
			if err != nil {
				return nil, err
			}

			args = append(args, value)
		}

		if !ps.acceptOp(",") {
			break
		}

		ps.skipNewlinesInsideParens(done)
	}

	if len(pairs) > 0 {
		args = append(args, ast.New(ast.TypeHash, pairs...))
	}

	return args, nil
}

func (ps *parseState) skipNewlinesInsideParens(done func() bool) {
	for ps.cur().typ == tokenNewline && !done() {
		ps.advance()
	}
}

// atKeywordArg detects `name: value` keyword-argument syntax.
func (ps *parseState) atKeywordArg() bool {
	tok := ps.cur()
	if tok.typ != tokenIdent && tok.typ != tokenConst {
		return false
	}

	next := ps.peekNext()

	return next.typ == tokenOp && next.lit == ":"
}

func (ps *parseState) parseKeywordArg() (*ast.Node, error) {
	key := ps.advance()
	ps.advance() // ':'

	value, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypePair, ps.locFrom(key),
		ast.NewAt(ast.TypeSym, ps.locFrom(key), ast.Symbol(key.lit)), value), nil
}

func (ps *parseState) parseBlock(start token, call *ast.Node) (*ast.Node, error) {
	brace := ps.atOp("{")
	ps.advance() // 'do' or '{'

	ps.pushScope(false)
	defer ps.popScope()

	params, err := ps.parseBlockParams()
	if err != nil {
		return nil, err
	}

	var body *ast.Node

	if brace {
		stmts, err := ps.parseStatementsUntil(func() bool { return ps.atOp("}") })
		if err != nil {
			return nil, err
		}

		if err := ps.expectOp("}"); err != nil {
			return nil, err
		}

		body = bodyNode(stmts)
	} else {
		body, err = ps.parseBodyUntilEnd()
		if err != nil {
			return nil, err
		}
	}

	return ast.NewAt(ast.TypeBlock, ps.locFrom(start), call, params, body), nil
}

func (ps *parseState) parseBlockParams() (*ast.Node, error) {
	start := ps.cur()

	if !ps.acceptOp("|") {
		return ast.NewAt(ast.TypeArgs, ps.locFrom(start)), nil
	}

	var children []any

	for !ps.atOp("|") {
		arg, err := ps.parseDefArg()
		if err != nil {
			return nil, err
		}

		children = append(children, arg)

		if !ps.acceptOp(",") {
			break
		}
	}

	if err := ps.expectOp("|"); err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeArgs, ps.locFrom(start), children...), nil
}

func (ps *parseState) parsePrimary() (*ast.Node, error) {
	tok := ps.cur()

	switch tok.typ {
	case tokenInt:
		ps.advance()

		v, err := strconv.ParseInt(strings.ReplaceAll(tok.lit, "_", ""), 10, 64)
		if err != nil {
			return nil, ps.syntaxError("malformed integer literal")
		}

		return ast.NewAt(ast.TypeInt, ps.locFrom(tok), v), nil
	case tokenFloat:
		ps.advance()

		v, err := strconv.ParseFloat(strings.ReplaceAll(tok.lit, "_", ""), 64)
		if err != nil {
			return nil, ps.syntaxError("malformed float literal")
		}

		return ast.NewAt(ast.TypeFloat, ps.locFrom(tok), v), nil
	case tokenString:
		ps.advance()

		return ast.NewAt(ast.TypeStr, ps.locFrom(tok), tok.lit), nil
	case tokenSymbol:
		ps.advance()

		return ast.NewAt(ast.TypeSym, ps.locFrom(tok), ast.Symbol(tok.lit)), nil
	case tokenIVar:
		ps.advance()

		return ast.NewAt(ast.TypeIVar, ps.locFrom(tok), ast.Symbol(tok.lit)), nil
	case tokenGVar:
		ps.advance()

		return ast.NewAt(ast.TypeGVar, ps.locFrom(tok), ast.Symbol(tok.lit)), nil
	case tokenConst:
		return ps.parseConstOrCall()
	case tokenIdent:
		return ps.parseIdentExpr()
	case tokenKeyword:
		return ps.parseKeywordPrimary()
	case tokenOp:
		return ps.parseOpPrimary()
	default:
		return nil, ps.syntaxError("expected expression")
	}
}

func (ps *parseState) parseConstOrCall() (*ast.Node, error) {
	node, err := ps.parseConstRef()
	if err != nil {
		return nil, err
	}

	// Constructor-style call: Name(...) is rare in the subset; Name.new is
	// handled by postfix.
	return node, nil
}

func (ps *parseState) parseIdentExpr() (*ast.Node, error) {
	tok := ps.advance()

	if ps.atOp("(") {
		ps.advance()

		args, err := ps.parseCallArgs(func() bool { return ps.atOp(")") })
		if err != nil {
			return nil, err
		}

		if err := ps.expectOp(")"); err != nil {
			return nil, err
		}

		loc := ps.locFrom(tok)
		loc.HasParens = true

		children := append([]any{nil, ast.Symbol(tok.lit)}, args...)

		return ast.NewAt(ast.TypeSend, loc, children...), nil
	}

	if ps.isLocal(tok.lit) {
		return ast.NewAt(ast.TypeLVar, ps.locFrom(tok), ast.Symbol(tok.lit)), nil
	}

	// Implicit parenthesis-less call.
	return ast.NewAt(ast.TypeSend, ps.locFrom(tok), nil, ast.Symbol(tok.lit)), nil
}

func (ps *parseState) parseKeywordPrimary() (*ast.Node, error) {
	tok := ps.cur()

	switch tok.lit {
	case "true":
		ps.advance()

		return ast.NewAt(ast.TypeTrue, ps.locFrom(tok)), nil
	case "false":
		ps.advance()

		return ast.NewAt(ast.TypeFalse, ps.locFrom(tok)), nil
	case "nil":
		ps.advance()

		return ast.NewAt(ast.TypeNil, ps.locFrom(tok)), nil
	case "self":
		ps.advance()

		return ast.NewAt(ast.TypeSelf, ps.locFrom(tok)), nil
	case "if":
		return ps.parseIf()
	case "unless":
		return ps.parseUnless()
	case "while", "until":
		return ps.parseWhile()
	case "case":
		return ps.parseCase()
	case "begin":
		return ps.parseBeginBlock()
	default:
		return nil, ps.syntaxError("unexpected keyword")
	}
}

func (ps *parseState) parseOpPrimary() (*ast.Node, error) {
	tok := ps.cur()

	switch tok.lit {
	case "(":
		ps.advance()
		ps.skipTerminators()

		inner, err := ps.parseExpression()
		if err != nil {
			return nil, err
		}

		ps.skipTerminators()

		if err := ps.expectOp(")"); err != nil {
			return nil, err
		}

		return inner, nil
	case "[":
		return ps.parseArrayLiteral()
	case "{":
		return ps.parseHashLiteral()
	default:
		return nil, ps.syntaxError("expected expression")
	}
}

func (ps *parseState) parseArrayLiteral() (*ast.Node, error) {
	start := ps.advance() // '['

	args, err := ps.parseCallArgs(func() bool { return ps.atOp("]") })
	if err != nil {
		return nil, err
	}

	if err := ps.expectOp("]"); err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeArray, ps.locFrom(start), args...), nil
}

func (ps *parseState) parseHashLiteral() (*ast.Node, error) {
	start := ps.advance() // '{'
	ps.skipTerminators()

	var pairs []any

	for !ps.atOp("}") {
		pair, err := ps.parseHashPair()
		if err != nil {
			return nil, err
		}

		pairs = append(pairs, pair)

		if !ps.acceptOp(",") {
			break
		}

		ps.skipTerminators()
	}

	ps.skipTerminators()

	if err := ps.expectOp("}"); err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeHash, ps.locFrom(start), pairs...), nil
}

func (ps *parseState) parseHashPair() (*ast.Node, error) {
	start := ps.cur()

	if ps.atKeywordArg() {
		return ps.parseKeywordArg()
	}

	key, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	if err := ps.expectOp("=>"); err != nil {
		return nil, err
	}

	value, err := ps.parseTernary()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypePair, ps.locFrom(start), key, value), nil
}

func (ps *parseState) parseIf() (*ast.Node, error) {
	start := ps.advance() // if

	return ps.parseIfTail(start)
}

// parseIfTail parses `cond [then] body [elsif ... | else body] end`,
// sharing the recursion for elsif chains.
func (ps *parseState) parseIfTail(start token) (*ast.Node, error) {
	cond, err := ps.parseExpression()
	if err != nil {
		return nil, err
	}

	ps.acceptKeyword("then")

	thenStmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("elsif") || ps.atKeyword("else") || ps.atKeyword("end") ||
			ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	var elseBody *ast.Node

	switch {
	case ps.atKeyword("elsif"):
		elsifStart := ps.advance()

		elseBody, err = ps.parseIfTail(elsifStart)
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, bodyNode(thenStmts), elseBody), nil
	case ps.atKeyword("else"):
		ps.advance()

		elseStmts, err := ps.parseStatementsUntil(func() bool {
			return ps.atKeyword("end") || ps.cur().typ == tokenEOF
		})
		if err != nil {
			return nil, err
		}

		elseBody = bodyNode(elseStmts)
	}

	if err := ps.expectKeyword("end"); err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, bodyNode(thenStmts), elseBody), nil
}

func (ps *parseState) parseUnless() (*ast.Node, error) {
	start := ps.advance() // unless

	cond, err := ps.parseExpression()
	if err != nil {
		return nil, err
	}

	ps.acceptKeyword("then")

	bodyStmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("else") || ps.atKeyword("end") || ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	var elseBody *ast.Node

	if ps.acceptKeyword("else") {
		elseStmts, err := ps.parseStatementsUntil(func() bool {
			return ps.atKeyword("end") || ps.cur().typ == tokenEOF
		})
		if err != nil {
			return nil, err
		}

		elseBody = bodyNode(elseStmts)
	}

	if err := ps.expectKeyword("end"); err != nil {
		return nil, err
	}

	// unless keeps the if shape with the body in the false slot.
	return ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, elseBody, bodyNode(bodyStmts)), nil
}

func (ps *parseState) parseWhile() (*ast.Node, error) {
	start := ps.advance() // while or until

	typ := ast.TypeWhile
	if start.lit == "until" {
		typ = ast.TypeUntil
	}

	cond, err := ps.parseExpression()
	if err != nil {
		return nil, err
	}

	ps.acceptKeyword("do")

	body, err := ps.parseBodyUntilEnd()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(typ, ps.locFrom(start), cond, body), nil
}

func (ps *parseState) parseCase() (*ast.Node, error) {
	start := ps.advance() // case

	subject, err := ps.parseExpression()
	if err != nil {
		return nil, err
	}

	ps.skipTerminators()

	children := []any{subject}

	for ps.atKeyword("when") {
		when, err := ps.parseWhen()
		if err != nil {
			return nil, err
		}

		children = append(children, when)
	}

	var elseBody *ast.Node

	if ps.acceptKeyword("else") {
		elseStmts, err := ps.parseStatementsUntil(func() bool {
			return ps.atKeyword("end") || ps.cur().typ == tokenEOF
		})
		if err != nil {
			return nil, err
		}

		elseBody = bodyNode(elseStmts)
	}

	if err := ps.expectKeyword("end"); err != nil {
		return nil, err
	}

	children = append(children, elseBody)

	return ast.NewAt(ast.TypeCase, ps.locFrom(start), children...), nil
}

func (ps *parseState) parseWhen() (*ast.Node, error) {
	start := ps.advance() // when

	var children []any

	for {
		value, err := ps.parseTernary()
		if err != nil {
			return nil, err
		}

		children = append(children, value)

		if !ps.acceptOp(",") {
			break
		}
	}

	ps.acceptKeyword("then")

	stmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("when") || ps.atKeyword("else") || ps.atKeyword("end") ||
			ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	children = append(children, bodyNode(stmts))

	return ast.NewAt(ast.TypeWhen, ps.locFrom(start), children...), nil
}

// parseBeginBlock parses begin/rescue/ensure/end into the kwbegin shape.
func (ps *parseState) parseBeginBlock() (*ast.Node, error) {
	start := ps.advance() // begin

	bodyStmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("rescue") || ps.atKeyword("ensure") || ps.atKeyword("end") ||
			ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	node := bodyNode(bodyStmts)

	if ps.atKeyword("rescue") {
		node, err = ps.parseRescue(node)
		if err != nil {
			return nil, err
		}
	}

	if ps.acceptKeyword("ensure") {
		ensureStmts, err := ps.parseStatementsUntil(func() bool {
			return ps.atKeyword("end") || ps.cur().typ == tokenEOF
		})
		if err != nil {
			return nil, err
		}

		node = ast.New(ast.TypeEnsure, node, bodyNode(ensureStmts))
	}

	if err := ps.expectKeyword("end"); err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeKwBegin, ps.locFrom(start), node), nil
}

func (ps *parseState) parseRescue(body *ast.Node) (*ast.Node, error) {
	children := []any{body}

	for ps.atKeyword("rescue") {
		resbody, err := ps.parseResBody()
		if err != nil {
			return nil, err
		}

		children = append(children, resbody)
	}

	children = append(children, nil)

	return ast.New(ast.TypeRescue, children...), nil
}

func (ps *parseState) parseResBody() (*ast.Node, error) {
	start := ps.advance() // rescue

	var classes *ast.Node

	if ps.cur().typ == tokenConst {
		var classNodes []any

		for {
			ref, err := ps.parseConstRef()
			if err != nil {
				return nil, err
			}

			classNodes = append(classNodes, ref)

			if !ps.acceptOp(",") {
				break
			}
		}

		classes = ast.New(ast.TypeArray, classNodes...)
	}

	var binding *ast.Node

	if ps.acceptOp("=>") {
		nameTok := ps.cur()
		if nameTok.typ != tokenIdent {
			return nil, ps.syntaxError("expected rescue variable name")
		}

		ps.advance()
		ps.declareLocal(nameTok.lit)

		binding = ast.NewAt(ast.TypeLVAsgn, ps.locFrom(nameTok), ast.Symbol(nameTok.lit))
	}

	stmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("rescue") || ps.atKeyword("ensure") || ps.atKeyword("end") ||
			ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeResBody, ps.locFrom(start), classes, binding, bodyNode(stmts)), nil
}
