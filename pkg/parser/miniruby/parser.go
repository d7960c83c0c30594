package miniruby

import (
	"context"
	"fmt"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/parser"
)

// Parser is the pure-Go backend. It is stateless and safe for concurrent
// use; per-parse state lives in parseState.
type Parser struct{}

// New returns the miniruby backend.
func New() *Parser {
	return &Parser{}
}

// Name implements parser.Backend.
func (p *Parser) Name() string {
	return "miniruby"
}

// Parse implements parser.Backend. It never returns a partial tree: any
// syntax error aborts with a *parser.ParseError carrying the position.
func (p *Parser) Parse(_ context.Context, filename string, src []byte) (*ast.Node, []ast.Comment, error) {
	lx := newLexer(src)

	var tokens []token

	for {
		tok, err := lx.next()
		if err != nil {
			lerr := err.(*lexError) //nolint:errcheck,forcetypeassert // lexer only returns *lexError

			return nil, nil, &parser.ParseError{
				File: filename, Line: lerr.line, Col: lerr.col, Msg: lerr.msg,
			}
		}

		tokens = append(tokens, tok)

		if tok.typ == tokenEOF {
			break
		}
	}

	ps := &parseState{file: filename, tokens: tokens}
	ps.pushScope(true)

	root, err := ps.parseProgram()
	if err != nil {
		return nil, nil, err
	}

	return root, convertComments(lx.comments), nil
}

func convertComments(comments []comment) []ast.Comment {
	out := make([]ast.Comment, 0, len(comments))

	for _, c := range comments {
		out = append(out, ast.Comment{
			Text: c.text,
			Loc: &ast.Loc{
				StartLine:   c.line,
				StartCol:    c.col,
				StartOffset: c.offset,
				EndLine:     c.line,
				EndCol:      c.endCol,
				EndOffset:   c.endOffset,
			},
		})
	}

	return out
}

// localScope tracks compile-time local variable resolution. Method scopes
// are boundaries; block scopes see through to the enclosing scope.
type localScope struct {
	names    map[string]struct{}
	boundary bool
}

type parseState struct {
	file   string
	tokens []token
	idx    int
	scopes []localScope
}

func (ps *parseState) pushScope(boundary bool) {
	ps.scopes = append(ps.scopes, localScope{
		names:    make(map[string]struct{}),
		boundary: boundary,
	})
}

func (ps *parseState) popScope() {
	ps.scopes = ps.scopes[:len(ps.scopes)-1]
}

func (ps *parseState) declareLocal(name string) {
	ps.scopes[len(ps.scopes)-1].names[name] = struct{}{}
}

func (ps *parseState) isLocal(name string) bool {
	for i := len(ps.scopes) - 1; i >= 0; i-- {
		if _, ok := ps.scopes[i].names[name]; ok {
			return true
		}

		if ps.scopes[i].boundary {
			return false
		}
	}

	return false
}

func (ps *parseState) cur() token {
	return ps.tokens[ps.idx]
}

func (ps *parseState) peekNext() token {
	if ps.idx+1 < len(ps.tokens) {
		return ps.tokens[ps.idx+1]
	}

	return ps.tokens[len(ps.tokens)-1]
}

func (ps *parseState) advance() token {
	tok := ps.tokens[ps.idx]
	if ps.idx < len(ps.tokens)-1 {
		ps.idx++
	}

	return tok
}

func (ps *parseState) prev() token {
	if ps.idx == 0 {
		return ps.tokens[0]
	}

	return ps.tokens[ps.idx-1]
}

func (ps *parseState) atOp(lit string) bool {
	tok := ps.cur()

	return tok.typ == tokenOp && tok.lit == lit
}

func (ps *parseState) atKeyword(lit string) bool {
	tok := ps.cur()

	return tok.typ == tokenKeyword && tok.lit == lit
}

func (ps *parseState) acceptOp(lit string) bool {
	if ps.atOp(lit) {
		ps.advance()

		return true
	}

	return false
}

func (ps *parseState) acceptKeyword(lit string) bool {
	if ps.atKeyword(lit) {
		ps.advance()

		return true
	}

	return false
}

func (ps *parseState) expectOp(lit string) error {
	if !ps.acceptOp(lit) {
		return ps.syntaxError(fmt.Sprintf("expected %q", lit))
	}

	return nil
}

func (ps *parseState) expectKeyword(lit string) error {
	if !ps.acceptKeyword(lit) {
		return ps.syntaxError(fmt.Sprintf("expected %q", lit))
	}

	return nil
}

func (ps *parseState) syntaxError(msg string) error {
	tok := ps.cur()

	what := tok.lit
	if tok.typ == tokenEOF {
		what = "end of input"
	} else if what == "\n" {
		what = "newline"
	}

	return &parser.ParseError{
		File: ps.file,
		Line: tok.line,
		Col:  tok.col,
		Msg:  fmt.Sprintf("%s, found %q", msg, what),
	}
}

// skipTerminators consumes newlines and semicolons.
func (ps *parseState) skipTerminators() {
	for {
		if ps.cur().typ == tokenNewline {
			ps.advance()

			continue
		}

		if ps.atOp(";") {
			ps.advance()

			continue
		}

		return
	}
}

func (ps *parseState) atTerminator() bool {
	return ps.cur().typ == tokenNewline || ps.cur().typ == tokenEOF || ps.atOp(";")
}

// locFrom builds a Loc spanning from the start token to the most recently
// consumed token.
func (ps *parseState) locFrom(start token) *ast.Loc {
	end := ps.prev()

	return &ast.Loc{
		StartLine:   start.line,
		StartCol:    start.col,
		StartOffset: start.offset,
		EndLine:     end.endLine,
		EndCol:      end.endCol,
		EndOffset:   end.endOffset,
	}
}

func (ps *parseState) parseProgram() (*ast.Node, error) {
	start := ps.cur()

	stmts, err := ps.parseStatementsUntil(func() bool { return ps.cur().typ == tokenEOF })
	if err != nil {
		return nil, err
	}

	switch len(stmts) {
	case 0:
		return ast.NewAt(ast.TypeBegin, ps.locFrom(start)), nil
	case 1:
		return stmts[0], nil
	default:
		children := make([]any, len(stmts))
		for i, s := range stmts {
			children[i] = s
		}

		return ast.NewAt(ast.TypeBegin, ps.locFrom(start), children...), nil
	}
}

func (ps *parseState) parseStatementsUntil(done func() bool) ([]*ast.Node, error) {
	var stmts []*ast.Node

	ps.skipTerminators()

	for !done() {
		stmt, err := ps.parseStatement()
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, stmt)

		if !ps.atTerminator() && !done() {
			return nil, ps.syntaxError("expected newline or semicolon after statement")
		}

		ps.skipTerminators()
	}

	return stmts, nil
}

// bodyNode folds a statement list into a single node: nil when empty, the
// statement itself when single, a begin node otherwise.
func bodyNode(stmts []*ast.Node) *ast.Node {
	switch len(stmts) {
	case 0:
		return nil
	case 1:
		return stmts[0]
	default:
		children := make([]any, len(stmts))
		for i, s := range stmts {
			children[i] = s
		}

		return ast.New(ast.TypeBegin, children...)
	}
}

func (ps *parseState) parseStatement() (*ast.Node, error) {
	stmt, err := ps.parseStatementBare()
	if err != nil {
		return nil, err
	}

	return ps.applyModifiers(stmt)
}

// applyModifiers handles trailing if/unless/while/until modifiers.
func (ps *parseState) applyModifiers(stmt *ast.Node) (*ast.Node, error) {
	for {
		switch {
		case ps.atKeyword("if"):
			start := ps.advance()

			cond, err := ps.parseExpression()
			if err != nil {
				return nil, err
			}

			stmt = ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, stmt, nil)
		case ps.atKeyword("unless"):
			start := ps.advance()

			cond, err := ps.parseExpression()
			if err != nil {
				return nil, err
			}

			stmt = ast.NewAt(ast.TypeIf, ps.locFrom(start), cond, nil, stmt)
		case ps.atKeyword("while"):
			start := ps.advance()

			cond, err := ps.parseExpression()
			if err != nil {
				return nil, err
			}

			stmt = ast.NewAt(ast.TypeWhile, ps.locFrom(start), cond, stmt)
		case ps.atKeyword("until"):
			start := ps.advance()

			cond, err := ps.parseExpression()
			if err != nil {
				return nil, err
			}

			stmt = ast.NewAt(ast.TypeUntil, ps.locFrom(start), cond, stmt)
		default:
			return stmt, nil
		}
	}
}

func (ps *parseState) parseStatementBare() (*ast.Node, error) {
	tok := ps.cur()

	if tok.typ == tokenKeyword {
		switch tok.lit {
		case "def":
			return ps.parseDef()
		case "class":
			return ps.parseClass()
		case "module":
			return ps.parseModule()
		case "return", "break", "next":
			return ps.parseJump()
		}
	}

	// Command call: a bare non-local identifier followed, after
	// whitespace, by the start of an expression on the same line, e.g.
	// `puts x`. Adjacency matters: `a[1]` is an index, `a [1]` a call.
	if tok.typ == tokenIdent && !ps.isLocal(tok.lit) &&
		ps.peekNext().offset > tok.endOffset && ps.startsCommandArg(ps.peekNext()) {
		return ps.parseCommand()
	}

	return ps.parseExpression()
}

// startsCommandArg reports whether a token can begin a paren-less command
// argument.
func (ps *parseState) startsCommandArg(tok token) bool {
	switch tok.typ {
	case tokenInt, tokenFloat, tokenString, tokenSymbol, tokenIdent,
		tokenConst, tokenIVar, tokenGVar:
		return true
	case tokenKeyword:
		switch tok.lit {
		case "true", "false", "nil", "self", "not":
			return true
		}

		return false
	case tokenOp:
		switch tok.lit {
		case "[", "*", "&":
			return true
		}

		return false
	default:
		return false
	}
}

func (ps *parseState) parseCommand() (*ast.Node, error) {
	name := ps.advance()

	args, err := ps.parseCallArgs(func() bool { return ps.atTerminator() || ps.atModifierKeyword() })
	if err != nil {
		return nil, err
	}

	children := append([]any{nil, ast.Symbol(name.lit)}, args...)

	return ast.NewAt(ast.TypeSend, ps.locFrom(name), children...), nil
}

func (ps *parseState) atModifierKeyword() bool {
	return ps.atKeyword("if") || ps.atKeyword("unless") ||
		ps.atKeyword("while") || ps.atKeyword("until") ||
		ps.atKeyword("do") || ps.atKeyword("then") || ps.atKeyword("end")
}

func (ps *parseState) parseJump() (*ast.Node, error) {
	start := ps.advance()

	var typ ast.Type

	switch start.lit {
	case "return":
		typ = ast.TypeReturn
	case "break":
		typ = ast.TypeBreak
	default:
		typ = ast.TypeNext
	}

	if ps.atTerminator() || ps.atModifierKeyword() {
		return ast.NewAt(typ, ps.locFrom(start)), nil
	}

	value, err := ps.parseExpression()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(typ, ps.locFrom(start), value), nil
}

func (ps *parseState) parseDef() (*ast.Node, error) {
	start := ps.advance() // def

	selfMethod := false
	if ps.atKeyword("self") && ps.peekNext().typ == tokenOp && ps.peekNext().lit == "." {
		ps.advance()
		ps.advance()

		selfMethod = true
	}

	nameTok := ps.cur()
	if nameTok.typ != tokenIdent && nameTok.typ != tokenConst {
		return nil, ps.syntaxError("expected method name")
	}

	ps.advance()

	name := nameTok.lit

	// Operator method names like []= are out of the mini subset.
	if ps.atOp("=") && !selfMethod {
		ps.advance()

		name += "="
	}

	ps.pushScope(true)
	defer ps.popScope()

	args, err := ps.parseDefArgs()
	if err != nil {
		return nil, err
	}

	body, err := ps.parseBodyUntilEnd()
	if err != nil {
		return nil, err
	}

	loc := ps.locFrom(start)

	if selfMethod {
		return ast.NewAt(ast.TypeDefS, loc, ast.New(ast.TypeSelf), ast.Symbol(name), args, body), nil
	}

	return ast.NewAt(ast.TypeDef, loc, ast.Symbol(name), args, body), nil
}

func (ps *parseState) parseDefArgs() (*ast.Node, error) {
	start := ps.cur()
	parens := ps.acceptOp("(")

	var children []any

	if !parens && ps.atTerminator() {
		return ast.NewAt(ast.TypeArgs, ps.locFrom(start)), nil
	}

	done := func() bool {
		if parens {
			return ps.atOp(")")
		}

		return ps.atTerminator()
	}

	for !done() {
		arg, err := ps.parseDefArg()
		if err != nil {
			return nil, err
		}

		children = append(children, arg)

		if !ps.acceptOp(",") {
			break
		}

		ps.skipTerminators()
	}

	if parens {
		if err := ps.expectOp(")"); err != nil {
			return nil, err
		}
	}

	return ast.NewAt(ast.TypeArgs, ps.locFrom(start), children...), nil
}

func (ps *parseState) parseDefArg() (*ast.Node, error) {
	start := ps.cur()

	if ps.acceptOp("*") {
		nameTok := ps.cur()
		if nameTok.typ != tokenIdent {
			return nil, ps.syntaxError("expected splat parameter name")
		}

		ps.advance()
		ps.declareLocal(nameTok.lit)

		return ast.NewAt(ast.TypeRestArg, ps.locFrom(start), ast.Symbol(nameTok.lit)), nil
	}

	if ps.acceptOp("&") {
		nameTok := ps.cur()
		if nameTok.typ != tokenIdent {
			return nil, ps.syntaxError("expected block parameter name")
		}

		ps.advance()
		ps.declareLocal(nameTok.lit)

		return ast.NewAt(ast.TypeBlockArg, ps.locFrom(start), ast.Symbol(nameTok.lit)), nil
	}

	nameTok := ps.cur()
	if nameTok.typ != tokenIdent {
		return nil, ps.syntaxError("expected parameter name")
	}

	ps.advance()
	ps.declareLocal(nameTok.lit)

	if ps.acceptOp("=") {
		deflt, err := ps.parseTernary()
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeOptArg, ps.locFrom(start), ast.Symbol(nameTok.lit), deflt), nil
	}

	return ast.NewAt(ast.TypeArg, ps.locFrom(start), ast.Symbol(nameTok.lit)), nil
}

// parseBodyUntilEnd parses statements up to the matching `end` keyword and
// consumes it.
func (ps *parseState) parseBodyUntilEnd() (*ast.Node, error) {
	stmts, err := ps.parseStatementsUntil(func() bool {
		return ps.atKeyword("end") || ps.cur().typ == tokenEOF
	})
	if err != nil {
		return nil, err
	}

	if err := ps.expectKeyword("end"); err != nil {
		return nil, err
	}

	return bodyNode(stmts), nil
}

func (ps *parseState) parseClass() (*ast.Node, error) {
	start := ps.advance() // class

	name, err := ps.parseConstRef()
	if err != nil {
		return nil, err
	}

	var super *ast.Node

	if ps.acceptOp("<") {
		super, err = ps.parseConstRef()
		if err != nil {
			return nil, err
		}
	}

	ps.pushScope(true)
	defer ps.popScope()

	body, err := ps.parseBodyUntilEnd()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeClass, ps.locFrom(start), name, super, body), nil
}

func (ps *parseState) parseModule() (*ast.Node, error) {
	start := ps.advance() // module

	name, err := ps.parseConstRef()
	if err != nil {
		return nil, err
	}

	ps.pushScope(true)
	defer ps.popScope()

	body, err := ps.parseBodyUntilEnd()
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeModule, ps.locFrom(start), name, body), nil
}

// parseConstRef parses Name or Scope::Name chains into nested const nodes.
func (ps *parseState) parseConstRef() (*ast.Node, error) {
	tok := ps.cur()
	if tok.typ != tokenConst {
		return nil, ps.syntaxError("expected constant name")
	}

	ps.advance()

	node := ast.NewAt(ast.TypeConst, ps.locFrom(tok), nil, ast.Symbol(tok.lit))

	for ps.atOp("::") {
		ps.advance()

		next := ps.cur()
		if next.typ != tokenConst {
			return nil, ps.syntaxError("expected constant name after ::")
		}

		ps.advance()

		node = ast.NewAt(ast.TypeConst, ps.locFrom(tok), node, ast.Symbol(next.lit))
	}

	return node, nil
}
