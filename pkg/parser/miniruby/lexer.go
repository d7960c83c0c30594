// Package miniruby is a pure-Go parser backend covering the core Ruby
// statement and expression subset. It exists so the pipeline can be tested
// without cgo and proves that parser back-ends are substitutable: it emits
// the same canonical vocabulary as the tree-sitter backend.
package miniruby

import (
	"strings"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNewline
	tokenInt
	tokenFloat
	tokenString
	tokenSymbol
	tokenRegexp
	tokenIdent
	tokenConst
	tokenIVar
	tokenGVar
	tokenKeyword
	tokenOp
)

// token carries the lexeme and its 1-based source position.
type token struct {
	typ       tokenType
	lit       string
	line      int
	col       int
	offset    int
	endLine   int
	endCol    int
	endOffset int
}

var keywords = map[string]struct{}{
	"def": {}, "end": {}, "if": {}, "elsif": {}, "else": {}, "unless": {},
	"while": {}, "until": {}, "case": {}, "when": {}, "then": {},
	"class": {}, "module": {}, "return": {}, "break": {}, "next": {},
	"begin": {}, "rescue": {}, "ensure": {}, "do": {}, "true": {},
	"false": {}, "nil": {}, "self": {}, "and": {}, "or": {}, "not": {},
}

// lexer scans the source into tokens, collecting comments on the side.
type lexer struct {
	src      []byte
	pos      int
	line     int
	col      int
	comments []comment
}

type comment struct {
	text      string
	line      int
	col       int
	offset    int
	endOffset int
	endCol    int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (lx *lexer) errorf(line, col int, msg string) *lexError {
	return &lexError{line: line, col: col, msg: msg}
}

type lexError struct {
	line int
	col  int
	msg  string
}

func (e *lexError) Error() string {
	return e.msg
}

func (lx *lexer) peek() byte {
	if lx.pos >= len(lx.src) {
		return 0
	}

	return lx.src[lx.pos]
}

func (lx *lexer) peekAt(n int) byte {
	if lx.pos+n >= len(lx.src) {
		return 0
	}

	return lx.src[lx.pos+n]
}

func (lx *lexer) advance() byte {
	ch := lx.src[lx.pos]
	lx.pos++

	if ch == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}

	return ch
}

// next returns the next token, skipping horizontal whitespace and
// recording comments.
func (lx *lexer) next() (token, error) {
	for {
		lx.skipSpaces()

		if lx.pos >= len(lx.src) {
			return lx.makeToken(tokenEOF, ""), nil
		}

		ch := lx.peek()

		switch {
		case ch == '#':
			lx.scanComment()
		case ch == '\n':
			tok := lx.startToken(tokenNewline)
			lx.advance()

			return lx.finishToken(tok, "\n"), nil
		case ch >= '0' && ch <= '9':
			return lx.scanNumber()
		case ch == '"' || ch == '\'':
			return lx.scanString(ch)
		case ch == ':' && isIdentStart(lx.peekAt(1)):
			return lx.scanSymbol()
		case ch == '@':
			return lx.scanIVar()
		case ch == '$':
			return lx.scanGVar()
		case isIdentStart(ch):
			return lx.scanIdent()
		default:
			return lx.scanOperator()
		}
	}
}

func (lx *lexer) skipSpaces() {
	for lx.pos < len(lx.src) {
		ch := lx.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' {
			lx.advance()

			continue
		}

		if ch == '\\' && lx.peekAt(1) == '\n' {
			lx.advance()
			lx.advance()

			continue
		}

		break
	}
}

func (lx *lexer) startToken(typ tokenType) token {
	return token{typ: typ, line: lx.line, col: lx.col, offset: lx.pos}
}

func (lx *lexer) finishToken(tok token, lit string) token {
	tok.lit = lit
	tok.endLine = lx.line
	tok.endCol = lx.col
	tok.endOffset = lx.pos

	return tok
}

func (lx *lexer) makeToken(typ tokenType, lit string) token {
	tok := lx.startToken(typ)

	return lx.finishToken(tok, lit)
}

func (lx *lexer) scanComment() {
	start := comment{line: lx.line, col: lx.col, offset: lx.pos}

	var buf strings.Builder

	for lx.pos < len(lx.src) && lx.peek() != '\n' {
		buf.WriteByte(lx.advance())
	}

	start.text = buf.String()
	start.endOffset = lx.pos
	start.endCol = lx.col
	lx.comments = append(lx.comments, start)
}

func (lx *lexer) scanNumber() (token, error) {
	tok := lx.startToken(tokenInt)

	var buf strings.Builder

	for lx.pos < len(lx.src) && (isDigit(lx.peek()) || lx.peek() == '_') {
		buf.WriteByte(lx.advance())
	}

	if lx.peek() == '.' && isDigit(lx.peekAt(1)) {
		tok.typ = tokenFloat

		buf.WriteByte(lx.advance())

		for lx.pos < len(lx.src) && (isDigit(lx.peek()) || lx.peek() == '_') {
			buf.WriteByte(lx.advance())
		}
	}

	return lx.finishToken(tok, buf.String()), nil
}

func (lx *lexer) scanString(quote byte) (token, error) {
	tok := lx.startToken(tokenString)
	startLine, startCol := lx.line, lx.col
	lx.advance()

	var buf strings.Builder

	for {
		if lx.pos >= len(lx.src) || lx.peek() == '\n' {
			return token{}, lx.errorf(startLine, startCol, "unterminated string literal")
		}

		ch := lx.advance()
		if ch == quote {
			break
		}

		if ch == '\\' && quote == '"' {
			buf.WriteByte(unescape(lx.advance()))

			continue
		}

		if ch == '\\' && quote == '\'' && (lx.peek() == '\'' || lx.peek() == '\\') {
			buf.WriteByte(lx.advance())

			continue
		}

		buf.WriteByte(ch)
	}

	return lx.finishToken(tok, buf.String()), nil
}

func unescape(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return ch
	}
}

func (lx *lexer) scanSymbol() (token, error) {
	tok := lx.startToken(tokenSymbol)
	lx.advance() // ':'

	var buf strings.Builder

	for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
		buf.WriteByte(lx.advance())
	}

	if lx.peek() == '?' || lx.peek() == '!' || lx.peek() == '=' {
		buf.WriteByte(lx.advance())
	}

	return lx.finishToken(tok, buf.String()), nil
}

func (lx *lexer) scanIVar() (token, error) {
	tok := lx.startToken(tokenIVar)
	lx.advance() // '@'

	var buf strings.Builder

	for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
		buf.WriteByte(lx.advance())
	}

	if buf.Len() == 0 {
		return token{}, lx.errorf(tok.line, tok.col, "malformed instance variable")
	}

	return lx.finishToken(tok, buf.String()), nil
}

func (lx *lexer) scanGVar() (token, error) {
	tok := lx.startToken(tokenGVar)
	lx.advance() // '$'

	var buf strings.Builder

	for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
		buf.WriteByte(lx.advance())
	}

	if buf.Len() == 0 {
		return token{}, lx.errorf(tok.line, tok.col, "malformed global variable")
	}

	return lx.finishToken(tok, buf.String()), nil
}

func (lx *lexer) scanIdent() (token, error) {
	tok := lx.startToken(tokenIdent)

	var buf strings.Builder

	for lx.pos < len(lx.src) && isIdentPart(lx.peek()) {
		buf.WriteByte(lx.advance())
	}

	// Predicate and bang method names.
	if lx.peek() == '?' || lx.peek() == '!' {
		if lx.peek() != '!' || lx.peekAt(1) != '=' {
			buf.WriteByte(lx.advance())
		}
	}

	lit := buf.String()

	if _, ok := keywords[lit]; ok {
		tok.typ = tokenKeyword
	} else if lit[0] >= 'A' && lit[0] <= 'Z' {
		tok.typ = tokenConst
	}

	return lx.finishToken(tok, lit), nil
}

// multi-character operators, longest first.
var operators = []string{
	"**=", "<=>", "===", "...", "||=", "&&=",
	"**", "==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=",
	"%=", "=>", "::", "&.", "..", "<<",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "&", "|", "^", "?",
	":", ".", ",", ";", "(", ")", "[", "]", "{", "}",
}

func (lx *lexer) scanOperator() (token, error) {
	tok := lx.startToken(tokenOp)
	rest := lx.src[lx.pos:]

	for _, op := range operators {
		if len(rest) >= len(op) && string(rest[:len(op)]) == op {
			for range op {
				lx.advance()
			}

			return lx.finishToken(tok, op), nil
		}
	}

	return token{}, lx.errorf(lx.line, lx.col, "unexpected character "+string(lx.peek()))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
