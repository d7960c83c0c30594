// Package serializer renders the rewritten tree as JavaScript source,
// optionally accumulating a source map while it writes.
package serializer

import (
	"fmt"
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/scope"
	"github.com/rbconv/rbconv/pkg/sourcemap"
)

// UnsupportedNodeError reports a construct that cannot be expressed at the
// configured language level. Serialization is all-or-nothing: the first
// unsupported node aborts the render.
type UnsupportedNodeError struct {
	NodeType ast.Type
	Line     int
	Col      int
	Reason   string
}

func (e *UnsupportedNodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cannot serialize %s node at %d:%d: %s", e.NodeType, e.Line, e.Col, e.Reason)
	}

	return fmt.Sprintf("cannot serialize %s node: %s", e.NodeType, e.Reason)
}

// unsupported builds the error for a node that cannot be rendered. A nil
// node (a missing required child) yields an error without position.
func unsupported(n *ast.Node, reason string) *UnsupportedNodeError {
	err := &UnsupportedNodeError{Reason: reason}
	if n == nil {
		return err
	}

	err.NodeType = n.Type

	if n.Loc != nil {
		err.Line = n.Loc.StartLine
		err.Col = n.Loc.StartCol
	}

	return err
}

// Options configure a render.
type Options struct {
	ESLevel dialect.ESLevel

	// SourceFile and OutputFile name the original and generated files in
	// the source map. SourceContent, when non-nil, is embedded.
	SourceFile    string
	OutputFile    string
	SourceContent []byte

	// WithSourceMap enables mapping accumulation during the render.
	WithSourceMap bool

	// Indent is the per-level indentation unit; two spaces when empty.
	Indent string

	// Quote selects the string literal style: "double" (default) or
	// "single".
	Quote string

	// OmitSemicolons drops statement terminators.
	OmitSemicolons bool
}

// Output is the result of a render.
type Output struct {
	Code     string
	Map      *sourcemap.Map
	Warnings []string
}

// Serializer renders one tree. It is single-use: create a new one per
// render.
type Serializer struct {
	opts   Options
	indent string

	buf   strings.Builder
	col   int
	depth int

	gen       *sourcemap.Generator
	srcIndex  int
	comments  []ast.Comment
	commentAt int

	locals   *scope.Tracker
	warnings []string
}

// New returns a serializer for the given options.
func New(opts Options) *Serializer {
	s := &Serializer{opts: opts, indent: opts.Indent, locals: scope.NewTracker()}

	if s.indent == "" {
		s.indent = "  "
	}

	if opts.WithSourceMap {
		s.gen = sourcemap.NewGenerator(opts.OutputFile)

		var content *string

		if opts.SourceContent != nil {
			text := string(opts.SourceContent)
			content = &text
		}

		s.srcIndex = s.gen.AddSource(opts.SourceFile, content)
		s.gen.AddLine()
	}

	return s
}

// Render writes the tree and returns the generated code. Comments are
// re-attached ahead of the statement that follows them in the source.
func (s *Serializer) Render(root *ast.Node, comments []ast.Comment) (*Output, error) {
	s.comments = comments

	if err := s.stmts(root); err != nil {
		return nil, err
	}

	s.flushComments(-1)

	out := &Output{Code: s.buf.String(), Warnings: s.warnings}

	if s.gen != nil {
		out.Map = s.gen.Map()
	}

	return out, nil
}

func (s *Serializer) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (s *Serializer) write(text string) {
	s.buf.WriteString(text)
	s.col += utf16Len(text)
}

// utf16Len counts UTF-16 code units, the unit source map columns are
// expressed in.
func utf16Len(text string) int {
	units := 0

	for _, r := range text {
		units++

		if r > 0xFFFF {
			units++
		}
	}

	return units
}

func (s *Serializer) newline() {
	s.buf.WriteByte('\n')
	s.col = 0

	if s.gen != nil {
		s.gen.AddLine()
	}
}

func (s *Serializer) writeIndent() {
	for range s.depth {
		s.write(s.indent)
	}
}

// semi terminates a statement per the semicolon policy.
func (s *Serializer) semi() {
	if !s.opts.OmitSemicolons {
		s.write(";")
	}
}

// mapNode records a source mapping at the current output position for a
// parsed node. Synthetic nodes map nowhere.
func (s *Serializer) mapNode(n *ast.Node) {
	if s.gen == nil || n.Loc == nil {
		return
	}

	// Columns advance monotonically within a line, so ordering holds.
	_ = s.gen.AddMapping(s.col, s.srcIndex, n.Loc.StartLine-1, n.Loc.StartCol-1)
}

// flushComments emits source comments that appear before the given byte
// offset; -1 flushes the rest.
func (s *Serializer) flushComments(before int) {
	for s.commentAt < len(s.comments) {
		c := s.comments[s.commentAt]
		if before >= 0 && c.Loc != nil && c.Loc.StartOffset >= before {
			return
		}

		s.writeIndent()
		s.write("//" + strings.TrimPrefix(c.Text, "#"))
		s.newline()
		s.commentAt++
	}
}

// stmts renders a node in statement position, flattening begin sequences.
func (s *Serializer) stmts(n *ast.Node) error {
	if n == nil {
		return nil
	}

	if n.Type == ast.TypeBegin {
		for _, child := range n.Children {
			stmt, ok := child.(*ast.Node)
			if !ok {
				return unsupported(n, "non-node child in statement sequence")
			}

			if err := s.stmts(stmt); err != nil {
				return err
			}
		}

		return nil
	}

	return s.stmt(n)
}

//nolint:cyclop // statement dispatch is one flat switch
func (s *Serializer) stmt(n *ast.Node) error {
	if n.Loc != nil {
		s.flushComments(n.Loc.StartOffset)
	}

	switch n.Type {
	case ast.TypeIf:
		return s.ifStmt(n)
	case ast.TypeWhile, ast.TypeUntil:
		return s.whileStmt(n)
	case ast.TypeCase:
		return s.caseStmt(n)
	case ast.TypeDef, ast.TypeDefS:
		return s.defStmt(n)
	case ast.TypeCAsgn:
		return s.casgnStmt(n)
	case ast.TypeClass:
		return s.classStmt(n)
	case ast.TypeModule:
		return s.moduleStmt(n)
	case ast.TypeKwBegin:
		return s.kwbeginStmt(n)
	case ast.TypeReturn, ast.TypeBreak, ast.TypeNext:
		return s.jumpStmt(n)
	case ast.TypeLVAsgn:
		return s.lvasgnStmt(n)
	default:
		s.writeIndent()
		s.mapNode(n)

		if err := s.expr(n, precSequence); err != nil {
			return err
		}

		s.semi()
		s.newline()

		return nil
	}
}

// lvasgnStmt emits a declaration keyword the first time a local is
// assigned in its scope.
func (s *Serializer) lvasgnStmt(n *ast.Node) error {
	name := string(n.ChildSymbol(0))

	s.writeIndent()
	s.mapNode(n)

	if !s.locals.IsLocal(name) {
		s.locals.DeclareLocal(name)
		s.write(s.declKeyword() + " ")
	}

	s.write(jsName(name) + " = ")

	if len(n.Children) > 1 {
		if err := s.exprChild(n, 1, precAssign); err != nil {
			return err
		}
	} else {
		s.write("undefined")
	}

	s.semi()
	s.newline()

	return nil
}

func (s *Serializer) declKeyword() string {
	if s.opts.ESLevel.AtLeast(dialect.ES2015) {
		return "let"
	}

	return "var"
}

func (s *Serializer) jumpStmt(n *ast.Node) error {
	s.writeIndent()
	s.mapNode(n)

	switch n.Type {
	case ast.TypeReturn:
		s.write("return")
	case ast.TypeBreak:
		s.write("break")
	default:
		s.write("continue")
	}

	if len(n.Children) > 0 {
		if n.Type != ast.TypeReturn {
			return unsupported(n, "value-carrying "+string(n.Type)+" has no JavaScript equivalent")
		}

		s.write(" ")

		if err := s.exprChild(n, 0, precAssign); err != nil {
			return err
		}
	}

	s.semi()
	s.newline()

	return nil
}

func (s *Serializer) ifStmt(n *ast.Node) error {
	s.writeIndent()
	s.mapNode(n)

	return s.ifChain(n)
}

// ifChain renders an if and its else-if tail; the head is already
// positioned, so chained links write no indent of their own.
func (s *Serializer) ifChain(n *ast.Node) error {
	cond := n.ChildNode(0)
	thenBody := n.ChildNode(1)
	elseBody := n.ChildNode(2)

	// unless keeps the if shape with an empty true branch.
	negate := false
	if thenBody == nil && elseBody != nil {
		negate = true
		thenBody, elseBody = elseBody, nil
	}

	s.write("if (")

	if err := s.condition(cond, negate); err != nil {
		return err
	}

	s.write(") {")
	s.newline()

	if err := s.renderBlockBody(thenBody); err != nil {
		return err
	}

	s.writeIndent()
	s.write("}")

	if elseBody != nil {
		if elseBody.Type == ast.TypeIf {
			s.write(" else ")

			return s.ifChain(elseBody)
		}

		s.write(" else {")
		s.newline()

		if err := s.renderBlockBody(elseBody); err != nil {
			return err
		}

		s.writeIndent()
		s.write("}")
	}

	s.newline()

	return nil
}

func (s *Serializer) condition(cond *ast.Node, negate bool) error {
	if !negate {
		return s.expr(cond, precSequence)
	}

	s.write("!")

	return s.expr(cond, precUnary)
}

func (s *Serializer) whileStmt(n *ast.Node) error {
	s.writeIndent()
	s.mapNode(n)
	s.write("while (")

	// until is while with the condition negated.
	if err := s.condition(n.ChildNode(0), n.Type == ast.TypeUntil); err != nil {
		return err
	}

	s.write(") {")
	s.newline()

	if err := s.renderBlockBody(n.ChildNode(1)); err != nil {
		return err
	}

	s.writeIndent()
	s.write("}")
	s.newline()

	return nil
}

func (s *Serializer) caseStmt(n *ast.Node) error {
	if len(n.Children) < 2 {
		return unsupported(n, "malformed case")
	}

	s.writeIndent()
	s.mapNode(n)
	s.write("switch (")

	if err := s.exprChild(n, 0, precSequence); err != nil {
		return err
	}

	s.write(") {")
	s.newline()

	s.depth++

	for _, child := range n.Children[1 : len(n.Children)-1] {
		when, ok := child.(*ast.Node)
		if !ok || when.Type != ast.TypeWhen {
			return unsupported(n, "malformed when clause")
		}

		if err := s.whenClause(when); err != nil {
			return err
		}
	}

	if elseBody := n.ChildNode(len(n.Children) - 1); elseBody != nil {
		s.writeIndent()
		s.write("default:")
		s.newline()

		if err := s.renderBlockBody(elseBody); err != nil {
			return err
		}
	}

	s.depth--
	s.writeIndent()
	s.write("}")
	s.newline()

	return nil
}

func (s *Serializer) whenClause(n *ast.Node) error {
	for _, child := range n.Children[:len(n.Children)-1] {
		value, ok := child.(*ast.Node)
		if !ok {
			return unsupported(n, "malformed when value")
		}

		s.writeIndent()
		s.write("case ")

		if err := s.expr(value, precSequence); err != nil {
			return err
		}

		s.write(":")
		s.newline()
	}

	whenBody := n.ChildNode(len(n.Children) - 1)

	if err := s.renderBlockBody(whenBody); err != nil {
		return err
	}

	s.depth++
	s.writeIndent()
	s.write("break")
	s.semi()
	s.newline()
	s.depth--

	return nil
}

func (s *Serializer) kwbeginStmt(n *ast.Node) error {
	inner := n.ChildNode(0)
	if inner == nil {
		return nil
	}

	switch inner.Type {
	case ast.TypeEnsure, ast.TypeRescue:
		return s.tryStmt(inner)
	default:
		return s.stmts(inner)
	}
}

// tryStmt renders ensure and rescue nesting as try/catch/finally.
func (s *Serializer) tryStmt(n *ast.Node) error {
	rescueNode := n

	var ensureBody *ast.Node

	if n.Type == ast.TypeEnsure {
		rescueNode = n.ChildNode(0)
		ensureBody = n.ChildNode(1)
	}

	s.writeIndent()
	s.mapNode(n)
	s.write("try {")
	s.newline()

	var resbodies []*ast.Node

	if rescueNode != nil && rescueNode.Type == ast.TypeRescue {
		if err := s.renderBlockBody(rescueNode.ChildNode(0)); err != nil {
			return err
		}

		for _, child := range rescueNode.Children[1 : len(rescueNode.Children)-1] {
			resbody, ok := child.(*ast.Node)
			if !ok || resbody.Type != ast.TypeResBody {
				return unsupported(rescueNode, "malformed rescue clause")
			}

			resbodies = append(resbodies, resbody)
		}
	} else if err := s.renderBlockBody(rescueNode); err != nil {
		return err
	}

	s.writeIndent()
	s.write("}")

	if len(resbodies) > 0 {
		if err := s.catchClause(resbodies); err != nil {
			return err
		}
	}

	if ensureBody != nil {
		s.write(" finally {")
		s.newline()

		if err := s.renderBlockBody(ensureBody); err != nil {
			return err
		}

		s.writeIndent()
		s.write("}")
	}

	s.newline()

	return nil
}

func (s *Serializer) catchClause(resbodies []*ast.Node) error {
	binding := catchBinding(resbodies)

	s.write(" catch (" + binding + ") {")
	s.newline()

	s.depth++

	guarded := classGuards(resbodies)

	for i, resbody := range resbodies {
		if err := s.catchBody(resbody, binding, guarded, i); err != nil {
			return err
		}
	}

	if guarded {
		s.write(" else {")
		s.newline()

		s.depth++
		s.writeIndent()
		s.write("throw " + binding)
		s.semi()
		s.newline()
		s.depth--

		s.writeIndent()
		s.write("}")
		s.newline()
	}

	s.depth--
	s.writeIndent()
	s.write("}")

	return nil
}

// catchBinding picks the catch parameter name: the first rescue binding,
// or a synthetic one.
func catchBinding(resbodies []*ast.Node) string {
	for _, resbody := range resbodies {
		if b := resbody.ChildNode(1); b != nil {
			return jsName(string(b.ChildSymbol(0)))
		}
	}

	return "$err"
}

// classGuards reports whether any rescue clause filters by class, which
// forces instanceof dispatch inside the catch.
func classGuards(resbodies []*ast.Node) bool {
	for _, resbody := range resbodies {
		if resbody.ChildNode(0) != nil {
			return true
		}
	}

	return false
}

func (s *Serializer) catchBody(resbody *ast.Node, binding string, guarded bool, idx int) error {
	classes := resbody.ChildNode(0)
	rescueBody := resbody.ChildNode(2)

	if !guarded {
		return s.renderStmtsAtDepth(rescueBody)
	}

	if idx == 0 {
		s.writeIndent()
	} else {
		s.write(" else ")
	}

	s.write("if (")

	if classes == nil {
		s.write("true")
	} else {
		for i, child := range classes.Children {
			class, ok := child.(*ast.Node)
			if !ok {
				return unsupported(resbody, "malformed rescue class list")
			}

			if i > 0 {
				s.write(" || ")
			}

			s.write(binding + " instanceof ")

			if err := s.expr(class, precPostfix); err != nil {
				return err
			}
		}
	}

	s.write(") {")
	s.newline()

	if err := s.renderBlockBody(rescueBody); err != nil {
		return err
	}

	s.writeIndent()
	s.write("}")

	return nil
}

func (s *Serializer) renderStmtsAtDepth(n *ast.Node) error {
	return s.stmts(n)
}

// renderBlockBody renders a body one level deeper.
func (s *Serializer) renderBlockBody(n *ast.Node) error {
	s.depth++
	err := s.stmts(n)
	s.depth--

	return err
}
