package tsruby

import (
	"strconv"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/parser"
)

// normalizer converts the grammar's concrete tree into canonical nodes.
// It tracks local variable declarations during the walk so identifier
// references resolve to lvar or implicit send at parse time.
type normalizer struct {
	file   string
	src    []byte
	scopes []localScope
}

// localScope mirrors the runtime scoping rules: method, class, and module
// bodies are lookup boundaries, blocks see through to their enclosing
// scope.
type localScope struct {
	names    map[string]struct{}
	boundary bool
}

func (nm *normalizer) pushScope(boundary bool) {
	nm.scopes = append(nm.scopes, localScope{
		names:    make(map[string]struct{}),
		boundary: boundary,
	})
}

func (nm *normalizer) popScope() {
	nm.scopes = nm.scopes[:len(nm.scopes)-1]
}

func (nm *normalizer) declareLocal(name string) {
	nm.scopes[len(nm.scopes)-1].names[name] = struct{}{}
}

func (nm *normalizer) isLocal(name string) bool {
	for i := len(nm.scopes) - 1; i >= 0; i-- {
		if _, ok := nm.scopes[i].names[name]; ok {
			return true
		}

		if nm.scopes[i].boundary {
			return false
		}
	}

	return false
}

func (nm *normalizer) text(n sitter.Node) string {
	return n.Content(nm.src)
}

func (nm *normalizer) errAt(n sitter.Node, msg string) error {
	return &parser.ParseError{
		File: nm.file,
		Line: int(n.StartPoint().Row) + 1,
		Col:  int(n.StartPoint().Column) + 1,
		Msg:  msg,
	}
}

// named returns the named children, skipping interleaved comments.
func (nm *normalizer) named(n sitter.Node) []sitter.Node {
	var out []sitter.Node

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}

		out = append(out, child)
	}

	return out
}

func field(n sitter.Node, name string) (sitter.Node, bool) {
	child := n.ChildByFieldName(name)

	return child, !child.IsNull()
}

func (nm *normalizer) program(root sitter.Node) (*ast.Node, error) {
	stmts, err := nm.convertAll(nm.named(root))
	if err != nil {
		return nil, err
	}

	switch len(stmts) {
	case 0:
		return ast.NewAt(ast.TypeBegin, nodeLoc(root)), nil
	case 1:
		return stmts[0], nil
	default:
		return ast.NewAt(ast.TypeBegin, nodeLoc(root), nodesToChildren(stmts)...), nil
	}
}

func (nm *normalizer) convertAll(nodes []sitter.Node) ([]*ast.Node, error) {
	out := make([]*ast.Node, 0, len(nodes))

	for _, n := range nodes {
		converted, err := nm.convert(n)
		if err != nil {
			return nil, err
		}

		out = append(out, converted)
	}

	return out, nil
}

// body folds a statement sequence into nil, a single node, or a begin.
func (nm *normalizer) body(nodes []sitter.Node) (*ast.Node, error) {
	stmts, err := nm.convertAll(nodes)
	if err != nil {
		return nil, err
	}

	switch len(stmts) {
	case 0:
		return nil, nil
	case 1:
		return stmts[0], nil
	default:
		return ast.New(ast.TypeBegin, nodesToChildren(stmts)...), nil
	}
}

func nodesToChildren(nodes []*ast.Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}

	return out
}

//nolint:gocyclo,cyclop,funlen // the grammar dispatch is one flat switch
func (nm *normalizer) convert(n sitter.Node) (*ast.Node, error) {
	loc := nodeLoc(n)

	switch n.Type() {
	case "integer":
		v, err := strconv.ParseInt(strings.ReplaceAll(nm.text(n), "_", ""), 0, 64)
		if err != nil {
			return nil, nm.errAt(n, "malformed integer literal")
		}

		return ast.NewAt(ast.TypeInt, loc, v), nil
	case "float":
		v, err := strconv.ParseFloat(strings.ReplaceAll(nm.text(n), "_", ""), 64)
		if err != nil {
			return nil, nm.errAt(n, "malformed float literal")
		}

		return ast.NewAt(ast.TypeFloat, loc, v), nil
	case "string":
		return nm.convertString(n)
	case "simple_symbol":
		return ast.NewAt(ast.TypeSym, loc, ast.Symbol(strings.TrimPrefix(nm.text(n), ":"))), nil
	case "delimited_symbol":
		return ast.NewAt(ast.TypeSym, loc, ast.Symbol(nm.innerStringText(n))), nil
	case "hash_key_symbol":
		return ast.NewAt(ast.TypeSym, loc, ast.Symbol(nm.text(n))), nil
	case "regex":
		return ast.NewAt(ast.TypeRegexp, loc, nm.innerStringText(n)), nil
	case "true":
		return ast.NewAt(ast.TypeTrue, loc), nil
	case "false":
		return ast.NewAt(ast.TypeFalse, loc), nil
	case "nil":
		return ast.NewAt(ast.TypeNil, loc), nil
	case "self":
		return ast.NewAt(ast.TypeSelf, loc), nil
	case "identifier":
		name := nm.text(n)
		if nm.isLocal(name) {
			return ast.NewAt(ast.TypeLVar, loc, ast.Symbol(name)), nil
		}

		return ast.NewAt(ast.TypeSend, loc, nil, ast.Symbol(name)), nil
	case "constant":
		return ast.NewAt(ast.TypeConst, loc, nil, ast.Symbol(nm.text(n))), nil
	case "scope_resolution":
		return nm.convertScopeResolution(n)
	case "instance_variable":
		return ast.NewAt(ast.TypeIVar, loc, ast.Symbol(strings.TrimPrefix(nm.text(n), "@"))), nil
	case "global_variable":
		return ast.NewAt(ast.TypeGVar, loc, ast.Symbol(strings.TrimPrefix(nm.text(n), "$"))), nil
	case "binary":
		return nm.convertBinary(n)
	case "unary":
		return nm.convertUnary(n)
	case "conditional":
		return nm.convertConditional(n)
	case "if", "elsif":
		return nm.convertIf(n, false)
	case "unless":
		return nm.convertIf(n, true)
	case "if_modifier":
		return nm.convertModifier(n, false)
	case "unless_modifier":
		return nm.convertModifier(n, true)
	case "while", "until", "while_modifier", "until_modifier":
		return nm.convertLoop(n)
	case "case":
		return nm.convertCase(n)
	case "method":
		return nm.convertMethod(n)
	case "singleton_method":
		return nm.convertSingletonMethod(n)
	case "class":
		return nm.convertClass(n)
	case "module":
		return nm.convertModule(n)
	case "begin":
		return nm.convertBegin(n)
	case "return", "break", "next":
		return nm.convertJump(n)
	case "call":
		return nm.convertCall(n)
	case "element_reference":
		return nm.convertElementReference(n)
	case "parenthesized_statements":
		return nm.body(nm.named(n))
	case "array":
		args, err := nm.convertArgs(nm.named(n))
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeArray, loc, args...), nil
	case "string_array":
		return nm.convertStringArray(n)
	case "hash":
		return nm.convertHash(n)
	case "pair":
		return nm.convertPair(n)
	case "range":
		return nm.convertRange(n)
	case "assignment":
		return nm.convertAssignment(n)
	case "operator_assignment":
		return nm.convertOperatorAssignment(n)
	default:
		return nil, nm.errAt(n, "unsupported syntax: "+n.Type())
	}
}

// convertString renders plain strings as str and interpolated ones as
// dstr with alternating str and expression parts.
func (nm *normalizer) convertString(n sitter.Node) (*ast.Node, error) {
	loc := nodeLoc(n)
	parts := nm.named(n)

	interpolated := false

	for _, part := range parts {
		if part.Type() == "interpolation" {
			interpolated = true

			break
		}
	}

	if !interpolated {
		return ast.NewAt(ast.TypeStr, loc, nm.plainStringText(parts)), nil
	}

	var children []any

	for _, part := range parts {
		switch part.Type() {
		case "interpolation":
			inner, err := nm.body(nm.named(part))
			if err != nil {
				return nil, err
			}

			children = append(children, inner)
		case "string_content":
			children = append(children, ast.New(ast.TypeStr, nm.text(part)))
		case "escape_sequence":
			children = append(children, ast.New(ast.TypeStr, unescape(nm.text(part))))
		}
	}

	return ast.NewAt(ast.TypeDStr, loc, children...), nil
}

func (nm *normalizer) plainStringText(parts []sitter.Node) string {
	var buf strings.Builder

	for _, part := range parts {
		if part.Type() == "escape_sequence" {
			buf.WriteString(unescape(nm.text(part)))

			continue
		}

		buf.WriteString(nm.text(part))
	}

	return buf.String()
}

// innerStringText returns the literal content of a delimited node such as
// a regex or %-symbol, without its delimiters.
func (nm *normalizer) innerStringText(n sitter.Node) string {
	var buf strings.Builder

	for _, part := range nm.named(n) {
		buf.WriteString(nm.text(part))
	}

	return buf.String()
}

func unescape(seq string) string {
	if len(seq) < 2 || seq[0] != '\\' {
		return seq
	}

	switch seq[1] {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	default:
		return seq[1:]
	}
}

func (nm *normalizer) convertScopeResolution(n sitter.Node) (*ast.Node, error) {
	var scopeNode *ast.Node

	if scope, ok := field(n, "scope"); ok {
		converted, err := nm.convert(scope)
		if err != nil {
			return nil, err
		}

		scopeNode = converted
	}

	name, ok := field(n, "name")
	if !ok {
		return nil, nm.errAt(n, "malformed scope resolution")
	}

	return ast.NewAt(ast.TypeConst, nodeLoc(n), scopeNode, ast.Symbol(nm.text(name))), nil
}

func (nm *normalizer) convertBinary(n sitter.Node) (*ast.Node, error) {
	left, lok := field(n, "left")
	right, rok := field(n, "right")
	op, ook := field(n, "operator")

	if !lok || !rok || !ook {
		return nil, nm.errAt(n, "malformed binary expression")
	}

	lhs, err := nm.convert(left)
	if err != nil {
		return nil, err
	}

	rhs, err := nm.convert(right)
	if err != nil {
		return nil, err
	}

	loc := nodeLoc(n)

	switch nm.text(op) {
	case "&&", "and":
		return ast.NewAt(ast.TypeAnd, loc, lhs, rhs), nil
	case "||", "or":
		return ast.NewAt(ast.TypeOr, loc, lhs, rhs), nil
	default:
		return ast.NewAt(ast.TypeSend, loc, lhs, ast.Symbol(nm.text(op)), rhs), nil
	}
}

func (nm *normalizer) convertUnary(n sitter.Node) (*ast.Node, error) {
	operandNode, ok := field(n, "operand")
	if !ok {
		if len(nm.named(n)) == 0 {
			return nil, nm.errAt(n, "malformed unary expression")
		}

		operandNode = nm.named(n)[0]
	}

	operand, err := nm.convert(operandNode)
	if err != nil {
		return nil, err
	}

	loc := nodeLoc(n)

	var op string

	if opNode, ok := field(n, "operator"); ok {
		op = nm.text(opNode)
	} else {
		op = strings.TrimSpace(strings.TrimSuffix(nm.text(n), nm.text(operandNode)))
	}

	switch op {
	case "!", "not":
		return ast.NewAt(ast.TypeNot, loc, operand), nil
	case "-":
		switch operand.Type {
		case ast.TypeInt:
			v, _ := operand.Children[0].(int64)

			return ast.NewAt(ast.TypeInt, loc, -v), nil
		case ast.TypeFloat:
			v, _ := operand.Children[0].(float64)

			return ast.NewAt(ast.TypeFloat, loc, -v), nil
		}

		return ast.NewAt(ast.TypeSend, loc, operand, ast.Symbol("-@")), nil
	case "+":
		return operand, nil
	default:
		return nil, nm.errAt(n, "unsupported unary operator "+op)
	}
}

func (nm *normalizer) convertConditional(n sitter.Node) (*ast.Node, error) {
	cond, err := nm.convertField(n, "condition")
	if err != nil {
		return nil, err
	}

	whenTrue, err := nm.convertField(n, "consequence")
	if err != nil {
		return nil, err
	}

	whenFalse, err := nm.convertField(n, "alternative")
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeIf, nodeLoc(n), cond, whenTrue, whenFalse), nil
}

// convertField converts an optional field, returning nil when absent.
func (nm *normalizer) convertField(n sitter.Node, name string) (*ast.Node, error) {
	child, ok := field(n, name)
	if !ok {
		return nil, nil //nolint:nilnil // absent field maps to a nil child
	}

	return nm.convert(child)
}

func (nm *normalizer) convertIf(n sitter.Node, invert bool) (*ast.Node, error) {
	cond, err := nm.convertField(n, "condition")
	if err != nil {
		return nil, err
	}

	var thenBody *ast.Node

	if then, ok := field(n, "consequence"); ok {
		thenBody, err = nm.body(nm.named(then))
		if err != nil {
			return nil, err
		}
	}

	var elseBody *ast.Node

	if alt, ok := field(n, "alternative"); ok {
		switch alt.Type() {
		case "elsif":
			elseBody, err = nm.convertIf(alt, false)
		case "else":
			elseBody, err = nm.body(nm.named(alt))
		default:
			elseBody, err = nm.convert(alt)
		}

		if err != nil {
			return nil, err
		}
	}

	loc := nodeLoc(n)

	if invert {
		return ast.NewAt(ast.TypeIf, loc, cond, elseBody, thenBody), nil
	}

	return ast.NewAt(ast.TypeIf, loc, cond, thenBody, elseBody), nil
}

func (nm *normalizer) convertModifier(n sitter.Node, invert bool) (*ast.Node, error) {
	stmt, err := nm.convertField(n, "body")
	if err != nil {
		return nil, err
	}

	cond, err := nm.convertField(n, "condition")
	if err != nil {
		return nil, err
	}

	loc := nodeLoc(n)

	if invert {
		return ast.NewAt(ast.TypeIf, loc, cond, nil, stmt), nil
	}

	return ast.NewAt(ast.TypeIf, loc, cond, stmt, nil), nil
}

func (nm *normalizer) convertLoop(n sitter.Node) (*ast.Node, error) {
	typ := ast.TypeWhile
	if strings.HasPrefix(n.Type(), "until") {
		typ = ast.TypeUntil
	}

	cond, err := nm.convertField(n, "condition")
	if err != nil {
		return nil, err
	}

	var loopBody *ast.Node

	bodyField, ok := field(n, "body")
	if ok {
		if bodyField.Type() == "do" {
			loopBody, err = nm.body(nm.named(bodyField))
		} else {
			loopBody, err = nm.convert(bodyField)
		}

		if err != nil {
			return nil, err
		}
	}

	return ast.NewAt(typ, nodeLoc(n), cond, loopBody), nil
}

func (nm *normalizer) convertCase(n sitter.Node) (*ast.Node, error) {
	subject, err := nm.convertField(n, "value")
	if err != nil {
		return nil, err
	}

	children := []any{subject}

	var elseBody *ast.Node

	for _, child := range nm.named(n) {
		switch child.Type() {
		case "when":
			when, err := nm.convertWhen(child)
			if err != nil {
				return nil, err
			}

			children = append(children, when)
		case "else":
			elseBody, err = nm.body(nm.named(child))
			if err != nil {
				return nil, err
			}
		}
	}

	children = append(children, elseBody)

	return ast.NewAt(ast.TypeCase, nodeLoc(n), children...), nil
}

func (nm *normalizer) convertWhen(n sitter.Node) (*ast.Node, error) {
	var children []any

	var whenBody *ast.Node

	for _, child := range nm.named(n) {
		if child.Type() == "then" {
			converted, err := nm.body(nm.named(child))
			if err != nil {
				return nil, err
			}

			whenBody = converted

			continue
		}

		pattern, err := nm.convert(child)
		if err != nil {
			return nil, err
		}

		children = append(children, pattern)
	}

	children = append(children, whenBody)

	return ast.NewAt(ast.TypeWhen, nodeLoc(n), children...), nil
}

func (nm *normalizer) convertMethod(n sitter.Node) (*ast.Node, error) {
	name, ok := field(n, "name")
	if !ok {
		return nil, nm.errAt(n, "method without a name")
	}

	nm.pushScope(true)
	defer nm.popScope()

	args, err := nm.convertParams(n)
	if err != nil {
		return nil, err
	}

	methodBody, err := nm.convertBodyStatement(n)
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeDef, nodeLoc(n), ast.Symbol(nm.text(name)), args, methodBody), nil
}

func (nm *normalizer) convertSingletonMethod(n sitter.Node) (*ast.Node, error) {
	object, err := nm.convertField(n, "object")
	if err != nil {
		return nil, err
	}

	name, ok := field(n, "name")
	if !ok {
		return nil, nm.errAt(n, "method without a name")
	}

	nm.pushScope(true)
	defer nm.popScope()

	args, err := nm.convertParams(n)
	if err != nil {
		return nil, err
	}

	methodBody, err := nm.convertBodyStatement(n)
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeDefS, nodeLoc(n), object, ast.Symbol(nm.text(name)), args, methodBody), nil
}

// convertParams builds the args node from a parameters field, declaring
// every parameter as a local in the current scope.
func (nm *normalizer) convertParams(n sitter.Node) (*ast.Node, error) {
	params, ok := field(n, "parameters")
	if !ok {
		return ast.New(ast.TypeArgs), nil
	}

	var children []any

	for _, param := range nm.named(params) {
		arg, err := nm.convertParam(param)
		if err != nil {
			return nil, err
		}

		children = append(children, arg)
	}

	return ast.NewAt(ast.TypeArgs, nodeLoc(params), children...), nil
}

func (nm *normalizer) convertParam(n sitter.Node) (*ast.Node, error) {
	loc := nodeLoc(n)

	switch n.Type() {
	case "identifier":
		nm.declareLocal(nm.text(n))

		return ast.NewAt(ast.TypeArg, loc, ast.Symbol(nm.text(n))), nil
	case "optional_parameter":
		name, _ := field(n, "name")

		deflt, err := nm.convertField(n, "value")
		if err != nil {
			return nil, err
		}

		nm.declareLocal(nm.text(name))

		return ast.NewAt(ast.TypeOptArg, loc, ast.Symbol(nm.text(name)), deflt), nil
	case "splat_parameter":
		name, ok := field(n, "name")
		if !ok {
			return nil, nm.errAt(n, "anonymous splat parameters are not supported")
		}

		nm.declareLocal(nm.text(name))

		return ast.NewAt(ast.TypeRestArg, loc, ast.Symbol(nm.text(name))), nil
	case "block_parameter":
		name, ok := field(n, "name")
		if !ok {
			return nil, nm.errAt(n, "anonymous block parameters are not supported")
		}

		nm.declareLocal(nm.text(name))

		return ast.NewAt(ast.TypeBlockArg, loc, ast.Symbol(nm.text(name))), nil
	default:
		return nil, nm.errAt(n, "unsupported parameter form: "+n.Type())
	}
}

func (nm *normalizer) convertClass(n sitter.Node) (*ast.Node, error) {
	name, err := nm.convertField(n, "name")
	if err != nil {
		return nil, err
	}

	var super *ast.Node

	if superclass, ok := field(n, "superclass"); ok {
		inner := nm.named(superclass)
		if len(inner) == 0 {
			return nil, nm.errAt(superclass, "malformed superclass")
		}

		super, err = nm.convert(inner[0])
		if err != nil {
			return nil, err
		}
	}

	nm.pushScope(true)
	defer nm.popScope()

	classBody, err := nm.convertBodyStatement(n)
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeClass, nodeLoc(n), name, super, classBody), nil
}

func (nm *normalizer) convertModule(n sitter.Node) (*ast.Node, error) {
	name, err := nm.convertField(n, "name")
	if err != nil {
		return nil, err
	}

	nm.pushScope(true)
	defer nm.popScope()

	moduleBody, err := nm.convertBodyStatement(n)
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeModule, nodeLoc(n), name, moduleBody), nil
}

// convertBodyStatement handles a body field that may carry rescue, else,
// and ensure clauses alongside its statements.
func (nm *normalizer) convertBodyStatement(n sitter.Node) (*ast.Node, error) {
	bodyField, ok := field(n, "body")
	if !ok {
		return nil, nil //nolint:nilnil // empty body maps to a nil child
	}

	return nm.convertClauses(nm.named(bodyField))
}

func (nm *normalizer) convertBegin(n sitter.Node) (*ast.Node, error) {
	inner, err := nm.convertClauses(nm.named(n))
	if err != nil {
		return nil, err
	}

	return ast.NewAt(ast.TypeKwBegin, nodeLoc(n), inner), nil
}

// convertClauses splits statements from rescue/else/ensure clauses and
// rebuilds the canonical nesting: ensure wraps rescue wraps the body.
func (nm *normalizer) convertClauses(children []sitter.Node) (*ast.Node, error) {
	var stmts, rescues []sitter.Node

	var elseClause, ensureClause *sitter.Node

	for i, child := range children {
		switch child.Type() {
		case "rescue":
			rescues = append(rescues, child)
		case "else":
			clause := children[i]
			elseClause = &clause
		case "ensure":
			clause := children[i]
			ensureClause = &clause
		default:
			stmts = append(stmts, child)
		}
	}

	node, err := nm.body(stmts)
	if err != nil {
		return nil, err
	}

	if len(rescues) > 0 {
		node, err = nm.buildRescue(node, rescues, elseClause)
		if err != nil {
			return nil, err
		}
	}

	if ensureClause != nil {
		ensureBody, err := nm.body(nm.named(*ensureClause))
		if err != nil {
			return nil, err
		}

		node = ast.New(ast.TypeEnsure, node, ensureBody)
	}

	return node, nil
}

func (nm *normalizer) buildRescue(bodyNode *ast.Node, rescues []sitter.Node, elseClause *sitter.Node) (*ast.Node, error) {
	children := []any{bodyNode}

	for _, rescue := range rescues {
		resbody, err := nm.convertResBody(rescue)
		if err != nil {
			return nil, err
		}

		children = append(children, resbody)
	}

	var elseBody *ast.Node

	if elseClause != nil {
		converted, err := nm.body(nm.named(*elseClause))
		if err != nil {
			return nil, err
		}

		elseBody = converted
	}

	children = append(children, elseBody)

	return ast.New(ast.TypeRescue, children...), nil
}

func (nm *normalizer) convertResBody(n sitter.Node) (*ast.Node, error) {
	var classes *ast.Node

	if exceptions, ok := field(n, "exceptions"); ok {
		var classNodes []any

		for _, exc := range nm.named(exceptions) {
			converted, err := nm.convert(exc)
			if err != nil {
				return nil, err
			}

			classNodes = append(classNodes, converted)
		}

		classes = ast.New(ast.TypeArray, classNodes...)
	}

	var binding *ast.Node

	if variable, ok := field(n, "variable"); ok {
		inner := nm.named(variable)
		if len(inner) > 0 {
			name := nm.text(inner[0])
			nm.declareLocal(name)

			binding = ast.NewAt(ast.TypeLVAsgn, nodeLoc(inner[0]), ast.Symbol(name))
		}
	}

	var rescueBody *ast.Node

	if then, ok := field(n, "body"); ok {
		converted, err := nm.body(nm.named(then))
		if err != nil {
			return nil, err
		}

		rescueBody = converted
	}

	return ast.NewAt(ast.TypeResBody, nodeLoc(n), classes, binding, rescueBody), nil
}

func (nm *normalizer) convertJump(n sitter.Node) (*ast.Node, error) {
	var typ ast.Type

	switch n.Type() {
	case "return":
		typ = ast.TypeReturn
	case "break":
		typ = ast.TypeBreak
	default:
		typ = ast.TypeNext
	}

	var children []any

	for _, child := range nm.named(n) {
		if child.Type() == "argument_list" {
			args, err := nm.convertArgs(nm.named(child))
			if err != nil {
				return nil, err
			}

			children = append(children, args...)

			continue
		}

		converted, err := nm.convert(child)
		if err != nil {
			return nil, err
		}

		children = append(children, converted)
	}

	return ast.NewAt(typ, nodeLoc(n), children...), nil
}

func (nm *normalizer) convertCall(n sitter.Node) (*ast.Node, error) {
	var recv *ast.Node

	if receiver, ok := field(n, "receiver"); ok {
		converted, err := nm.convert(receiver)
		if err != nil {
			return nil, err
		}

		recv = converted
	}

	method, ok := field(n, "method")
	if !ok {
		return nil, nm.errAt(n, "call without a method name")
	}

	typ := ast.TypeSend

	if operator, ok := field(n, "operator"); ok && nm.text(operator) == "&." {
		typ = ast.TypeCSend
	}

	loc := nodeLoc(n)

	var args []any

	if arguments, ok := field(n, "arguments"); ok {
		converted, err := nm.convertArgs(nm.named(arguments))
		if err != nil {
			return nil, err
		}

		args = converted
		loc.HasParens = strings.HasPrefix(nm.text(arguments), "(")
	}

	children := append([]any{recv, ast.Symbol(nm.text(method))}, args...)
	call := ast.NewAt(typ, loc, children...)

	if blockField, ok := field(n, "block"); ok {
		return nm.convertBlock(call, blockField)
	}

	return call, nil
}

func (nm *normalizer) convertBlock(call *ast.Node, n sitter.Node) (*ast.Node, error) {
	nm.pushScope(false)
	defer nm.popScope()

	params, err := nm.convertParams(n)
	if err != nil {
		return nil, err
	}

	var blockBody *ast.Node

	if bodyField, ok := field(n, "body"); ok {
		blockBody, err = nm.convertClauses(nm.named(bodyField))
		if err != nil {
			return nil, err
		}
	}

	return ast.NewAt(ast.TypeBlock, nodeLoc(n), call, params, blockBody), nil
}

func (nm *normalizer) convertElementReference(n sitter.Node) (*ast.Node, error) {
	object, ok := field(n, "object")
	if !ok {
		return nil, nm.errAt(n, "malformed element reference")
	}

	recv, err := nm.convert(object)
	if err != nil {
		return nil, err
	}

	var indexNodes []sitter.Node

	for _, child := range nm.named(n) {
		if child.StartByte() == object.StartByte() && child.EndByte() == object.EndByte() {
			continue
		}

		indexNodes = append(indexNodes, child)
	}

	args, err := nm.convertArgs(indexNodes)
	if err != nil {
		return nil, err
	}

	children := append([]any{recv, ast.Symbol("[]")}, args...)

	return ast.NewAt(ast.TypeSend, nodeLoc(n), children...), nil
}

// convertArgs converts an argument sequence; splats and block-passes keep
// their markers, and trailing keyword pairs fold into one hash argument.
func (nm *normalizer) convertArgs(nodes []sitter.Node) ([]any, error) {
	var args []any

	var pairs []any

	for _, n := range nodes {
		switch n.Type() {
		case "splat_argument":
			inner := nm.named(n)
			if len(inner) == 0 {
				return nil, nm.errAt(n, "malformed splat argument")
			}

			value, err := nm.convert(inner[0])
			if err != nil {
				return nil, err
			}

			args = append(args, ast.NewAt(ast.TypeSplat, nodeLoc(n), value))
		case "block_argument":
			inner := nm.named(n)
			if len(inner) == 0 {
				return nil, nm.errAt(n, "malformed block argument")
			}

			value, err := nm.convert(inner[0])
			if err != nil {
				return nil, err
			}

			args = append(args, ast.NewAt(ast.TypeBlockPass, nodeLoc(n), value))
		case "pair":
			pair, err := nm.convertPair(n)
			if err != nil {
				return nil, err
			}

			pairs = append(pairs, pair)
		default:
			value, err := nm.convert(n)
			if err != nil {
				return nil, err
			}

			args = append(args, value)
		}
	}

	if len(pairs) > 0 {
		args = append(args, ast.New(ast.TypeHash, pairs...))
	}

	return args, nil
}

func (nm *normalizer) convertStringArray(n sitter.Node) (*ast.Node, error) {
	var children []any

	for _, child := range nm.named(n) {
		children = append(children, ast.NewAt(ast.TypeStr, nodeLoc(child), nm.text(child)))
	}

	return ast.NewAt(ast.TypeArray, nodeLoc(n), children...), nil
}

func (nm *normalizer) convertHash(n sitter.Node) (*ast.Node, error) {
	var children []any

	for _, child := range nm.named(n) {
		if child.Type() != "pair" {
			return nil, nm.errAt(child, "unsupported hash entry: "+child.Type())
		}

		pair, err := nm.convertPair(child)
		if err != nil {
			return nil, err
		}

		children = append(children, pair)
	}

	return ast.NewAt(ast.TypeHash, nodeLoc(n), children...), nil
}

func (nm *normalizer) convertPair(n sitter.Node) (*ast.Node, error) {
	key, err := nm.convertField(n, "key")
	if err != nil {
		return nil, err
	}

	value, err := nm.convertField(n, "value")
	if err != nil {
		return nil, err
	}

	if key == nil || value == nil {
		return nil, nm.errAt(n, "malformed hash pair")
	}

	return ast.NewAt(ast.TypePair, nodeLoc(n), key, value), nil
}

func (nm *normalizer) convertRange(n sitter.Node) (*ast.Node, error) {
	typ := ast.TypeIRange

	if operator, ok := field(n, "operator"); ok {
		if nm.text(operator) == "..." {
			typ = ast.TypeERange
		}
	} else if strings.Contains(nm.text(n), "...") {
		typ = ast.TypeERange
	}

	var from, to *ast.Node

	inner := nm.named(n)

	// Beginless and endless ranges keep a nil side, decided by whether
	// the first operand starts at the range's own start position.
	switch len(inner) {
	case 2:
		converted, err := nm.convertAll(inner)
		if err != nil {
			return nil, err
		}

		from, to = converted[0], converted[1]
	case 1:
		converted, err := nm.convert(inner[0])
		if err != nil {
			return nil, err
		}

		if inner[0].StartByte() == n.StartByte() {
			from = converted
		} else {
			to = converted
		}
	}

	return ast.NewAt(typ, nodeLoc(n), from, to), nil
}

func (nm *normalizer) convertAssignment(n sitter.Node) (*ast.Node, error) {
	left, lok := field(n, "left")
	right, rok := field(n, "right")

	if !lok || !rok {
		return nil, nm.errAt(n, "malformed assignment")
	}

	value, err := nm.convert(right)
	if err != nil {
		return nil, err
	}

	loc := nodeLoc(n)

	switch left.Type() {
	case "identifier":
		name := nm.text(left)
		nm.declareLocal(name)

		return ast.NewAt(ast.TypeLVAsgn, loc, ast.Symbol(name), value), nil
	case "instance_variable":
		return ast.NewAt(ast.TypeIVAsgn, loc, ast.Symbol(strings.TrimPrefix(nm.text(left), "@")), value), nil
	case "global_variable":
		return ast.NewAt(ast.TypeGVAsgn, loc, ast.Symbol(strings.TrimPrefix(nm.text(left), "$")), value), nil
	case "constant":
		return ast.NewAt(ast.TypeCAsgn, loc, nil, ast.Symbol(nm.text(left)), value), nil
	case "scope_resolution":
		ref, err := nm.convertScopeResolution(left)
		if err != nil {
			return nil, err
		}

		return ast.NewAt(ast.TypeCAsgn, loc, ref.Children[0], ref.ChildSymbol(1), value), nil
	case "element_reference":
		indexed, err := nm.convertElementReference(left)
		if err != nil {
			return nil, err
		}

		children := append(append([]any{}, indexed.Children[0], ast.Symbol("[]=")), indexed.Children[2:]...)
		children = append(children, value)

		return ast.NewAt(ast.TypeSend, loc, children...), nil
	case "call":
		attr, err := nm.convertCall(left)
		if err != nil {
			return nil, err
		}

		if attr.Type != ast.TypeSend || len(attr.Children) != 2 {
			return nil, nm.errAt(left, "invalid assignment target")
		}

		return ast.NewAt(ast.TypeSend, loc, attr.Children[0], attr.ChildSymbol(1)+"=", value), nil
	default:
		return nil, nm.errAt(left, "unsupported assignment target: "+left.Type())
	}
}

// convertOperatorAssignment lowers `x op= v`, desugaring ||= and &&= into
// their conditional forms.
func (nm *normalizer) convertOperatorAssignment(n sitter.Node) (*ast.Node, error) {
	left, lok := field(n, "left")
	operator, ook := field(n, "operator")
	right, rok := field(n, "right")

	if !lok || !ook || !rok {
		return nil, nm.errAt(n, "malformed operator assignment")
	}

	value, err := nm.convert(right)
	if err != nil {
		return nil, err
	}

	var asgnType, readType ast.Type

	var name ast.Symbol

	switch left.Type() {
	case "identifier":
		name = ast.Symbol(nm.text(left))
		nm.declareLocal(string(name))

		asgnType, readType = ast.TypeLVAsgn, ast.TypeLVar
	case "instance_variable":
		name = ast.Symbol(strings.TrimPrefix(nm.text(left), "@"))
		asgnType, readType = ast.TypeIVAsgn, ast.TypeIVar
	case "global_variable":
		name = ast.Symbol(strings.TrimPrefix(nm.text(left), "$"))
		asgnType, readType = ast.TypeGVAsgn, ast.TypeGVar
	default:
		return nil, nm.errAt(left, "unsupported operator-assignment target: "+left.Type())
	}

	loc := nodeLoc(n)
	read := ast.NewAt(readType, nodeLoc(left), name)

	switch op := nm.text(operator); op {
	case "||=":
		return ast.NewAt(asgnType, loc, name, ast.New(ast.TypeOr, read, value)), nil
	case "&&=":
		return ast.NewAt(asgnType, loc, name, ast.New(ast.TypeAnd, read, value)), nil
	default:
		target := ast.New(asgnType, name)

		return ast.NewAt(ast.TypeOpAsgn, loc, target, ast.Symbol(strings.TrimSuffix(op, "=")), value), nil
	}
}
