package serializer

import (
	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/scope"
)

func (s *Serializer) defStmt(n *ast.Node) error {
	name, params, fnBody := defParts(n)

	s.writeIndent()
	s.mapNode(n)
	s.write("function " + jsName(name))

	s.locals.Enter(scope.KindMethod, name)
	defer s.locals.Exit()

	if err := s.paramList(params); err != nil {
		return err
	}

	s.write(" ")

	if err := s.functionBody(fnBody); err != nil {
		return err
	}

	s.newline()

	return nil
}

// defParts extracts name, params, and body from def and defs shapes.
func defParts(n *ast.Node) (string, *ast.Node, *ast.Node) {
	if n.Type == ast.TypeDefS {
		return string(n.ChildSymbol(1)), n.ChildNode(2), n.ChildNode(3)
	}

	return string(n.ChildSymbol(0)), n.ChildNode(1), n.ChildNode(2)
}

func (s *Serializer) casgnStmt(n *ast.Node) error {
	s.writeIndent()
	s.mapNode(n)

	if n.ChildNode(0) == nil {
		if s.opts.ESLevel.AtLeast(dialect.ES2015) {
			s.write("const ")
		} else {
			s.write("var ")
		}
	}

	if err := s.casgnExpr(n); err != nil {
		return err
	}

	s.semi()
	s.newline()

	return nil
}

func (s *Serializer) classStmt(n *ast.Node) error {
	if !s.opts.ESLevel.AtLeast(dialect.ES2015) {
		return unsupported(n, "class definitions require --es 2015 or later")
	}

	name, err := simpleConstName(n.ChildNode(0))
	if err != nil {
		return unsupported(n, "class names must be simple constants")
	}

	s.writeIndent()
	s.mapNode(n)
	s.write("class " + name)

	if super := n.ChildNode(1); super != nil {
		s.write(" extends ")

		if err := s.expr(super, precPostfix); err != nil {
			return err
		}
	}

	s.write(" {")
	s.newline()

	s.locals.Enter(scope.KindClass, name)
	defer s.locals.Exit()

	s.depth++

	for _, member := range bodyMembers(n.ChildNode(2)) {
		if err := s.classMember(member); err != nil {
			return err
		}
	}

	s.depth--
	s.writeIndent()
	s.write("}")
	s.newline()

	return nil
}

func (s *Serializer) classMember(member *ast.Node) error {
	switch member.Type {
	case ast.TypeDef:
		name := string(member.ChildSymbol(0))
		if name == "initialize" {
			name = "constructor"
		}

		return s.methodMember("", name, member.ChildNode(1), member.ChildNode(2))
	case ast.TypeDefS:
		return s.methodMember("static ", string(member.ChildSymbol(1)), member.ChildNode(2), member.ChildNode(3))
	default:
		return unsupported(member, "unsupported class member")
	}
}

func (s *Serializer) methodMember(prefix, name string, params, fnBody *ast.Node) error {
	s.writeIndent()
	s.write(prefix + jsName(name))

	s.locals.Enter(scope.KindMethod, name)
	defer s.locals.Exit()

	if err := s.paramList(params); err != nil {
		return err
	}

	s.write(" ")

	if err := s.functionBody(fnBody); err != nil {
		return err
	}

	s.newline()

	return nil
}

// moduleStmt renders a module of methods as an object literal bound to a
// constant.
func (s *Serializer) moduleStmt(n *ast.Node) error {
	name, err := simpleConstName(n.ChildNode(0))
	if err != nil {
		return unsupported(n, "module names must be simple constants")
	}

	s.writeIndent()
	s.mapNode(n)

	if s.opts.ESLevel.AtLeast(dialect.ES2015) {
		s.write("const " + name + " = {")
	} else {
		s.write("var " + name + " = {")
	}

	s.newline()

	s.locals.Enter(scope.KindModule, name)
	defer s.locals.Exit()

	members := bodyMembers(n.ChildNode(1))

	s.depth++

	for i, member := range members {
		if err := s.moduleMember(member); err != nil {
			return err
		}

		if i < len(members)-1 {
			s.write(",")
		}

		s.newline()
	}

	s.depth--
	s.writeIndent()
	s.write("}")
	s.semi()
	s.newline()

	return nil
}

func (s *Serializer) moduleMember(member *ast.Node) error {
	switch member.Type {
	case ast.TypeDef, ast.TypeDefS:
		name, params, fnBody := defParts(member)

		s.writeIndent()

		if s.opts.ESLevel.AtLeast(dialect.ES2015) {
			s.write(jsName(name))
		} else {
			s.write(jsName(name) + ": function")
		}

		s.locals.Enter(scope.KindMethod, name)
		defer s.locals.Exit()

		if err := s.paramList(params); err != nil {
			return err
		}

		s.write(" ")

		return s.functionBody(fnBody)
	case ast.TypeCAsgn:
		s.writeIndent()
		s.write(string(member.ChildSymbol(1)) + ": ")

		return s.exprChild(member, 2, precAssign)
	default:
		return unsupported(member, "unsupported module member")
	}
}

// bodyMembers flattens a class or module body into its member list.
func bodyMembers(body *ast.Node) []*ast.Node {
	if body == nil {
		return nil
	}

	if body.Type != ast.TypeBegin {
		return []*ast.Node{body}
	}

	members := make([]*ast.Node, 0, len(body.Children))

	for _, child := range body.Children {
		if member, ok := child.(*ast.Node); ok {
			members = append(members, member)
		}
	}

	return members
}

func simpleConstName(n *ast.Node) (string, error) {
	if n == nil || n.Type != ast.TypeConst || n.ChildNode(0) != nil {
		return "", unsupported(n, "not a simple constant")
	}

	return string(n.ChildSymbol(1)), nil
}
