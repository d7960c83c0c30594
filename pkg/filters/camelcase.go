package filters

import (
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/filter"
)

// Camelcase rewrites snake_case identifiers into camelCase: locals,
// parameters, instance variables, and method names. Constants and
// operator selectors pass through untouched.
func Camelcase() filter.Filter {
	return camelcaseFilter{}
}

type camelcaseFilter struct{}

func (camelcaseFilter) Name() string {
	return "camelcase"
}

func (f camelcaseFilter) Handlers() map[ast.Type]filter.Handler {
	nameAt0 := f.renameAt(0)
	nameAt1 := f.renameAt(1)

	return map[ast.Type]filter.Handler{
		ast.TypeLVar:     nameAt0,
		ast.TypeIVar:     nameAt0,
		ast.TypeGVar:     nameAt0,
		ast.TypeLVAsgn:   nameAt0,
		ast.TypeIVAsgn:   nameAt0,
		ast.TypeGVAsgn:   nameAt0,
		ast.TypeArg:      nameAt0,
		ast.TypeOptArg:   nameAt0,
		ast.TypeRestArg:  nameAt0,
		ast.TypeBlockArg: nameAt0,
		ast.TypeDef:      nameAt0,
		ast.TypeDefS:     nameAt1,
		ast.TypeSend:     nameAt1,
		ast.TypeCSend:    nameAt1,
		ast.TypeAttr:     nameAt1,
		ast.TypeCall:     nameAt1,
	}
}

func (camelcaseFilter) renameAt(idx int) filter.Handler {
	return func(_ *filter.Context, n *ast.Node, chain filter.Chain) (*ast.Node, error) {
		name := string(n.ChildSymbol(idx))

		renamed := camelize(name)
		if renamed == name {
			return chain.Process(n)
		}

		children := make([]any, len(n.Children))
		copy(children, n.Children)
		children[idx] = ast.Symbol(renamed)

		return chain.Process(n.Updated("", children))
	}
}

// camelize converts snake_case to camelCase, keeping leading underscores
// and any trailing ? or ! marker. Names without interior underscores come
// back unchanged.
func camelize(name string) string {
	prefix := name[:len(name)-len(strings.TrimLeft(name, "_"))]
	rest := name[len(prefix):]

	parts := strings.Split(rest, "_")
	if len(parts) < 2 {
		return name
	}

	var b strings.Builder

	b.WriteString(prefix)
	b.WriteString(parts[0])

	for _, part := range parts[1:] {
		if part == "" {
			continue
		}

		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}

	return b.String()
}
