// Package tsruby is the tree-sitter parser backend. It wraps the Ruby
// grammar from go-sitter-forest and normalizes the concrete syntax tree
// into the canonical node vocabulary, so downstream filters never see
// grammar-specific shapes.
package tsruby

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexaandru/go-sitter-forest/ruby"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/parser"
)

var language = sitter.NewLanguage(ruby.GetLanguage())

// Parser is the tree-sitter backend. Parsers are pooled because a
// sitter.Parser is not safe for concurrent use.
type Parser struct {
	pool sync.Pool
}

// New returns the tree-sitter backend.
func New() *Parser {
	return &Parser{
		pool: sync.Pool{
			New: func() any {
				tsParser := sitter.NewParser()
				tsParser.SetLanguage(language)

				return tsParser
			},
		},
	}
}

// Name implements parser.Backend.
func (p *Parser) Name() string {
	return "tree-sitter"
}

// Parse implements parser.Backend. Any syntax error aborts the whole
// conversion: no partial tree is ever returned.
func (p *Parser) Parse(ctx context.Context, filename string, src []byte) (*ast.Node, []ast.Comment, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, nil, fmt.Errorf("tsruby: unexpected pool entry type")
	}

	defer p.pool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, nil, &parser.ParseError{File: filename, Line: 1, Col: 1, Msg: err.Error()}
	}

	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, nil, &parser.ParseError{File: filename, Line: 1, Col: 1, Msg: "empty parse tree"}
	}

	if perr := findSyntaxError(root, filename); perr != nil {
		return nil, nil, perr
	}

	nm := &normalizer{file: filename, src: src}
	nm.pushScope(true)

	node, err := nm.program(root)
	if err != nil {
		return nil, nil, err
	}

	return node, collectComments(root, src), nil
}

// findSyntaxError locates the first ERROR or missing node so the reported
// position points at the offending token, not the file start.
func findSyntaxError(root sitter.Node, filename string) *parser.ParseError {
	if !root.HasError() {
		return nil
	}

	if bad, found := firstErrorNode(root); found {
		return &parser.ParseError{
			File: filename,
			Line: int(bad.StartPoint().Row) + 1,
			Col:  int(bad.StartPoint().Column) + 1,
			Msg:  "syntax error",
		}
	}

	return &parser.ParseError{File: filename, Line: 1, Col: 1, Msg: "syntax error"}
}

func firstErrorNode(n sitter.Node) (sitter.Node, bool) {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n, true
	}

	for i := range n.ChildCount() {
		child := n.Child(i)
		if !child.HasError() && !child.IsMissing() {
			continue
		}

		if bad, found := firstErrorNode(child); found {
			return bad, true
		}
	}

	return sitter.Node{}, false
}

// collectComments walks the whole tree gathering comment nodes, which the
// grammar allows as extras anywhere.
func collectComments(root sitter.Node, src []byte) []ast.Comment {
	var out []ast.Comment

	var walk func(n sitter.Node)

	walk = func(n sitter.Node) {
		if n.Type() == "comment" {
			out = append(out, ast.Comment{Text: n.Content(src), Loc: nodeLoc(n)})

			return
		}

		for i := range n.NamedChildCount() {
			walk(n.NamedChild(i))
		}
	}

	walk(root)

	return out
}

func nodeLoc(n sitter.Node) *ast.Loc {
	return &ast.Loc{
		StartLine:   int(n.StartPoint().Row) + 1,
		StartCol:    int(n.StartPoint().Column) + 1,
		StartOffset: int(n.StartByte()),
		EndLine:     int(n.EndPoint().Row) + 1,
		EndCol:      int(n.EndPoint().Column) + 1,
		EndOffset:   int(n.EndByte()),
	}
}
