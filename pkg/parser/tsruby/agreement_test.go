package tsruby_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/parser/miniruby"
	"github.com/rbconv/rbconv/pkg/parser/tsruby"
)

// Both backends must produce structurally identical trees for the shared
// language subset. Locations differ by construction and are ignored.
func TestBackendAgreement(t *testing.T) {
	t.Parallel()

	sources := []string{
		"x = 1",
		"a = 1 + 2 * 3",
		"puts x",
		"user.name",
		"obj.save()",
		"user&.name",
		"if x\n  a\nelse\n  b\nend",
		"def add(a, b)\n  a + b\nend",
		"items.map { |x| x * 2 }",
		"h = { a: 1 }",
		"@name = value",
		"CONST = 10",
		"while x < 10\n  x += 1\nend",
	}

	ignoreLoc := cmpopts.IgnoreFields(ast.Node{}, "Loc")

	for _, src := range sources {
		pure, _, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(src))
		if err != nil {
			t.Fatalf("miniruby.Parse(%q): %v", src, err)
		}

		sitter, _, err := tsruby.New().Parse(context.Background(), "test.rb", []byte(src))
		if err != nil {
			t.Fatalf("tsruby.Parse(%q): %v", src, err)
		}

		if diff := cmp.Diff(pure, sitter, ignoreLoc); diff != "" {
			t.Errorf("%q: tree mismatch (-miniruby +tree-sitter):\n%s", src, diff)
		}
	}
}
