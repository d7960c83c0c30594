package tsruby_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rbconv/rbconv/pkg/parser"
	"github.com/rbconv/rbconv/pkg/parser/tsruby"
)

func parse(t *testing.T, src string) string {
	t.Helper()

	root, _, err := tsruby.New().Parse(context.Background(), "test.rb", []byte(src))
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}

	return root.String()
}

// The tree-sitter backend must emit the same canonical shapes as the pure
// Go backend for the shared subset.
func TestNormalizedShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"local resolution",
			"x = 1\nputs x",
			`(begin (lvasgn :x (int 1)) (send nil :puts (lvar :x)))`,
		},
		{
			"binary operators",
			`a = 1 + 2 * 3`,
			`(lvasgn :a (send (int 1) :+ (send (int 2) :* (int 3))))`,
		},
		{
			"if else",
			"if x\n  a\nelse\n  b\nend",
			`(if (send nil :x) (send nil :a) (send nil :b))`,
		},
		{
			"method definition",
			"def add(a, b)\n  a + b\nend",
			`(def :add (args (arg :a) (arg :b)) (send (lvar :a) :+ (lvar :b)))`,
		},
		{
			"method call chain",
			`user.name`,
			`(send (send nil :user) :name)`,
		},
		{
			"safe navigation",
			`user&.name`,
			`(csend (send nil :user) :name)`,
		},
		{
			"block",
			`items.map { |x| x * 2 }`,
			`(block (send (send nil :items) :map) (args (arg :x)) (send (lvar :x) :* (int 2)))`,
		},
		{
			"interpolated string",
			`greeting = "hi #{name}!"`,
			`(lvasgn :greeting (dstr (str "hi ") (send nil :name) (str "!")))`,
		},
		{
			"hash with symbol keys",
			`h = { a: 1 }`,
			`(lvasgn :h (hash (pair (sym :a) (int 1))))`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := parse(t, tc.src); got != tc.want {
				t.Errorf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestParensRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want bool
	}{
		{`obj.save()`, true},
		{`obj.save`, false},
		{`puts 1`, false},
	}

	for _, tc := range tests {
		root, _, err := tsruby.New().Parse(context.Background(), "test.rb", []byte(tc.src))
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.src, err)
		}

		if root.Loc == nil || root.Loc.HasParens != tc.want {
			t.Errorf("%q: HasParens = %v, want %v", tc.src, root.Loc != nil && root.Loc.HasParens, tc.want)
		}
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	t.Parallel()

	_, _, err := tsruby.New().Parse(context.Background(), "test.rb", []byte("def f(\nend"))
	if err == nil {
		t.Fatal("expected a parse error")
	}

	var perr *parser.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T is not a *parser.ParseError", err)
	}

	if perr.File != "test.rb" || perr.Line < 1 {
		t.Errorf("unexpected error position: %v", perr)
	}
}

func TestCommentsCollected(t *testing.T) {
	t.Parallel()

	_, comments, err := tsruby.New().Parse(context.Background(), "test.rb", []byte("# header\nx = 1"))
	if err != nil {
		t.Fatal(err)
	}

	if len(comments) != 1 || comments[0].Text != "# header" {
		t.Fatalf("comments = %v, want one # header", comments)
	}
}
