package miniruby_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rbconv/rbconv/pkg/parser"
	"github.com/rbconv/rbconv/pkg/parser/miniruby"
)

func parse(t *testing.T, src string) string {
	t.Helper()

	root, _, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(src))
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}

	return root.String()
}

func TestParseExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"assignment",
			`x = 1`,
			`(lvasgn :x (int 1))`,
		},
		{
			"local resolution",
			"x = 1\nputs x",
			`(begin (lvasgn :x (int 1)) (send nil :puts (lvar :x)))`,
		},
		{
			"command call",
			`puts "hi"`,
			`(send nil :puts (str "hi"))`,
		},
		{
			"operator precedence",
			`a = 1 + 2 * 3`,
			`(lvasgn :a (send (int 1) :+ (send (int 2) :* (int 3))))`,
		},
		{
			"explicit grouping",
			`a = (1 + 2) * 3`,
			`(lvasgn :a (send (send (int 1) :+ (int 2)) :* (int 3)))`,
		},
		{
			"power is right associative",
			`z = 2 ** 3 ** 2`,
			`(lvasgn :z (send (int 2) :** (send (int 3) :** (int 2))))`,
		},
		{
			"boolean operators",
			`ready = a && b || c`,
			`(lvasgn :ready (or (and (send nil :a) (send nil :b)) (send nil :c)))`,
		},
		{
			"negation",
			`flag = !ok`,
			`(lvasgn :flag (not (send nil :ok)))`,
		},
		{
			"negative literal folding",
			`t = -2.5`,
			`(lvasgn :t (float -2.5))`,
		},
		{
			"unary minus on expression",
			`y = -x`,
			`(lvasgn :y (send (send nil :x) :-@))`,
		},
		{
			"ternary",
			`x = cond ? 1 : 2`,
			`(lvasgn :x (if (send nil :cond) (int 1) (int 2)))`,
		},
		{
			"inclusive range",
			`r = 1..5`,
			`(lvasgn :r (irange (int 1) (int 5)))`,
		},
		{
			"exclusive range",
			`r = 1...5`,
			`(lvasgn :r (erange (int 1) (int 5)))`,
		},
		{
			"array literal",
			`a = [1, 2.5, :sym, nil]`,
			`(lvasgn :a (array (int 1) (float 2.5) (sym :sym) (nil)))`,
		},
		{
			"hash literal",
			`h = { name: "Ada", "k" => 1 }`,
			`(lvasgn :h (hash (pair (sym :name) (str "Ada")) (pair (str "k") (int 1))))`,
		},
		{
			"scoped constant",
			`x = Net::HTTP`,
			`(lvasgn :x (const (const nil :Net) :HTTP))`,
		},
		{
			"instance and global variables",
			`@count = $total`,
			`(ivasgn :count (gvar :total))`,
		},
		{
			"splat and block-pass arguments",
			`apply(*args, &blk)`,
			`(send nil :apply (splat (send nil :args)) (block_pass (send nil :blk)))`,
		},
		{
			"keyword arguments fold into a hash",
			`create(name: "x", age: 3)`,
			`(send nil :create (hash (pair (sym :name) (str "x")) (pair (sym :age) (int 3))))`,
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

func TestParseCallsAndAssignTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"attribute read",
			`obj.save`,
			`(send (send nil :obj) :save)`,
		},
		{
			"safe navigation",
			`user&.save`,
			`(csend (send nil :user) :save)`,
		},
		{
			"index read",
			`a = items[0]`,
			`(lvasgn :a (send (send nil :items) :[] (int 0)))`,
		},
		{
			"index assignment",
			"x = []\nx[0] = 5",
			`(begin (lvasgn :x (array)) (send (lvar :x) :[]= (int 0) (int 5)))`,
		},
		{
			"attribute assignment",
			`user.name = "Ada"`,
			`(send (send nil :user) :name= (str "Ada"))`,
		},
		{
			"operator assignment",
			"h = 1\nh *= 2",
			`(begin (lvasgn :h (int 1)) (op_asgn (lvasgn :h) :* (int 2)))`,
		},
		{
			"or-assign desugars",
			`x ||= 1`,
			`(lvasgn :x (or (lvar :x) (int 1)))`,
		},
		{
			"and-assign desugars",
			"y = 1\ny &&= 2",
			`(begin (lvasgn :y (int 1)) (lvasgn :y (and (lvar :y) (int 2))))`,
		},
		{
			"do block",
			"items.each do |item|\n  puts item\nend",
			`(block (send (send nil :items) :each) (args (arg :item)) (send nil :puts (lvar :item)))`,
		},
		{
			"brace block",
			`items.map { |x| x * 2 }`,
			`(block (send (send nil :items) :map) (args (arg :x)) (send (lvar :x) :* (int 2)))`,
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

func TestParseStatements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"if elsif else",
			"if x > 1\n  a\nelsif x > 0\n  b\nelse\n  c\nend",
			`(if (send (send nil :x) :> (int 1)) (send nil :a) (if (send (send nil :x) :> (int 0)) (send nil :b) (send nil :c)))`,
		},
		{
			"if modifier",
			`puts x if x`,
			`(if (send nil :x) (send nil :puts (send nil :x)) nil)`,
		},
		{
			"unless",
			"unless ok\n  retreat\nend",
			`(if (send nil :ok) nil (send nil :retreat))`,
		},
		{
			"while loop",
			"i = 0\nwhile i < 3\n  i += 1\nend",
			`(begin (lvasgn :i (int 0)) (while (send (lvar :i) :< (int 3)) (op_asgn (lvasgn :i) :+ (int 1))))`,
		},
		{
			"until loop",
			"until done\n  step\nend",
			`(until (send nil :done) (send nil :step))`,
		},
		{
			"method definition",
			"def add(a, b = 1, *rest, &blk)\n  a + b\nend",
			`(def :add (args (arg :a) (optarg :b (int 1)) (restarg :rest) (blockarg :blk)) (send (lvar :a) :+ (lvar :b)))`,
		},
		{
			"singleton method",
			"def self.build\n  nil\nend",
			`(defs (self) :build (args) (nil))`,
		},
		{
			"writer method name",
			"def name=(v)\n  @name = v\nend",
			`(def :name= (args (arg :v)) (ivasgn :name (lvar :v)))`,
		},
		{
			"return value",
			"def f\n  return 1\nend",
			`(def :f (args) (return (int 1)))`,
		},
		{
			"class with superclass",
			"class Foo < Bar::Base\n  def run\n  end\nend",
			`(class (const nil :Foo) (const (const nil :Bar) :Base) (def :run (args) nil))`,
		},
		{
			"module",
			"module Util\nend",
			`(module (const nil :Util) nil)`,
		},
		{
			"case when",
			"case x\nwhen 1, 2 then small\nwhen 3\n  big\nelse\n  other\nend",
			`(case (send nil :x) (when (int 1) (int 2) (send nil :small)) (when (int 3) (send nil :big)) (send nil :other))`,
		},
		{
			"begin rescue ensure",
			"begin\n  risky\nrescue IOError => e\n  handle e\nensure\n  cleanup\nend",
			`(kwbegin (ensure (rescue (send nil :risky) (resbody (array (const nil :IOError)) (lvasgn :e) (send nil :handle (lvar :e))) nil) (send nil :cleanup)))`,
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

// Source parentheses must be recorded so the serializer can reproduce the
// call-vs-attribute distinction.
func TestParensRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want bool
	}{
		{`obj.save()`, true},
		{`obj.save`, false},
		{`ping()`, true},
	}

	for _, tc := range tests {
		root, _, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(tc.src))
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.src, err)
		}

		if root.Loc == nil || root.Loc.HasParens != tc.want {
			t.Errorf("%q: HasParens = %v, want %v", tc.src, root.Loc != nil && root.Loc.HasParens, tc.want)
		}
	}
}

func TestLocationsAreOneBased(t *testing.T) {
	t.Parallel()

	root, _, err := miniruby.New().Parse(context.Background(), "test.rb", []byte("x = 1\ny = 2"))
	if err != nil {
		t.Fatal(err)
	}

	first := root.ChildNode(0)
	if first.Loc.StartLine != 1 || first.Loc.StartCol != 1 {
		t.Errorf("first statement at %d:%d, want 1:1", first.Loc.StartLine, first.Loc.StartCol)
	}

	second := root.ChildNode(1)
	if second.Loc.StartLine != 2 || second.Loc.StartCol != 1 {
		t.Errorf("second statement at %d:%d, want 2:1", second.Loc.StartLine, second.Loc.StartCol)
	}
}

func TestCommentsCollected(t *testing.T) {
	t.Parallel()

	src := "# header\nx = 1 # trailing"

	_, comments, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(src))
	if err != nil {
		t.Fatal(err)
	}

	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}

	if comments[0].Text != "# header" || comments[0].Loc.StartLine != 1 {
		t.Errorf("first comment = %q at line %d", comments[0].Text, comments[0].Loc.StartLine)
	}

	if comments[1].Text != "# trailing" || comments[1].Loc.StartLine != 2 {
		t.Errorf("second comment = %q at line %d", comments[1].Text, comments[1].Loc.StartLine)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		line int
	}{
		{"missing assignment value", "x =", 1},
		{"unterminated string", "s = \"oops", 1},
		{"missing method name", "def\nend", 1},
		{"unclosed def", "def f\n  x = 1", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(tc.src))
			if err == nil {
				t.Fatal("expected a parse error")
			}

			var perr *parser.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *parser.ParseError", err)
			}

			if perr.File != "test.rb" {
				t.Errorf("File = %q, want test.rb", perr.File)
			}

			if perr.Line != tc.line {
				t.Errorf("Line = %d, want %d: %v", perr.Line, tc.line, perr)
			}
		})
	}
}
