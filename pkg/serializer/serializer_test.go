package serializer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/parser/miniruby"
	"github.com/rbconv/rbconv/pkg/serializer"
)

func render(t *testing.T, src string, level dialect.ESLevel) *serializer.Output {
	t.Helper()

	root, comments, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}

	out, err := serializer.New(serializer.Options{ESLevel: level}).Render(root, comments)
	if err != nil {
		t.Fatalf("render %q: %v", src, err)
	}

	return out
}

func renderErr(t *testing.T, src string, level dialect.ESLevel) error {
	t.Helper()

	root, comments, err := miniruby.New().Parse(context.Background(), "test.rb", []byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}

	_, err = serializer.New(serializer.Options{ESLevel: level}).Render(root, comments)
	if err == nil {
		t.Fatalf("render %q: expected error", src)
	}

	return err
}

func TestStatements(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			"declaration only on first assignment",
			"x = 1\nx = x + 1",
			"let x = 1;\nx = x + 1;\n",
		},
		{
			"parenthesized subexpression keeps grouping",
			"y = (1 + 2) * 3",
			"let y = (1 + 2) * 3;\n",
		},
		{
			"natural precedence needs no parentheses",
			"y = 1 + 2 * 3",
			"let y = 1 + 2 * 3;\n",
		},
		{
			"command call",
			"x = 1\nputs x",
			"let x = 1;\nputs(x);\n",
		},
		{
			"attribute read stays bare",
			"a.size",
			"a.size;\n",
		},
		{
			"explicit parens force a call",
			"a.size()",
			"a.size();\n",
		},
		{
			"if elsif else",
			"if a()\n  b()\nelsif c()\n  d()\nelse\n  e()\nend",
			"if (a()) {\n  b();\n} else if (c()) {\n  d();\n} else {\n  e();\n}\n",
		},
		{
			"unless negates",
			"unless ready()\n  wait()\nend",
			"if (!ready()) {\n  wait();\n}\n",
		},
		{
			"until becomes a negated while",
			"until done()\n  step()\nend",
			"while (!done()) {\n  step();\n}\n",
		},
		{
			"case becomes switch",
			"case x\nwhen 1\n  a()\nelse\n  b()\nend",
			"switch (x) {\n  case 1:\n    a();\n    break;\n  default:\n    b();\n}\n",
		},
		{
			"method definition",
			"def add(a, b)\n  return a + b\nend",
			"function add(a, b) {\n  return a + b;\n}\n",
		},
		{
			"singleton method at top level",
			"def self.create\n  Widget.new\nend",
			"function create() {\n  new Widget();\n}\n",
		},
		{
			"predicate suffix dropped",
			"def valid?(x)\n  x\nend",
			"function valid(x) {\n  x;\n}\n",
		},
		{
			"class with constructor and superclass",
			"class Dog < Animal\n  def initialize(name)\n    @name = name\n  end\n  def speak\n    bark(@name)\n  end\nend",
			"class Dog extends Animal {\n  constructor(name) {\n    this.name = name;\n  }\n  speak() {\n    bark(this.name);\n  }\n}\n",
		},
		{
			"module becomes an object literal",
			"module MathUtils\n  def double(x)\n    x * 2\n  end\nend",
			"const MathUtils = {\n  double(x) {\n    x * 2;\n  }\n};\n",
		},
		{
			"rescue and ensure become try catch finally",
			"begin\n  risky()\nrescue IOError => e\n  handle(e)\nensure\n  cleanup()\nend",
			"try {\n  risky();\n} catch (e) {\n  if (e instanceof IOError) {\n    handle(e);\n  } else {\n    throw e;\n  }\n} finally {\n  cleanup();\n}\n",
		},
		{
			"constant assignment",
			"LIMIT = 10",
			"const LIMIT = 10;\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := render(t, tc.src, dialect.ES2015).Code; got != tc.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestExpressions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			"ternary",
			"y = a() ? 1 : 2",
			"let y = a() ? 1 : 2;\n",
		},
		{
			"boolean operators",
			"y = a() && b() || c()",
			"let y = a() && b() || c();\n",
		},
		{
			"negation",
			"y = !done()",
			"let y = !done();\n",
		},
		{
			"nil becomes null",
			"y = nil",
			"let y = null;\n",
		},
		{
			"hash literal keys",
			"h = { :a => 1, \"b c\" => 2 }",
			"let h = {a: 1, \"b c\": 2};\n",
		},
		{
			"array index read and write",
			"xs = [1, 2]\nxs[0] = xs[1]",
			"let xs = [1, 2];\nxs[0] = xs[1];\n",
		},
		{
			"append becomes push",
			"xs = []\nxs << 3",
			"let xs = [];\nxs.push(3);\n",
		},
		{
			"attribute writer",
			"o.name = \"x\"",
			"o.name = \"x\";\n",
		},
		{
			"operator assignment",
			"x = 1\nx += 2",
			"let x = 1;\nx += 2;\n",
		},
		{
			"or-assign desugars to a guard",
			"x = 1\nx ||= 5",
			"let x = 1;\nx = x || 5;\n",
		},
		{
			"exponentiation operator",
			"y = a() ** 2",
			"let y = a() ** 2;\n",
		},
		{
			"iterator block",
			"xs = []\nxs.each { |x| use(x) }",
			"let xs = [];\nxs.each((x) => {\n  use(x);\n});\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := render(t, tc.src, dialect.ES2015).Code; got != tc.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestES5Lowering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			"var instead of let",
			"x = 1",
			"var x = 1;\n",
		},
		{
			"exponentiation falls back to Math.pow",
			"y = a() ** 2",
			"var y = Math.pow(a(), 2);\n",
		},
		{
			"blocks render as function expressions",
			"xs = []\nxs.each { |x| use(x) }",
			"var xs = [];\nxs.each(function(x) {\n  use(x);\n});\n",
		},
		{
			"module uses named function members",
			"module MathUtils\n  def double(x)\n    x * 2\n  end\nend",
			"var MathUtils = {\n  double: function(x) {\n    x * 2;\n  }\n};\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := render(t, tc.src, dialect.ES5).Code; got != tc.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tc.want)
			}
		})
	}
}

func TestSafeNavigation(t *testing.T) {
	t.Parallel()

	src := "u = find()\nu&.save()"

	out := render(t, src, dialect.ES2020)
	if want := "let u = find();\nu?.save();\n"; out.Code != want {
		t.Errorf("es2020: got %q, want %q", out.Code, want)
	}

	if len(out.Warnings) != 0 {
		t.Errorf("es2020 should not warn, got %v", out.Warnings)
	}

	out = render(t, src, dialect.ES2015)
	if want := "let u = find();\nu && u.save();\n"; out.Code != want {
		t.Errorf("es2015: got %q, want %q", out.Code, want)
	}

	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "safe navigation") {
		t.Errorf("es2015 should warn about the lowering, got %v", out.Warnings)
	}
}

func TestInterpolatedStrings(t *testing.T) {
	t.Parallel()

	dstr := ast.New(ast.TypeDStr,
		ast.New(ast.TypeStr, "hi "),
		ast.New(ast.TypeLVar, ast.Symbol("name")),
		ast.New(ast.TypeStr, "!"),
	)

	out, err := serializer.New(serializer.Options{ESLevel: dialect.ES2015}).Render(dstr, nil)
	if err != nil {
		t.Fatal(err)
	}

	if want := "`hi ${name}!`;\n"; out.Code != want {
		t.Errorf("es2015: got %q, want %q", out.Code, want)
	}

	out, err = serializer.New(serializer.Options{ESLevel: dialect.ES5}).Render(dstr, nil)
	if err != nil {
		t.Fatal(err)
	}

	if want := "\"hi \" + name + \"!\";\n"; out.Code != want {
		t.Errorf("es5: got %q, want %q", out.Code, want)
	}
}

func TestUnsupportedConstructs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		src    string
		level  dialect.ESLevel
		reason string
	}{
		{"range literal", "r = 1..5", dialect.ES2020, "range"},
		{"class below es2015", "class A\nend", dialect.ES5, "--es 2015"},
		{"value-carrying break", "while a()\n  break 1\nend", dialect.ES2020, "no JavaScript equivalent"},
		{"splat below es2015", "f(*args)", dialect.ES5, "--es 2015"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := renderErr(t, tc.src, tc.level)

			var unsup *serializer.UnsupportedNodeError
			if !errors.As(err, &unsup) {
				t.Fatalf("error type %T: %v", err, err)
			}

			if !strings.Contains(unsup.Reason, tc.reason) {
				t.Errorf("reason %q does not mention %q", unsup.Reason, tc.reason)
			}
		})
	}
}

// Filters can synthesize declaration nodes, so a class or module whose
// name child is missing must surface as an error, not a crash.
func TestMissingDeclarationNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		root *ast.Node
	}{
		{"class without a name", ast.New(ast.TypeBegin, ast.New(ast.TypeClass, nil, nil, nil))},
		{"module without a name", ast.New(ast.TypeBegin, ast.New(ast.TypeModule, nil, nil))},
		{"class with a scoped name", ast.New(ast.TypeClass,
			ast.New(ast.TypeConst, ast.New(ast.TypeConst, nil, ast.Symbol("A")), ast.Symbol("B")), nil, nil)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := serializer.New(serializer.Options{ESLevel: dialect.ES2015}).Render(tc.root, nil)

			var unsup *serializer.UnsupportedNodeError
			if !errors.As(err, &unsup) {
				t.Fatalf("error type %T: %v", err, err)
			}

			if !strings.Contains(unsup.Reason, "simple constant") {
				t.Errorf("reason %q does not mention simple constants", unsup.Reason)
			}
		})
	}
}

func TestCommentsCarriedOver(t *testing.T) {
	t.Parallel()

	got := render(t, "# greet the user\nhello()", dialect.ES2015).Code
	want := "// greet the user\nhello();\n"

	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSourceMapEmission(t *testing.T) {
	t.Parallel()

	root, comments, err := miniruby.New().Parse(context.Background(), "in.rb", []byte("x = 1\ny = x"))
	if err != nil {
		t.Fatal(err)
	}

	out, err := serializer.New(serializer.Options{
		ESLevel:       dialect.ES2015,
		SourceFile:    "in.rb",
		OutputFile:    "out.js",
		WithSourceMap: true,
	}).Render(root, comments)
	if err != nil {
		t.Fatal(err)
	}

	if out.Map == nil {
		t.Fatal("expected a source map")
	}

	if out.Map.Version != 3 {
		t.Errorf("version = %d, want 3", out.Map.Version)
	}

	if len(out.Map.Sources) != 1 || out.Map.Sources[0] != "in.rb" {
		t.Errorf("sources = %v", out.Map.Sources)
	}

	// Two output lines means at least one line separator in the mappings.
	if !strings.Contains(out.Map.Mappings, ";") {
		t.Errorf("mappings %q lack a line separator", out.Map.Mappings)
	}
}
