package sourcemap_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rbconv/rbconv/pkg/sourcemap"
)

func TestKnownVLQEncodings(t *testing.T) {
	t.Parallel()

	// "AAAA" is the canonical encoding of four zero deltas.
	g := sourcemap.NewGenerator("out.js")
	idx := g.AddSource("in.rb", nil)
	g.AddLine()

	if err := g.AddMapping(0, idx, 0, 0); err != nil {
		t.Fatal(err)
	}

	if got := g.Map().Mappings; got != "AAAA" {
		t.Errorf("Mappings = %q, want AAAA", got)
	}
}

func TestDeltaEncodingAcrossSegmentsAndLines(t *testing.T) {
	t.Parallel()

	g := sourcemap.NewGenerator("out.js")
	idx := g.AddSource("in.rb", nil)

	g.AddLine()

	if err := g.AddMapping(0, idx, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := g.AddMapping(4, idx, 0, 4); err != nil {
		t.Fatal(err)
	}

	g.AddLine()

	if err := g.AddMapping(0, idx, 1, 0); err != nil {
		t.Fatal(err)
	}

	// Segment two encodes deltas (4,0,0,4) = "IAAI"; line two restarts
	// the column but keeps source deltas: (0,0,1,-4) = "AACJ".
	if got := g.Map().Mappings; got != "AAAA,IAAI;AACJ" {
		t.Errorf("Mappings = %q, want AAAA,IAAI;AACJ", got)
	}
}

func TestMappingOrderEnforced(t *testing.T) {
	t.Parallel()

	g := sourcemap.NewGenerator("out.js")
	idx := g.AddSource("in.rb", nil)

	if err := g.AddMapping(0, idx, 0, 0); err == nil {
		t.Error("mapping before any line must fail")
	}

	g.AddLine()

	if err := g.AddMapping(5, idx, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := g.AddMapping(2, idx, 0, 0); err == nil {
		t.Error("out-of-order column must fail")
	}
}

func TestSourceRegistrationIsIdempotent(t *testing.T) {
	t.Parallel()

	g := sourcemap.NewGenerator("out.js")

	first := g.AddSource("in.rb", nil)
	second := g.AddSource("in.rb", nil)

	if first != second {
		t.Errorf("re-registering a source gave index %d, want %d", second, first)
	}
}

func TestMapDocumentShape(t *testing.T) {
	t.Parallel()

	content := "x = 1"

	g := sourcemap.NewGenerator("out.js")
	idx := g.AddSource("in.rb", &content)
	g.AddLine()

	if err := g.AddMapping(0, idx, 0, 0); err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(g.Map())
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}

	if doc["version"] != float64(3) {
		t.Errorf("version = %v, want 3", doc["version"])
	}

	sources, _ := doc["sources"].([]any)
	if len(sources) != 1 || sources[0] != "in.rb" {
		t.Errorf("sources = %v", doc["sources"])
	}
}

func TestInlineComment(t *testing.T) {
	t.Parallel()

	g := sourcemap.NewGenerator("out.js")
	idx := g.AddSource("in.rb", nil)
	g.AddLine()

	if err := g.AddMapping(0, idx, 0, 0); err != nil {
		t.Fatal(err)
	}

	comment, err := g.Map().InlineComment()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(comment, "//# sourceMappingURL=data:application/json;base64,") {
		t.Errorf("unexpected comment prefix: %q", comment)
	}
}
