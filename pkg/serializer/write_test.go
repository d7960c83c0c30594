package serializer

import "testing"

func TestUTF16Len(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"héllo", 5},
		{"日本語", 3},
		{"a🙂b", 4},
	}

	for _, tc := range cases {
		if got := utf16Len(tc.text); got != tc.want {
			t.Errorf("utf16Len(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

// The output column feeds source-map segments, which count UTF-16 code
// units rather than bytes.
func TestColumnCountsUTF16Units(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	s.write(`log("🙂")`)

	if s.col != 9 {
		t.Errorf("col = %d, want 9", s.col)
	}
}
