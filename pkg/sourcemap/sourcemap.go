// Package sourcemap builds source map V3 documents mapping generated
// JavaScript positions back to the original Ruby source.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Version is the source map format version.
const Version = 3

var (
	errNoLine     = errors.New("sourcemap: a line must be added before mappings")
	errOutOfOrder = errors.New("sourcemap: mappings must be added in output order")
	errBadSource  = errors.New("sourcemap: unknown source index")
)

// Map is the JSON document defined by the source map V3 spec.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// InlineComment renders the map as a //# sourceMappingURL data-URI
// comment suitable for appending to the generated file.
func (m *Map) InlineComment() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("sourcemap: marshal: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(raw)

	return "//# sourceMappingURL=data:application/json;base64," + encoded, nil
}

// segment is one mapping within a generated line. All positions are
// zero-based, per the V3 spec.
type segment struct {
	genCol      int
	sourceIndex int
	sourceLine  int
	sourceCol   int
}

// Generator accumulates mappings line by line while the serializer emits
// output, then encodes them with base64 VLQ deltas.
type Generator struct {
	file    string
	sources []string
	content []*string
	lines   [][]segment
	lastCol int
}

// NewGenerator returns a generator for the given output file name.
func NewGenerator(file string) *Generator {
	return &Generator{file: file}
}

// AddSource registers a source file and returns its index. The content may
// be nil when consumers are expected to load it from the URL.
func (g *Generator) AddSource(url string, content *string) int {
	for i, existing := range g.sources {
		if existing == url {
			return i
		}
	}

	g.sources = append(g.sources, url)
	g.content = append(g.content, content)

	return len(g.sources) - 1
}

// AddLine starts a new generated-output line.
func (g *Generator) AddLine() {
	g.lines = append(g.lines, nil)
	g.lastCol = 0
}

// AddMapping records that the generated column maps to the given
// zero-based source position. Mappings within a line must arrive in
// ascending column order.
func (g *Generator) AddMapping(genCol, sourceIndex, sourceLine, sourceCol int) error {
	if len(g.lines) == 0 {
		return errNoLine
	}

	if genCol < g.lastCol {
		return errOutOfOrder
	}

	if sourceIndex < 0 || sourceIndex >= len(g.sources) {
		return fmt.Errorf("%w: %d", errBadSource, sourceIndex)
	}

	g.lastCol = genCol

	cur := len(g.lines) - 1
	g.lines[cur] = append(g.lines[cur], segment{
		genCol:      genCol,
		sourceIndex: sourceIndex,
		sourceLine:  sourceLine,
		sourceCol:   sourceCol,
	})

	return nil
}

// Empty reports whether no mappings were recorded.
func (g *Generator) Empty() bool {
	for _, line := range g.lines {
		if len(line) > 0 {
			return false
		}
	}

	return true
}

// Map encodes the accumulated mappings into the V3 document.
func (g *Generator) Map() *Map {
	var buf strings.Builder

	// Source index and position deltas reset only between segments, not
	// between lines; the generated column delta resets per line.
	var lastSourceIndex, lastSourceLine, lastSourceCol int

	for i, line := range g.lines {
		if i > 0 {
			buf.WriteByte(';')
		}

		lastCol := 0

		for j, seg := range line {
			if j > 0 {
				buf.WriteByte(',')
			}

			writeVLQ(&buf, seg.genCol-lastCol)
			lastCol = seg.genCol

			writeVLQ(&buf, seg.sourceIndex-lastSourceIndex)
			lastSourceIndex = seg.sourceIndex

			writeVLQ(&buf, seg.sourceLine-lastSourceLine)
			lastSourceLine = seg.sourceLine

			writeVLQ(&buf, seg.sourceCol-lastSourceCol)
			lastSourceCol = seg.sourceCol
		}
	}

	sources := g.sources
	if sources == nil {
		sources = []string{}
	}

	content := g.content
	if content == nil {
		content = []*string{}
	}

	return &Map{
		Version:        Version,
		File:           g.file,
		Sources:        sources,
		SourcesContent: content,
		Names:          []string{},
		Mappings:       buf.String(),
	}
}

const vlqDigits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// writeVLQ encodes one signed value as base64 VLQ: the sign moves into the
// lowest bit, then the value is emitted in five-bit groups with a
// continuation bit.
func writeVLQ(buf *strings.Builder, value int) {
	if value < 0 {
		value = (-value << 1) | 1
	} else {
		value <<= 1
	}

	for {
		digit := value & 31
		value >>= 5

		if value > 0 {
			digit |= 32
		}

		buf.WriteByte(vlqDigits[digit])

		if value == 0 {
			return
		}
	}
}
