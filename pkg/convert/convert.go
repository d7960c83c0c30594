// Package convert is the public façade over the conversion pipeline:
// parse, filter, serialize, one call. A Converter is immutable after
// construction and safe for concurrent use; every per-conversion value
// lives on the call stack.
package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/filter"
	"github.com/rbconv/rbconv/pkg/filters"
	"github.com/rbconv/rbconv/pkg/parser"
	"github.com/rbconv/rbconv/pkg/parser/miniruby"
	"github.com/rbconv/rbconv/pkg/parser/tsruby"
	"github.com/rbconv/rbconv/pkg/serializer"
	"github.com/rbconv/rbconv/pkg/sourcemap"
)

// ConfigurationError reports invalid options. It is returned before any
// parsing happens.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

// ErrStrictWarnings is wrapped by the error returned when Strict promotes
// warnings to a failure.
var ErrStrictWarnings = errors.New("conversion produced warnings")

// Severity grades a diagnostic.
type Severity string

// Diagnostic severities.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a non-fatal finding surfaced alongside the output.
type Diagnostic struct {
	Severity Severity
	Message  string
	File     string
	Line     int
	Col      int
}

// Options configure one conversion.
type Options struct {
	// File names the source in diagnostics and the source map. Defaults
	// to "(inline)".
	File string

	// Backend selects the parser: "miniruby" (default) or "tree-sitter".
	Backend string

	// Filters are applied in the given order. Unknown names fail before
	// parsing.
	Filters []string

	// ES is the target dialect ("es5", "es2015", "es2020"); empty means
	// es2015.
	ES string

	// Strict promotes warnings to an error after the conversion.
	Strict bool

	// Quote is the string literal style: "double" (default) or "single".
	Quote string

	// OmitSemicolons drops statement terminators from the output.
	OmitSemicolons bool

	// SourceMap enables source-map generation; IncludeSource embeds the
	// source text in it.
	SourceMap     bool
	IncludeSource bool

	// Exclusions lists node types the filter pipeline passes through
	// untouched.
	Exclusions []ast.Type
}

// Result is a successful conversion.
type Result struct {
	Text        string
	Map         *sourcemap.Map
	Diagnostics []Diagnostic

	// Nodes counts the tree nodes that reached the serializer.
	Nodes int
}

// Converter binds a backend registry and a filter registry into a
// reusable conversion service.
type Converter struct {
	backends *parser.Registry
	filters  *filters.Registry
}

// NewConverter returns a converter with the stock backends and filters
// registered.
func NewConverter() *Converter {
	backends := parser.NewRegistry()
	backends.Register(miniruby.New())
	backends.Register(tsruby.New())

	return &Converter{backends: backends, filters: filters.Default()}
}

//nolint:gochecknoglobals // package-level convenience instance
var defaultConverter = NewConverter()

// Convert runs one conversion with the default converter.
func Convert(ctx context.Context, source string, opts Options) (*Result, error) {
	return defaultConverter.Convert(ctx, source, opts)
}

// Convert parses, filters, and serializes one source text. Configuration
// problems fail before parsing; parse, filter, and serializer errors
// surface unwrapped for errors.As dispatch.
func (c *Converter) Convert(ctx context.Context, source string, opts Options) (*Result, error) {
	cfg, err := c.resolve(opts)
	if err != nil {
		return nil, err
	}

	root, comments, err := cfg.backend.Parse(ctx, cfg.file, []byte(source))
	if err != nil {
		return nil, err
	}

	fctx := filter.NewContext(cfg.file, cfg.level)
	fctx.Exclude(opts.Exclusions...)

	rewritten, err := filter.NewProcessor(cfg.chain...).Run(root, fctx)
	if err != nil {
		return nil, err
	}

	sopts := serializer.Options{
		ESLevel:        cfg.level,
		SourceFile:     cfg.file,
		OutputFile:     outputName(cfg.file),
		WithSourceMap:  opts.SourceMap,
		Quote:          opts.Quote,
		OmitSemicolons: opts.OmitSemicolons,
	}
	if opts.IncludeSource {
		sopts.SourceContent = []byte(source)
	}

	out, err := serializer.New(sopts).Render(rewritten, comments)
	if err != nil {
		return nil, err
	}

	result := &Result{Text: out.Code, Map: out.Map, Nodes: ast.Count(rewritten)}

	for _, msg := range fctx.Warnings() {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Severity: SeverityWarning, Message: msg, File: cfg.file,
		})
	}

	for _, msg := range out.Warnings {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Severity: SeverityWarning, Message: msg, File: cfg.file,
		})
	}

	if opts.Strict && len(result.Diagnostics) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrStrictWarnings, result.Diagnostics[0].Message)
	}

	return result, nil
}

// resolved holds the validated per-conversion configuration.
type resolved struct {
	file    string
	backend parser.Backend
	chain   []filter.Filter
	level   dialect.ESLevel
}

func (c *Converter) resolve(opts Options) (*resolved, error) {
	cfg := &resolved{file: opts.File}
	if cfg.file == "" {
		cfg.file = "(inline)"
	}

	name := opts.Backend
	if name == "" {
		name = "miniruby"
	}

	backend, err := c.backends.Lookup(name)
	if err != nil {
		return nil, &ConfigurationError{Field: "backend", Msg: err.Error()}
	}

	cfg.backend = backend

	cfg.chain, err = c.filters.Resolve(opts.Filters)
	if err != nil {
		return nil, &ConfigurationError{Field: "filters", Msg: err.Error()}
	}

	cfg.level, err = dialect.Parse(opts.ES)
	if err != nil {
		return nil, &ConfigurationError{Field: "es", Msg: err.Error()}
	}

	switch opts.Quote {
	case "", "double", "single":
	default:
		return nil, &ConfigurationError{Field: "quote", Msg: fmt.Sprintf("unknown quote style %q", opts.Quote)}
	}

	return cfg, nil
}

func outputName(file string) string {
	if file == "(inline)" {
		return "inline.js"
	}

	return strings.TrimSuffix(file, ".rb") + ".js"
}
