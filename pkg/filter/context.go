package filter

import (
	"github.com/rbconv/rbconv/pkg/ast"
	"github.com/rbconv/rbconv/pkg/dialect"
	"github.com/rbconv/rbconv/pkg/scope"
)

// Context carries the per-conversion state threaded through every handler
// invocation. One Context is constructed per conversion and never shared
// across conversions; filters must not keep state anywhere else.
type Context struct {
	// File is the current file name, for diagnostics.
	File string

	// ESLevel is the target dialect tier.
	ESLevel dialect.ESLevel

	// Options is a free-form bag of filter options from configuration.
	Options map[string]string

	// Scope answers local-vs-method-call questions for the node the
	// processor is currently visiting. Populated by the scope pre-pass
	// and replayed during traversal.
	Scope *scope.Tracker

	exclusions map[ast.Type]struct{}
	warnings   []string
}

// NewContext returns a context for one conversion.
func NewContext(file string, level dialect.ESLevel) *Context {
	return &Context{
		File:       file,
		ESLevel:    level,
		Options:    make(map[string]string),
		Scope:      scope.NewTracker(),
		exclusions: make(map[ast.Type]struct{}),
	}
}

// Exclude marks node types that the pipeline passes through untouched for
// this conversion. Used for dialect and feature gating.
func (ctx *Context) Exclude(types ...ast.Type) {
	for _, typ := range types {
		ctx.exclusions[typ] = struct{}{}
	}
}

// Excluded reports whether a node type is excluded from rewriting.
func (ctx *Context) Excluded(typ ast.Type) bool {
	_, ok := ctx.exclusions[typ]

	return ok
}

// Warn records a non-fatal diagnostic. Under the strict option the façade
// promotes warnings to errors after the conversion completes.
func (ctx *Context) Warn(msg string) {
	ctx.warnings = append(ctx.warnings, msg)
}

// Warnings returns the collected warnings in emission order.
func (ctx *Context) Warnings() []string {
	return ctx.warnings
}
