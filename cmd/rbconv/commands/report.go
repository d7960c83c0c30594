package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/rbconv/rbconv/pkg/convert"
	"github.com/rbconv/rbconv/pkg/sourcemap"
)

// fileReport is the per-file outcome shown in the summary table.
type fileReport struct {
	input    string
	output   string
	duration time.Duration
	size     int
	warnings int
	cached   bool
	drift    bool
	err      error
}

func (r fileReport) status() string {
	switch {
	case r.err != nil:
		return "error"
	case r.drift:
		return "drift"
	case r.cached:
		return "cached"
	default:
		return "ok"
	}
}

func printDiagnostics(w io.Writer, diags []convert.Diagnostic) {
	for _, diag := range diags {
		c := color.New(color.FgYellow)
		if diag.Severity == convert.SeverityError {
			c = color.New(color.FgRed)
		}

		if diag.Line > 0 {
			c.Fprintf(w, "%s:%d:%d: %s: %s\n", diag.File, diag.Line, diag.Col, diag.Severity, diag.Message)
		} else {
			c.Fprintf(w, "%s: %s: %s\n", diag.File, diag.Severity, diag.Message)
		}
	}
}

func printFailure(w io.Writer, path string, err error) {
	color.New(color.FgRed).Fprintf(w, "%s: %v\n", path, err)
}

// renderSummary prints the per-file outcome table.
func renderSummary(w io.Writer, reports []fileReport) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Status", "Warnings", "Time", "Size"})

	var totalSize int

	var totalDuration time.Duration

	for _, report := range reports {
		tbl.AppendRow(table.Row{
			report.input,
			report.status(),
			report.warnings,
			report.duration.Round(time.Millisecond),
			humanize.Bytes(uint64(report.size)),
		})

		totalSize += report.size
		totalDuration += report.duration
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d files", len(reports)), "", "",
		totalDuration.Round(time.Millisecond),
		humanize.Bytes(uint64(totalSize)),
	})

	tbl.Render()
}

// checkDrift compares the generated text against the file on disk and
// prints a patch when they differ.
func checkDrift(w io.Writer, outPath, generated string) (bool, error) {
	existing, err := os.ReadFile(outPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			color.New(color.FgYellow).Fprintf(w, "%s: missing\n", outPath)

			return true, nil
		}

		return false, fmt.Errorf("read %s: %w", outPath, err)
	}

	if string(existing) == generated {
		return false, nil
	}

	color.New(color.FgYellow).Fprintf(w, "%s: out of date\n", outPath)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(existing), generated, false)
	patches := dmp.PatchMake(string(existing), diffs)
	fmt.Fprint(w, dmp.PatchToText(patches))

	return true, nil
}

func writeSourceMap(outPath string, m *sourcemap.Map) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode source map: %w", err)
	}

	mapPath := outPath + ".map"

	writeErr := os.WriteFile(mapPath, raw, 0o644) //nolint:gosec // generated artifact
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", mapPath, writeErr)
	}

	return nil
}
