// Package commands implements CLI command handlers for rbconv.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbconv/rbconv/pkg/cache"
	"github.com/rbconv/rbconv/pkg/config"
	"github.com/rbconv/rbconv/pkg/convert"
	"github.com/rbconv/rbconv/pkg/observability"
	"github.com/rbconv/rbconv/pkg/version"
)

type convertExecutor func(ctx context.Context, source string, opts convert.Options) (*convert.Result, error)

var (
	// ErrNoInputs is returned when no Ruby sources match the arguments.
	ErrNoInputs = errors.New("no Ruby sources found")
	// ErrConversionFailed aggregates per-file conversion failures.
	ErrConversionFailed = errors.New("conversion failed")
	// ErrCheckDrift indicates generated outputs no longer match their sources.
	ErrCheckDrift = errors.New("generated output is out of date")
)

const metricsReadHeaderTimeout = 5 * time.Second

// ConvertCommand holds configuration and dependencies for the convert
// command.
type ConvertCommand struct {
	configPath    string
	backend       string
	filters       []string
	es            string
	quote         string
	noSemicolons  bool
	sourceMap     bool
	includeSource bool
	strict        bool
	outDir        string
	check         bool
	noCache       bool
	summary       bool
	noColor       bool
	metricsAddr   string

	convertFn convertExecutor
}

// NewConvertCommand creates the convert command.
func NewConvertCommand() *cobra.Command {
	return newConvertCommandWithDeps(convert.Convert)
}

func newConvertCommandWithDeps(convertFn convertExecutor) *cobra.Command {
	cc := &ConvertCommand{convertFn: convertFn}

	cmd := &cobra.Command{
		Use:   "convert [file|dir|-]...",
		Short: "Convert Ruby sources to JavaScript",
		Long:  "Convert Ruby files, directories, or stdin (-) to JavaScript.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  cc.run,
	}

	cmd.Flags().StringVarP(&cc.configPath, "config", "c", "", "Config file (default: .rbconv.yml)")
	cmd.Flags().StringVar(&cc.backend, "backend", "", "Parser backend: miniruby, tree-sitter")
	cmd.Flags().StringSliceVarP(&cc.filters, "filters", "f", nil,
		"Rewrite filters applied in order (example: functions,camelcase,return)")
	cmd.Flags().StringVar(&cc.es, "es", "", "Target dialect: es5, es2015, es2020")
	cmd.Flags().StringVar(&cc.quote, "quote", "", "String literal style: double, single")
	cmd.Flags().BoolVar(&cc.noSemicolons, "no-semicolons", false, "Omit statement terminators")
	cmd.Flags().BoolVar(&cc.sourceMap, "source-map", false, "Emit a .js.map next to each output")
	cmd.Flags().BoolVar(&cc.includeSource, "include-source", false, "Embed Ruby source text in the source map")
	cmd.Flags().BoolVar(&cc.strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().StringVarP(&cc.outDir, "out", "o", "", "Output directory (default: next to each input)")
	cmd.Flags().BoolVar(&cc.check, "check", false, "Verify outputs are up to date instead of writing")
	cmd.Flags().BoolVar(&cc.noCache, "no-cache", false, "Disable the conversion cache")
	cmd.Flags().BoolVar(&cc.summary, "summary", false, "Print a per-file summary table")
	cmd.Flags().BoolVar(&cc.noColor, "no-color", false, "Disable colored diagnostics")
	cmd.Flags().StringVar(&cc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func (cc *ConvertCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cc.configPath)
	if err != nil {
		return err
	}

	if cc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	opts := cc.resolveOptions(cmd, cfg)

	providers, metrics, err := cc.initObservability(cfg)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Error("observability shutdown", "error", shutdownErr)
		}
	}()

	targets, err := collectTargets(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	conversionCache := cc.buildCache(cfg)
	fingerprint := optionsFingerprint(opts)

	reports := make([]fileReport, 0, len(targets))

	for _, tgt := range targets {
		report := cc.convertOne(cmd, tgt, opts, conversionCache, fingerprint, providers, metrics)
		reports = append(reports, report)
	}

	if conversionCache != nil {
		stats := conversionCache.Stats()
		metrics.RecordCache(cmd.Context(), stats.Hits, stats.Misses)
	}

	if cc.summary {
		renderSummary(cmd.OutOrStdout(), reports)
	}

	return runOutcome(reports)
}

// convertOne converts a single target and reports the result. Failures are
// printed immediately; the aggregate error is produced by the caller.
func (cc *ConvertCommand) convertOne(
	cmd *cobra.Command,
	tgt target,
	opts convert.Options,
	conversionCache *cache.Cache,
	fingerprint string,
	providers observability.Providers,
	metrics *observability.ConversionMetrics,
) fileReport {
	startedAt := time.Now()
	report := fileReport{input: tgt.path}

	ctx, span := providers.Tracer.Start(cmd.Context(), "convert",
		trace.WithAttributes(attribute.String("file", tgt.path)))
	defer span.End()

	opts.File = tgt.path

	// Cached entries carry only the generated text, so source-map runs
	// always convert.
	useCache := conversionCache != nil && !opts.SourceMap
	key := cache.KeyFor(tgt.source, fingerprint)

	var result *convert.Result

	if useCache {
		if text, ok := conversionCache.Get(key); ok {
			report.cached = true
			result = &convert.Result{Text: text}
		}
	}

	if result == nil {
		var err error

		result, err = cc.convertFn(ctx, tgt.source, opts)
		if err != nil {
			report.err = err
			report.duration = time.Since(startedAt)
			printFailure(cmd.ErrOrStderr(), tgt.path, err)
			metrics.RecordConversion(ctx, backendName(opts), "error", report.duration, 0)

			return report
		}

		if useCache {
			conversionCache.Put(key, result.Text)
		}
	}

	printDiagnostics(cmd.ErrOrStderr(), result.Diagnostics)

	report.warnings = len(result.Diagnostics)
	report.size = len(result.Text)

	writeErr := cc.writeResult(cmd, tgt, result, &report)
	if writeErr != nil {
		report.err = writeErr
		printFailure(cmd.ErrOrStderr(), tgt.path, writeErr)
	}

	report.duration = time.Since(startedAt)
	metrics.RecordConversion(ctx, backendName(opts), observability.StatusOK, report.duration, int64(result.Nodes))
	providers.Logger.DebugContext(ctx, "converted",
		"file", tgt.path, "nodes", result.Nodes, "cached", report.cached)

	return report
}

func (cc *ConvertCommand) writeResult(cmd *cobra.Command, tgt target, result *convert.Result, report *fileReport) error {
	if tgt.stdout {
		_, err := io.WriteString(cmd.OutOrStdout(), result.Text)
		if err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}

		return nil
	}

	outPath := outputPath(tgt.path, cc.outDir)
	report.output = outPath

	if cc.check {
		drift, err := checkDrift(cmd.OutOrStdout(), outPath, result.Text)
		if err != nil {
			return err
		}

		report.drift = drift

		return nil
	}

	payload := result.Text
	if result.Map != nil {
		payload += "//# sourceMappingURL=" + filepath.Base(outPath) + ".map\n"
	}

	err := os.WriteFile(outPath, []byte(payload), 0o644) //nolint:gosec // generated source, not a secret
	if err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	if result.Map != nil {
		mapErr := writeSourceMap(outPath, result.Map)
		if mapErr != nil {
			return mapErr
		}
	}

	return nil
}

// resolveOptions merges config file defaults with explicit flags. A flag
// given on the command line always wins.
func (cc *ConvertCommand) resolveOptions(cmd *cobra.Command, cfg *config.Config) convert.Options {
	opts := convert.Options{
		Backend:        cfg.Convert.Backend,
		Filters:        cfg.Convert.Filters,
		ES:             cfg.Convert.ES,
		Quote:          cfg.Convert.Quote,
		OmitSemicolons: !cfg.Convert.Semicolons,
		SourceMap:      cfg.Convert.SourceMap,
		Strict:         cfg.Convert.Strict,
	}

	if cmd.Flags().Changed("backend") {
		opts.Backend = cc.backend
	}

	if cmd.Flags().Changed("filters") {
		opts.Filters = cc.filters
	}

	if cmd.Flags().Changed("es") {
		opts.ES = cc.es
	}

	if cmd.Flags().Changed("quote") {
		opts.Quote = cc.quote
	}

	if cmd.Flags().Changed("no-semicolons") {
		opts.OmitSemicolons = cc.noSemicolons
	}

	if cmd.Flags().Changed("source-map") {
		opts.SourceMap = cc.sourceMap
	}

	if cmd.Flags().Changed("strict") {
		opts.Strict = cc.strict
	}

	opts.IncludeSource = cc.includeSource

	return opts
}

func (cc *ConvertCommand) initObservability(cfg *config.Config) (observability.Providers, *observability.ConversionMetrics, error) {
	obsCfg := observability.Config{
		ServiceName:        "rbconv",
		ServiceVersion:     version.Version,
		LogLevel:           logLevel(cfg.Logging.Level),
		LogJSON:            cfg.Logging.Format == "json",
		Metrics:            cfg.Metrics.Enabled || cc.metricsAddr != "",
		ShutdownTimeoutSec: 5,
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, nil, err
	}

	var metrics *observability.ConversionMetrics

	if providers.Registry != nil {
		metrics, err = observability.NewConversionMetrics(providers.Meter)
		if err != nil {
			return observability.Providers{}, nil, err
		}

		cc.serveMetrics(providers)
	}

	return providers, metrics, nil
}

// serveMetrics exposes the scrape endpoint in the background. The process
// exits with main, so the listener is not shut down explicitly.
func (cc *ConvertCommand) serveMetrics(providers observability.Providers) {
	addr := cc.metricsAddr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", providers.MetricsHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			providers.Logger.Error("metrics listener", "error", serveErr)
		}
	}()
}

func (cc *ConvertCommand) buildCache(cfg *config.Config) *cache.Cache {
	if cc.noCache || !cfg.Cache.Enabled || cc.check {
		return nil
	}

	maxSize, err := cfg.Cache.MaxSizeBytes()
	if err != nil {
		maxSize = cache.DefaultMaxSize
	}

	return cache.New(maxSize)
}

func runOutcome(reports []fileReport) error {
	failed := 0
	drifted := 0

	for _, report := range reports {
		if report.err != nil {
			failed++
		}

		if report.drift {
			drifted++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrConversionFailed, failed, len(reports))
	}

	if drifted > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrCheckDrift, drifted, len(reports))
	}

	return nil
}

// optionsFingerprint folds every output-affecting option into the cache
// key.
func optionsFingerprint(opts convert.Options) string {
	return strings.Join([]string{
		backendName(opts),
		strings.Join(opts.Filters, ","),
		opts.ES,
		opts.Quote,
		fmt.Sprintf("semi=%t;strict=%t", opts.OmitSemicolons, opts.Strict),
	}, "\x00")
}

func backendName(opts convert.Options) string {
	if opts.Backend == "" {
		return "miniruby"
	}

	return opts.Backend
}

func outputPath(input, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(input), ".rb") + ".js"

	if outDir != "" {
		return filepath.Join(outDir, name)
	}

	return filepath.Join(filepath.Dir(input), name)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
