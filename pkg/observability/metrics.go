package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricConversionsTotal   = "rbconv.conversions.total"
	metricConversionDuration = "rbconv.conversion.duration.seconds"
	metricErrorsTotal        = "rbconv.errors.total"
	metricNodesTotal         = "rbconv.nodes.total"
	metricCacheHitsTotal     = "rbconv.cache.hits.total"
	metricCacheMissesTotal   = "rbconv.cache.misses.total"

	attrBackend = "backend"
	attrStatus  = "status"

	statusError = "error"

	// StatusOK labels a successful conversion.
	StatusOK = "ok"
)

// durationBucketBoundaries covers 1ms to 30s: single-file conversions are
// sub-second, directory batches are not.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ConversionMetrics holds the OTel instruments for the conversion
// pipeline.
type ConversionMetrics struct {
	conversionsTotal   metric.Int64Counter
	conversionDuration metric.Float64Histogram
	errorsTotal        metric.Int64Counter
	nodesTotal         metric.Int64Counter
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
}

// NewConversionMetrics creates the conversion instruments from the given
// meter.
func NewConversionMetrics(mt metric.Meter) (*ConversionMetrics, error) {
	conversions, err := mt.Int64Counter(metricConversionsTotal,
		metric.WithDescription("Total conversions by backend and status"),
		metric.WithUnit("{conversion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricConversionsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricConversionDuration,
		metric.WithDescription("Conversion duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricConversionDuration, err)
	}

	errTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total failed conversions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	nodes, err := mt.Int64Counter(metricNodesTotal,
		metric.WithDescription("Total tree nodes processed"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNodesTotal, err)
	}

	hits, err := mt.Int64Counter(metricCacheHitsTotal,
		metric.WithDescription("Conversion cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricCacheMissesTotal,
		metric.WithDescription("Conversion cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	return &ConversionMetrics{
		conversionsTotal:   conversions,
		conversionDuration: duration,
		errorsTotal:        errTotal,
		nodesTotal:         nodes,
		cacheHits:          hits,
		cacheMisses:        misses,
	}, nil
}

// RecordConversion records one completed conversion. Safe to call on a nil
// receiver (no-op).
func (cm *ConversionMetrics) RecordConversion(ctx context.Context, backend, status string, duration time.Duration, nodes int64) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrStatus, status),
	)

	cm.conversionsTotal.Add(ctx, 1, attrs)
	cm.conversionDuration.Record(ctx, duration.Seconds(), attrs)
	cm.nodesTotal.Add(ctx, nodes, attrs)

	if status == statusError {
		cm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrBackend, backend),
		))
	}
}

// RecordCache records cache counters for a batch run. Safe to call on a
// nil receiver (no-op).
func (cm *ConversionMetrics) RecordCache(ctx context.Context, hits, misses int64) {
	if cm == nil {
		return
	}

	cm.cacheHits.Add(ctx, hits)
	cm.cacheMisses.Add(ctx, misses)
}
