// Package observability provides run metrics and an HTTP diagnostics
// surface for the live translation loop.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricUnitsTranslated = "lingfang.units.translated"
	metricCacheHits       = "lingfang.cache.hits"
	metricRequestDuration = "lingfang.request.duration.seconds"
	metricErrorsTotal     = "lingfang.errors.total"
	metricFlushesTotal    = "lingfang.document.flushes"
	metricInflight        = "lingfang.inflight.requests"

	attrModel = "model"
)

// durationBucketBoundaries covers 100ms to 120s. A chat completion for a
// single unit usually lands in the 1-20s band, with long tails on retries.
var durationBucketBoundaries = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120}

// RunMetrics holds the OTel instruments for the translate loop: units
// translated, cache hits, request latency, and document flushes.
type RunMetrics struct {
	unitsTranslated  metric.Int64Counter
	cacheHits        metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	flushesTotal     metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewRunMetrics creates translate-loop instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &RunMetrics{
		unitsTranslated:  b.counter(metricUnitsTranslated, "Units translated by the model", "{unit}"),
		cacheHits:        b.counter(metricCacheHits, "Units served from the translation memory cache", "{unit}"),
		requestDuration:  b.histogram(metricRequestDuration, "Chat completion duration in seconds", "s", durationBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Failed chat completions", "{error}"),
		flushesTotal:     b.counter(metricFlushesTotal, "Periodic document saves", "{flush}"),
		inflightRequests: b.upDownCounter(metricInflight, "Chat completions in flight", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordTranslation records one model-translated unit and the duration of
// the chat completion that produced it.
func (rm *RunMetrics) RecordTranslation(ctx context.Context, model string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(attrModel, model))

	rm.unitsTranslated.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheHit records one unit served from the translation memory cache.
func (rm *RunMetrics) RecordCacheHit(ctx context.Context) {
	rm.cacheHits.Add(ctx, 1)
}

// RecordError records a failed chat completion.
func (rm *RunMetrics) RecordError(ctx context.Context, model string) {
	rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrModel, model)))
}

// RecordFlush records a periodic document save.
func (rm *RunMetrics) RecordFlush(ctx context.Context) {
	rm.flushesTotal.Add(ctx, 1)
}

// TrackInflight increments the in-flight gauge and returns a function to
// decrement it. A scrape showing a stuck value of 1 with no unit progress
// points at a hung completion.
func (rm *RunMetrics) TrackInflight(ctx context.Context) func() {
	rm.inflightRequests.Add(ctx, 1)

	return func() {
		rm.inflightRequests.Add(ctx, -1)
	}
}
