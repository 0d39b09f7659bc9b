// Package observe provides application-wide observability primitives for
// lorelens: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// All Record methods are no-ops on a nil *Metrics, so components can take an
// optional metrics handle without guarding every call site.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lorelens metrics.
const meterName = "github.com/MrWong99/lorelens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ProcessDuration tracks one classify+resolve pass over an OCR sample.
	ProcessDuration metric.Float64Histogram

	// TranslationDuration tracks calls to a translation backend. Use with
	// attribute:
	//   attribute.String("backend", ...)
	TranslationDuration metric.Float64Histogram

	// --- Counters ---

	// LinesClassified counts classified OCR samples. Use with attribute:
	//   attribute.String("type", ...)
	LinesClassified metric.Int64Counter

	// SpeakerResolutions counts resolved speakers. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("match", ...)
	SpeakerResolutions metric.Int64Counter

	// CacheLookups counts translation cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// CacheEvictions counts removed cache entries. Use with attribute:
	//   attribute.String("reason", "expired"|"frequency"|"fallback")
	CacheEvictions metric.Int64Counter

	// Promotions counts provisional speakers written to the learned-names
	// store. Use with attribute:
	//   attribute.String("status", ...)
	Promotions metric.Int64Counter

	// Reloads counts character database reloads. Use with attribute:
	//   attribute.String("status", ...)
	Reloads metric.Int64Counter

	// BackendRequests counts translation backend calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// --- Error counters ---

	// CacheMaintenanceFailures counts recovered failures of the cache
	// eviction routine.
	CacheMaintenanceFailures metric.Int64Counter

	// BackendErrors counts translation backend errors. Use with attribute:
	//   attribute.String("backend", ...)
	BackendErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes per backend
	// and target state.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// CacheEntries tracks the number of live translation cache entries.
	CacheEntries metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration is recorded by [Middleware] with method, route
	// and status_class attributes.
	HTTPRequestDuration metric.Float64Histogram
}

// processBuckets defines histogram bucket boundaries (in seconds) for the
// in-process classification path.
var processBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound translation calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ProcessDuration, err = m.Float64Histogram("lorelens.process.duration",
		metric.WithDescription("Latency of classifying and resolving one OCR sample."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(processBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("lorelens.translation.duration",
		metric.WithDescription("Latency of translation backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LinesClassified, err = m.Int64Counter("lorelens.lines.classified",
		metric.WithDescription("Total classified OCR samples by dialogue type."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerResolutions, err = m.Int64Counter("lorelens.speaker.resolutions",
		metric.WithDescription("Total speaker resolutions by kind and match step."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("lorelens.cache.lookups",
		metric.WithDescription("Total translation cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("lorelens.cache.evictions",
		metric.WithDescription("Total translation cache entries removed by reason."),
	); err != nil {
		return nil, err
	}
	if met.Promotions, err = m.Int64Counter("lorelens.speaker.promotions",
		metric.WithDescription("Total provisional speakers persisted as learned names."),
	); err != nil {
		return nil, err
	}
	if met.Reloads, err = m.Int64Counter("lorelens.database.reloads",
		metric.WithDescription("Total character database reloads by status."),
	); err != nil {
		return nil, err
	}
	if met.BackendRequests, err = m.Int64Counter("lorelens.backend.requests",
		metric.WithDescription("Total translation backend requests by backend and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CacheMaintenanceFailures, err = m.Int64Counter("lorelens.cache.maintenance_failures",
		metric.WithDescription("Total recovered failures of translation cache maintenance."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("lorelens.backend.errors",
		metric.WithDescription("Total translation backend errors by backend."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("lorelens.backend.breaker_transitions",
		metric.WithDescription("Circuit breaker state changes by backend and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.CacheEntries, err = m.Int64UpDownCounter("lorelens.cache.entries",
		metric.WithDescription("Number of live translation cache entries."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("lorelens.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProcess records one classification pass.
func (m *Metrics) RecordProcess(ctx context.Context, lineType string, seconds float64) {
	if m == nil {
		return
	}
	m.ProcessDuration.Record(ctx, seconds)
	m.LinesClassified.Add(ctx, 1, metric.WithAttributes(attribute.String("type", lineType)))
}

// RecordResolution records one speaker resolution.
func (m *Metrics) RecordResolution(ctx context.Context, kind, match string) {
	if m == nil {
		return
	}
	m.SpeakerResolutions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("match", match),
		),
	)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCacheEviction records n entries removed for reason.
func (m *Metrics) RecordCacheEviction(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	m.CacheEntries.Add(ctx, -int64(n))
}

// RecordCacheInsert records a new live cache entry.
func (m *Metrics) RecordCacheInsert(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheEntries.Add(ctx, 1)
}

// RecordCacheCleared records that n live entries were dropped at once.
func (m *Metrics) RecordCacheCleared(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEntries.Add(ctx, -int64(n))
}

// RecordCacheMaintenanceFailure records a recovered cache maintenance panic.
func (m *Metrics) RecordCacheMaintenanceFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMaintenanceFailures.Add(ctx, 1)
}

// RecordPromotion records a learned-name write attempt.
func (m *Metrics) RecordPromotion(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Promotions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordReload records a character database reload attempt.
func (m *Metrics) RecordReload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBackendRequest is a convenience method that records a translation
// backend request with its latency and outcome.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TranslationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError is a convenience method that records a translation
// backend error counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}

// RecordBreakerTransition records a circuit breaker of backend entering
// state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("state", to),
		),
	)
}
