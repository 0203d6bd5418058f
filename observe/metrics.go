package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records guarded call metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records a completed call with duration and error status.
	RecordCall(ctx context.Context, meta OperationMeta, duration time.Duration, err error)

	// RecordCacheLookup records a cache hit or miss.
	RecordCacheLookup(ctx context.Context, meta OperationMeta, hit bool)

	// RecordRateLimit records an admission decision.
	RecordRateLimit(ctx context.Context, meta OperationMeta, allowed bool)

	// RecordRetry records a retry after a failed attempt.
	RecordRetry(ctx context.Context, meta OperationMeta, attempt int)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, breaker, from, to string)
}

// GaugeSource reports the current size of guard state for observable
// gauges.
type GaugeSource interface {
	CacheEntries() int64
	ActiveBuckets() int64
	OpenBreakers() int64
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	cacheLookups metric.Int64Counter
	rateLimits   metric.Int64Counter
	retries      metric.Int64Counter
	transitions  metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.totalCount, "guard.call.total", "Total number of guarded calls", "{call}"},
		{&m.errorCount, "guard.call.errors", "Total number of guarded calls that failed", "{error}"},
		{&m.cacheLookups, "guard.cache.lookups", "Cache lookups by result", "{lookup}"},
		{&m.rateLimits, "guard.ratelimit.decisions", "Rate limit admission decisions", "{decision}"},
		{&m.retries, "guard.retry.attempts", "Retries after a failed attempt", "{retry}"},
		{&m.transitions, "guard.breaker.transitions", "Circuit breaker state transitions", "{transition}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	durationHist, err := meter.Float64Histogram(
		"guard.call.duration_ms",
		metric.WithDescription("Guarded call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.durationHist = durationHist

	return m, nil
}

// RecordCall records metrics for a completed call.
func (m *metricsImpl) RecordCall(ctx context.Context, meta OperationMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, meta OperationMeta, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		append(meta.attributes(), attribute.String("result", result))...,
	))
}

func (m *metricsImpl) RecordRateLimit(ctx context.Context, meta OperationMeta, allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	m.rateLimits.Add(ctx, 1, metric.WithAttributes(
		append(meta.attributes(), attribute.String("decision", decision))...,
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta OperationMeta, attempt int) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		append(meta.attributes(), attribute.Int("attempt", attempt))...,
	))
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RegisterGauges registers observable gauges reading from src. Unregister
// the returned registration to stop observing.
func RegisterGauges(meter metric.Meter, src GaugeSource) (metric.Registration, error) {
	entries, err := meter.Int64ObservableGauge("guard.cache.entries",
		metric.WithDescription("Entries currently stored in the cache"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}
	buckets, err := meter.Int64ObservableGauge("guard.ratelimit.buckets",
		metric.WithDescription("Active rate limit buckets"),
		metric.WithUnit("{bucket}"),
	)
	if err != nil {
		return nil, err
	}
	open, err := meter.Int64ObservableGauge("guard.breaker.open",
		metric.WithDescription("Circuit breakers currently open"),
		metric.WithUnit("{breaker}"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(entries, src.CacheEntries())
		o.ObserveInt64(buckets, src.ActiveBuckets())
		o.ObserveInt64(open, src.OpenBreakers())
		return nil
	}, entries, buckets, open)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCall(context.Context, OperationMeta, time.Duration, error) {}
func (m *noopMetrics) RecordCacheLookup(context.Context, OperationMeta, bool)          {}
func (m *noopMetrics) RecordRateLimit(context.Context, OperationMeta, bool)            {}
func (m *noopMetrics) RecordRetry(context.Context, OperationMeta, int)                 {}
func (m *noopMetrics) RecordBreakerTransition(context.Context, string, string, string) {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return &noopMetrics{}
}
