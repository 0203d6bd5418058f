package observe

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"

	"github.com/jonwraymond/callguard/observe/exporters"
)

// Observer hands out the telemetry primitives a guard records with.
//
// Implementations are safe for concurrent use. Shutdown flushes and stops
// the providers; it is idempotent and returns every error it met.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Gatherer returns the registry the prometheus exporter writes to. It
	// stays empty unless Metrics.Exporter is "prometheus".
	Gatherer() prometheus.Gatherer

	Shutdown(ctx context.Context) error
}

// Logger is the structured logger used throughout the guard.
//
// Implementations are safe for concurrent use and never panic. When ctx
// carries a valid span its trace_id and span_id are attached.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)
	WithOperation(meta OperationMeta) Logger
}

// Field is one structured log field.
type Field struct {
	Key   string
	Value any
}

type observer struct {
	tracer   trace.Tracer
	meter    metric.Meter
	logger   Logger
	registry *prometheus.Registry

	// shutdowns run in order on Shutdown.
	shutdowns []func(context.Context) error

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver validates cfg and builds the providers it enables. Disabled
// subsystems get no-op implementations. Enabled providers are also
// installed as the OpenTelemetry globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	obs := &observer{
		tracer:   tracenoop.NewTracerProvider().Tracer("noop"),
		meter:    noop.NewMeterProvider().Meter("noop"),
		logger:   NopLogger(),
		registry: prometheus.NewRegistry(),
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing, res)
		if err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		otel.SetTracerProvider(tp)
		obs.tracer = tp.Tracer(cfg.ServiceName)
		obs.shutdowns = append(obs.shutdowns, tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(ctx, cfg.Metrics, res, obs.registry)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("observe: metrics: %w", err), obs.Shutdown(ctx))
		}
		otel.SetMeterProvider(mp)
		obs.meter = mp.Meter(cfg.ServiceName)
		obs.shutdowns = append(obs.shutdowns, mp.Shutdown)
	}

	if cfg.Logging.Enabled {
		obs.logger = NewLogger(cfg.Logging.Level)
	}

	return obs, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplePct >= 1:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplePct <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplePct)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource, reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter, exporters.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer          { return o.tracer }
func (o *observer) Meter() metric.Meter           { return o.meter }
func (o *observer) Logger() Logger                { return o.logger }
func (o *observer) Gatherer() prometheus.Gatherer { return o.registry }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		for _, shutdown := range o.shutdowns {
			o.shutdownErr = multierr.Append(o.shutdownErr, shutdown(ctx))
		}
	})
	return o.shutdownErr
}

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (l noopLogger) WithOperation(OperationMeta) Logger    { return l }

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}
