// Package exporters builds the OpenTelemetry span exporters and metric
// readers a guard's telemetry can be sent to.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names.
const (
	None       = "none"
	Stdout     = "stdout"
	OTLP       = "otlp"
	Jaeger     = "jaeger"
	Prometheus = "prometheus"
)

var (
	ErrUnknownExporter       = errors.New("exporters: unknown exporter")
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

type options struct {
	writer     io.Writer
	registerer prometheus.Registerer
	interval   time.Duration
}

// Option configures an exporter.
type Option func(*options)

// WithWriter sets the destination of the stdout exporters.
// Default: os.Stdout
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithRegisterer sets the registry the prometheus reader registers its
// collector with. Default: prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithInterval sets the collection period of push-based metric readers.
// Default: the SDK's 60s
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

func newOptions(opts []Option) options {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type traceBuilder func(ctx context.Context, o options) (sdktrace.SpanExporter, error)

type metricBuilder func(ctx context.Context, o options) (sdkmetric.Reader, error)

var traceBuilders = map[string]traceBuilder{
	Stdout: func(_ context.Context, o options) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(o.writer))
	},
	OTLP: func(ctx context.Context, _ options) (sdktrace.SpanExporter, error) {
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	},
	// Jaeger ingests OTLP natively.
	Jaeger: func(ctx context.Context, _ options) (sdktrace.SpanExporter, error) {
		if err := requireEnv("OTEL_EXPORTER_JAEGER_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	},
}

var metricBuilders = map[string]metricBuilder{
	Stdout: func(_ context.Context, o options) (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return nil, err
		}
		return o.periodic(exp), nil
	},
	OTLP: func(ctx context.Context, o options) (sdkmetric.Reader, error) {
		if err := requireEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}
		return o.periodic(exp), nil
	},
	Prometheus: func(_ context.Context, o options) (sdkmetric.Reader, error) {
		var promOpts []otelprom.Option
		if o.registerer != nil {
			promOpts = append(promOpts, otelprom.WithRegisterer(o.registerer))
		}
		return otelprom.New(promOpts...)
	},
}

func (o options) periodic(exp sdkmetric.Exporter) sdkmetric.Reader {
	var opts []sdkmetric.PeriodicReaderOption
	if o.interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(o.interval))
	}
	return sdkmetric.NewPeriodicReader(exp, opts...)
}

// SupportsTracing reports whether name is a tracing exporter. The empty
// name means None.
func SupportsTracing(name string) bool {
	_, ok := traceBuilders[name]
	return ok || isNone(name)
}

// SupportsMetrics reports whether name is a metrics exporter.
func SupportsMetrics(name string) bool {
	_, ok := metricBuilders[name]
	return ok || isNone(name)
}

// NewTracingExporter creates the span exporter called name. None returns
// a nil exporter and no error: spans are sampled but go nowhere.
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	if isNone(name) {
		return nil, nil
	}
	build, ok := traceBuilders[name]
	if !ok {
		return nil, fmt.Errorf("%w: tracing %q", ErrUnknownExporter, name)
	}
	exp, err := build(ctx, newOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("exporters: %s tracing: %w", name, err)
	}
	return exp, nil
}

// NewMetricsReader creates the metric reader called name. None returns a
// nil reader and no error.
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	if isNone(name) {
		return nil, nil
	}
	build, ok := metricBuilders[name]
	if !ok {
		return nil, fmt.Errorf("%w: metrics %q", ErrUnknownExporter, name)
	}
	reader, err := build(ctx, newOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("exporters: %s metrics: %w", name, err)
	}
	return reader, nil
}

func isNone(name string) bool {
	return name == None || name == ""
}

func requireEnv(keys ...string) error {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: set %v", ErrEndpointNotConfigured, keys)
}
