package exporters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewTracingExporter_Unknown(t *testing.T) {
	_, err := NewTracingExporter(context.Background(), "zipkin")
	if !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("NewTracingExporter(zipkin) error = %v, want ErrUnknownExporter", err)
	}
}

func TestNewMetricsReader_Unknown(t *testing.T) {
	_, err := NewMetricsReader(context.Background(), "statsd")
	if !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("NewMetricsReader(statsd) error = %v, want ErrUnknownExporter", err)
	}
}

func TestNone(t *testing.T) {
	for _, name := range []string{None, ""} {
		exp, err := NewTracingExporter(context.Background(), name)
		if err != nil || exp != nil {
			t.Errorf("NewTracingExporter(%q) = %v, %v; want nil, nil", name, exp, err)
		}
		reader, err := NewMetricsReader(context.Background(), name)
		if err != nil || reader != nil {
			t.Errorf("NewMetricsReader(%q) = %v, %v; want nil, nil", name, reader, err)
		}
	}
}

func TestSupports(t *testing.T) {
	tests := []struct {
		name    string
		tracing bool
		metrics bool
	}{
		{"", true, true},
		{None, true, true},
		{Stdout, true, true},
		{OTLP, true, true},
		{Jaeger, true, false},
		{Prometheus, false, true},
		{"statsd", false, false},
	}
	for _, tt := range tests {
		if got := SupportsTracing(tt.name); got != tt.tracing {
			t.Errorf("SupportsTracing(%q) = %v, want %v", tt.name, got, tt.tracing)
		}
		if got := SupportsMetrics(tt.name); got != tt.metrics {
			t.Errorf("SupportsMetrics(%q) = %v, want %v", tt.name, got, tt.metrics)
		}
	}
}

func TestStdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewTracingExporter(context.Background(), Stdout, WithWriter(&buf))
	if err != nil {
		t.Fatalf("NewTracingExporter(stdout) error = %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
	_ = exp.Shutdown(context.Background())
}

func TestStdoutMetricsWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	reader, err := NewMetricsReader(context.Background(), Stdout, WithWriter(&buf), WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewMetricsReader(stdout) error = %v", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	counter, _ := mp.Meter("test").Int64Counter("guard.test.total")
	counter.Add(context.Background(), 1)

	if err := mp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "guard.test.total") {
		t.Errorf("expected metric in writer output, got: %s", buf.String())
	}
}

func TestOTLP_MissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	if _, err := NewTracingExporter(context.Background(), OTLP); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("tracing error = %v, want ErrEndpointNotConfigured", err)
	}
	if _, err := NewMetricsReader(context.Background(), OTLP); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("metrics error = %v, want ErrEndpointNotConfigured", err)
	}
}

func TestOTLP_WithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")

	exp, err := NewTracingExporter(context.Background(), OTLP)
	if err != nil {
		t.Fatalf("NewTracingExporter(otlp) error = %v", err)
	}
	_ = exp.Shutdown(context.Background())
}

func TestJaeger_MissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")

	_, err := NewTracingExporter(context.Background(), Jaeger)
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("error = %v, want ErrEndpointNotConfigured", err)
	}
	if !strings.Contains(err.Error(), "OTEL_EXPORTER_JAEGER_ENDPOINT") {
		t.Errorf("error should name the variable, got: %v", err)
	}
}

func TestPrometheusUsesRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	reader, err := NewMetricsReader(context.Background(), Prometheus, WithRegisterer(reg))
	if err != nil {
		t.Fatalf("NewMetricsReader(prometheus) error = %v", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()
	counter, _ := mp.Meter("test").Int64Counter("guard_test_total")
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "guard_test_total") {
			return
		}
	}
	t.Error("expected guard_test_total in the custom registry")
}
