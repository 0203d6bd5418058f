package observe

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"
)

// TestConfigValidate_Valid verifies a valid config passes validation.
func TestConfigValidate_Valid(t *testing.T) {
	cfg := Config{
		ServiceName: "callguard",
		Version:     "1.0.0",
		Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 0.5},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
		Logging:     LoggingConfig{Enabled: true, Level: "debug"},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing service name", Config{}, ErrMissingServiceName},
		{
			"unknown tracing exporter",
			Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}},
			ErrInvalidTracingExporter,
		},
		{
			"sample pct above range",
			Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, SamplePct: 1.5}},
			ErrInvalidSamplePct,
		},
		{
			"sample pct negative",
			Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, SamplePct: -0.1}},
			ErrInvalidSamplePct,
		},
		{
			"unknown metrics exporter",
			Config{ServiceName: "s", Metrics: MetricsConfig{Enabled: true, Exporter: "statsd"}},
			ErrInvalidMetricsExporter,
		},
		{
			"unknown log level",
			Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "verbose"}},
			ErrInvalidLogLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"},
		Logging: LoggingConfig{Enabled: true, Level: "verbose"},
	}

	errs := multierr.Errors(cfg.Validate())
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestConfigValidate_DisabledSubsystemsIgnored(t *testing.T) {
	cfg := Config{
		ServiceName: "s",
		Tracing:     TracingConfig{Exporter: "zipkin"},
		Metrics:     MetricsConfig{Exporter: "statsd"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled subsystems should not be validated, got: %v", err)
	}
}

// TestNewObserver_DisabledNoop verifies that all-disabled config returns no-op observer.
func TestNewObserver_DisabledNoop(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if obs.Tracer() == nil || obs.Meter() == nil || obs.Logger() == nil {
		t.Fatal("expected usable no-op components")
	}
	if obs.Gatherer() == nil {
		t.Error("expected non-nil gatherer")
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_PrometheusGatherer(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "test-service",
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	counter, err := obs.Meter().Int64Counter("guard.call.total")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 1)

	families, err := obs.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected metric families in the observer registry")
	}
}

// TestObserver_ShutdownGracefully verifies shutdown is idempotent.
func TestObserver_ShutdownGracefully(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "test-service",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1.0},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: true, Level: "error"},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no shutdown error, got: %v", err)
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown should be a no-op, got: %v", err)
	}
}

func TestNewObserver_InvalidConfigReturnsError(t *testing.T) {
	if _, err := NewObserver(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for invalid config, got nil")
	}
}
