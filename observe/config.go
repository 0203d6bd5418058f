package observe

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/jonwraymond/callguard/observe/exporters"
)

// Config selects what an Observer records and where it is sent.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

type TracingConfig struct {
	Enabled bool

	// Exporter is one of otlp, jaeger, stdout, or none.
	Exporter string

	// SamplePct is the fraction of root spans sampled, in [0, 1].
	SamplePct float64
}

type MetricsConfig struct {
	Enabled bool

	// Exporter is one of otlp, prometheus, stdout, or none.
	Exporter string
}

type LoggingConfig struct {
	Enabled bool

	// Level is one of debug, info, warn, or error. Empty means info.
	Level string
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}

// Validate reports every problem in c. Disabled subsystems are not
// checked.
func (c *Config) Validate() error {
	var err error
	if c.ServiceName == "" {
		err = multierr.Append(err, ErrMissingServiceName)
	}

	if t := c.Tracing; t.Enabled {
		if !exporters.SupportsTracing(t.Exporter) {
			err = multierr.Append(err, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, t.Exporter))
		}
		if t.SamplePct < 0 || t.SamplePct > 1 {
			err = multierr.Append(err, fmt.Errorf("%w, got %g", ErrInvalidSamplePct, t.SamplePct))
		}
	}

	if m := c.Metrics; m.Enabled && !exporters.SupportsMetrics(m.Exporter) {
		err = multierr.Append(err, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, m.Exporter))
	}

	if l := c.Logging; l.Enabled && !logLevels[l.Level] {
		err = multierr.Append(err, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level))
	}
	return err
}
