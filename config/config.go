package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a guard's configuration.
type Config struct {
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Retry          RetryConfig          `yaml:"retry"`
	Cache          CacheConfig          `yaml:"cache"`
	Execution      ExecutionConfig      `yaml:"execution"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// RateLimitConfig configures the per-key token buckets.
type RateLimitConfig struct {
	RequestsPerMinute  int     `yaml:"requestsPerMinute"`
	BurstSize          int     `yaml:"burstSize"`
	WaitOnLimit        bool    `yaml:"waitOnLimit"`
	MaxWaitSeconds     float64 `yaml:"maxWaitSeconds"`
	IdleTimeoutSeconds float64 `yaml:"idleTimeoutSeconds"`
}

// CircuitBreakerConfig configures the per-operation breakers.
type CircuitBreakerConfig struct {
	FailureThreshold    int     `yaml:"failureThreshold"`
	SuccessThreshold    int     `yaml:"successThreshold"`
	OpenTimeoutSeconds  float64 `yaml:"openTimeoutSeconds"`
	HalfOpenMaxRequests int     `yaml:"halfOpenMaxRequests"`
}

// RetryConfig configures backoff between attempts.
type RetryConfig struct {
	MaxAttempts         int     `yaml:"maxAttempts"`
	InitialDelaySeconds float64 `yaml:"initialDelaySeconds"`
	MaxDelaySeconds     float64 `yaml:"maxDelaySeconds"`
	BackoffBase         float64 `yaml:"backoffBase"`
	JitterEnabled       bool    `yaml:"jitterEnabled"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MaxEntries           int     `yaml:"maxEntries"`
	DefaultTTLSeconds    float64 `yaml:"defaultTtlSeconds"`
	MaxTTLSeconds        float64 `yaml:"maxTtlSeconds"`
	SweepIntervalSeconds float64 `yaml:"sweepIntervalSeconds"`
}

// ExecutionConfig bounds individual calls.
type ExecutionConfig struct {
	// AttemptTimeoutSeconds bounds each attempt. 0 disables it.
	AttemptTimeoutSeconds float64 `yaml:"attemptTimeoutSeconds"`

	// MaxConcurrent caps calls in flight. 0 disables it.
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// ObservabilityConfig configures telemetry.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"serviceName"`
	Version     string        `yaml:"version"`
	Tracing     TracingConfig `yaml:"tracing"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Logging     LoggingConfig `yaml:"logging"`
}

type TracingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Exporter  string  `yaml:"exporter"`
	SamplePct float64 `yaml:"samplePct"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RateLimit: RateLimitConfig{
			RequestsPerMinute:  60,
			BurstSize:          10,
			MaxWaitSeconds:     30,
			IdleTimeoutSeconds: 300,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:   5,
			SuccessThreshold:   2,
			OpenTimeoutSeconds: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:         3,
			InitialDelaySeconds: 1,
			MaxDelaySeconds:     60,
			BackoffBase:         2,
			JitterEnabled:       true,
		},
		Cache: CacheConfig{
			Enabled:              true,
			MaxEntries:           1000,
			DefaultTTLSeconds:    300,
			SweepIntervalSeconds: 60,
		},
		Observability: ObservabilityConfig{
			ServiceName: "callguard",
			Tracing: TracingConfig{
				Exporter:  "none",
				SamplePct: 1,
			},
			Metrics: MetricsConfig{
				Exporter: "none",
			},
			Logging: LoggingConfig{
				Enabled: true,
				Level:   "info",
			},
		},
	}
}

// Load reads the file at path and returns the parsed, overridden and
// validated configuration.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default, then applies GUARD_* overrides and
// validates the result. Empty input yields the defaults.
func Parse(data []byte) (Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate reports every invalid value. The returned error wraps
// ErrInvalidConfig.
func (c Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	rl := c.RateLimit
	check(rl.RequestsPerMinute > 0, "rateLimit.requestsPerMinute must be positive, got %d", rl.RequestsPerMinute)
	check(rl.BurstSize > 0, "rateLimit.burstSize must be positive, got %d", rl.BurstSize)
	check(rl.MaxWaitSeconds >= 0, "rateLimit.maxWaitSeconds must not be negative")
	check(rl.IdleTimeoutSeconds >= 0, "rateLimit.idleTimeoutSeconds must not be negative")

	cb := c.CircuitBreaker
	check(cb.FailureThreshold > 0, "circuitBreaker.failureThreshold must be positive, got %d", cb.FailureThreshold)
	check(cb.SuccessThreshold > 0, "circuitBreaker.successThreshold must be positive, got %d", cb.SuccessThreshold)
	check(cb.OpenTimeoutSeconds > 0, "circuitBreaker.openTimeoutSeconds must be positive")
	check(cb.HalfOpenMaxRequests >= 0, "circuitBreaker.halfOpenMaxRequests must not be negative")

	r := c.Retry
	check(r.MaxAttempts > 0, "retry.maxAttempts must be positive, got %d", r.MaxAttempts)
	check(r.InitialDelaySeconds > 0, "retry.initialDelaySeconds must be positive")
	check(r.MaxDelaySeconds >= r.InitialDelaySeconds, "retry.maxDelaySeconds must be at least initialDelaySeconds")
	check(r.BackoffBase >= 1, "retry.backoffBase must be at least 1, got %g", r.BackoffBase)

	ca := c.Cache
	if ca.Enabled {
		check(ca.MaxEntries > 0, "cache.maxEntries must be positive, got %d", ca.MaxEntries)
		check(ca.DefaultTTLSeconds >= 0, "cache.defaultTtlSeconds must not be negative")
		check(ca.MaxTTLSeconds >= 0, "cache.maxTtlSeconds must not be negative")
		check(ca.MaxTTLSeconds == 0 || ca.DefaultTTLSeconds <= ca.MaxTTLSeconds,
			"cache.defaultTtlSeconds must not exceed maxTtlSeconds")
		check(ca.SweepIntervalSeconds > 0, "cache.sweepIntervalSeconds must be positive")
	}

	e := c.Execution
	check(e.AttemptTimeoutSeconds >= 0, "execution.attemptTimeoutSeconds must not be negative")
	check(e.MaxConcurrent >= 0, "execution.maxConcurrent must not be negative")

	oc := c.ObserveConfig()
	if err := oc.Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("observability: %w", err))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}
