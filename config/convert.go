package config

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/jonwraymond/callguard/cache"
	"github.com/jonwraymond/callguard/guard"
	"github.com/jonwraymond/callguard/observe"
	"github.com/jonwraymond/callguard/resilience"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GuardConfig converts c to a guard.Config with no Observer set.
func (c Config) GuardConfig() guard.Config {
	cfg := guard.DefaultConfig()

	cfg.RateLimit = resilience.RateLimiterConfig{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.BurstSize,
		WaitOnLimit:       c.RateLimit.WaitOnLimit,
		MaxWait:           seconds(c.RateLimit.MaxWaitSeconds),
		IdleTimeout:       seconds(c.RateLimit.IdleTimeoutSeconds),
	}

	cfg.Breaker = resilience.CircuitBreakerConfig{
		FailureThreshold:    c.CircuitBreaker.FailureThreshold,
		SuccessThreshold:    c.CircuitBreaker.SuccessThreshold,
		Timeout:             seconds(c.CircuitBreaker.OpenTimeoutSeconds),
		HalfOpenMaxRequests: c.CircuitBreaker.HalfOpenMaxRequests,
	}

	cfg.Retry = resilience.RetryConfig{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: seconds(c.Retry.InitialDelaySeconds),
		MaxDelay:     seconds(c.Retry.MaxDelaySeconds),
		Multiplier:   c.Retry.BackoffBase,
		Strategy:     resilience.BackoffExponential,
		Jitter:       c.Retry.JitterEnabled,
	}

	policy := cache.Policy{
		DefaultTTL: seconds(c.Cache.DefaultTTLSeconds),
		MaxTTL:     seconds(c.Cache.MaxTTLSeconds),
	}
	cfg.Cache = cache.ManagerConfig{
		MaxSize:       c.Cache.MaxEntries,
		Policy:        &policy,
		SweepInterval: seconds(c.Cache.SweepIntervalSeconds),
	}
	cfg.DisableCache = !c.Cache.Enabled

	cfg.AttemptTimeout = seconds(c.Execution.AttemptTimeoutSeconds)
	cfg.MaxConcurrent = c.Execution.MaxConcurrent
	if idle := seconds(c.RateLimit.IdleTimeoutSeconds); idle > 0 {
		cfg.IdleTimeout = idle
	}
	return cfg
}

// ObserveConfig converts the observability block to an observe.Config.
func (c Config) ObserveConfig() observe.Config {
	o := c.Observability
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     o.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
		},
	}
}

// NewGuard builds an observer from the observability block and a guard
// reporting to it. The caller closes the guard and then shuts the
// observer down.
func (c Config) NewGuard(ctx context.Context) (*guard.Guard, observe.Observer, error) {
	obs, err := observe.NewObserver(ctx, c.ObserveConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("config: observer: %w", err)
	}

	cfg := c.GuardConfig()
	cfg.Observer = obs
	g, err := guard.New(cfg)
	if err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("config: guard: %w", err), obs.Shutdown(ctx))
	}
	return g, obs, nil
}
