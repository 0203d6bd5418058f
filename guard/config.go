package guard

import (
	"time"

	"github.com/jonwraymond/callguard/cache"
	"github.com/jonwraymond/callguard/observe"
	"github.com/jonwraymond/callguard/resilience"
)

// Config configures a Guard. Zero fields take the defaults of the
// component they configure.
type Config struct {
	RateLimit resilience.RateLimiterConfig

	// Breaker is the template for the per-operation breakers.
	Breaker resilience.CircuitBreakerConfig

	Retry resilience.RetryConfig

	Cache cache.ManagerConfig

	// DisableCache turns every call into a pass-through for the cache
	// layer, even when cache options are given.
	DisableCache bool

	// Keyer derives cache keys from WithCacheArgs.
	// Default: cache.NewDefaultKeyer()
	Keyer cache.Keyer

	// MaxConcurrent caps calls in flight across all keys. 0 disables the
	// bulkhead.
	MaxConcurrent int

	// MaxConcurrentWait is how long a call may wait for a bulkhead slot.
	MaxConcurrentWait time.Duration

	// AttemptTimeout bounds every attempt of fn. 0 disables it.
	AttemptTimeout time.Duration

	// IdleTimeout is how long a bucket or closed breaker may go unused
	// before the janitor drops it.
	// Default: 5 minutes
	IdleTimeout time.Duration

	// JanitorInterval is the period of the idle-state janitor started by
	// Start.
	// Default: 1 minute
	JanitorInterval time.Duration

	// Observer supplies the tracer, meter and logger. When nil the guard
	// records no telemetry.
	Observer observe.Observer

	// Logger overrides the observer's logger.
	Logger observe.Logger
}

// DefaultConfig returns the defaults: 60 requests per minute with a burst
// of 10, a breaker that opens after 5 failures for 60s, 3 jittered
// attempts and a 1000-entry cache with a 5 minute TTL.
func DefaultConfig() Config {
	policy := cache.DefaultPolicy()
	return Config{
		RateLimit: resilience.RateLimiterConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
		},
		Retry: resilience.DefaultRetryConfig(),
		Cache: cache.ManagerConfig{
			MaxSize:       1000,
			Policy:        &policy,
			SweepInterval: 60 * time.Second,
		},
		IdleTimeout:     5 * time.Minute,
		JanitorInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
	if c.Keyer == nil {
		c.Keyer = cache.NewDefaultKeyer()
	}
	return c
}
