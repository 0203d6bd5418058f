package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/callguard/observe"
)

const sampleYAML = `
rateLimit:
  requestsPerMinute: 120
  burstSize: 20
  waitOnLimit: true
  maxWaitSeconds: 2.5
circuitBreaker:
  failureThreshold: 3
  successThreshold: 1
  openTimeoutSeconds: 30
retry:
  maxAttempts: 4
  initialDelaySeconds: 0.5
  maxDelaySeconds: 10
  backoffBase: 3
  jitterEnabled: false
cache:
  enabled: true
  maxEntries: 50
  defaultTtlSeconds: 60
  maxTtlSeconds: 600
  sweepIntervalSeconds: 15
execution:
  attemptTimeoutSeconds: 5
  maxConcurrent: 8
observability:
  serviceName: billing-client
  logging:
    enabled: true
    level: debug
`

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.BurstSize)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 2, cfg.CircuitBreaker.SuccessThreshold)
	assert.Equal(t, 60.0, cfg.CircuitBreaker.OpenTimeoutSeconds)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Retry.JitterEnabled)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 300.0, cfg.Cache.DefaultTTLSeconds)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 20, cfg.RateLimit.BurstSize)
	assert.True(t, cfg.RateLimit.WaitOnLimit)
	assert.Equal(t, 2.5, cfg.RateLimit.MaxWaitSeconds)
	assert.Equal(t, 300.0, cfg.RateLimit.IdleTimeoutSeconds, "unset keys keep their defaults")
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 0.5, cfg.Retry.InitialDelaySeconds)
	assert.False(t, cfg.Retry.JitterEnabled)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 8, cfg.Execution.MaxConcurrent)
	assert.Equal(t, "billing-client", cfg.Observability.ServiceName)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("rateLimit:\n  requestsPerHour: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requestsPerHour")
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("BILLING_RPM", "240")

	cfg, err := Parse([]byte("rateLimit:\n  requestsPerMinute: ${BILLING_RPM}\n"))
	require.NoError(t, err)
	assert.Equal(t, 240, cfg.RateLimit.RequestsPerMinute)
}

func TestParse_MissingEnv(t *testing.T) {
	_, err := Parse([]byte("observability:\n  serviceName: ${CALLGUARD_TEST_UNSET}\n"))
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "CALLGUARD_TEST_UNSET")
}

func TestParse_EnvOverrideWins(t *testing.T) {
	t.Setenv("GUARD_RATE_LIMIT_BURST_SIZE", "99")
	t.Setenv("GUARD_LOG_LEVEL", "warn")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.RateLimit.BurstSize)
	assert.Equal(t, "warn", cfg.Observability.Logging.Level)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("rateLimit:\n  burstSize: 0\nretry:\n  maxAttempts: -1\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "rateLimit.burstSize")
	assert.Contains(t, err.Error(), "retry.maxAttempts")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "rateLimit.requestsPerMinute"},
		{"negative wait", func(c *Config) { c.RateLimit.MaxWaitSeconds = -1 }, "rateLimit.maxWaitSeconds"},
		{"failure threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, "circuitBreaker.failureThreshold"},
		{"open timeout", func(c *Config) { c.CircuitBreaker.OpenTimeoutSeconds = 0 }, "circuitBreaker.openTimeoutSeconds"},
		{"delay order", func(c *Config) { c.Retry.MaxDelaySeconds = 0.1 }, "retry.maxDelaySeconds"},
		{"backoff base", func(c *Config) { c.Retry.BackoffBase = 0.5 }, "retry.backoffBase"},
		{"cache size", func(c *Config) { c.Cache.MaxEntries = 0 }, "cache.maxEntries"},
		{"ttl clamp", func(c *Config) { c.Cache.MaxTTLSeconds = 10 }, "cache.defaultTtlSeconds"},
		{"attempt timeout", func(c *Config) { c.Execution.AttemptTimeoutSeconds = -1 }, "execution.attemptTimeoutSeconds"},
		{"service name", func(c *Config) { c.Observability.ServiceName = "" }, "service name"},
		{"log level", func(c *Config) { c.Observability.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DisabledCacheSkipsCacheChecks(t *testing.T) {
	cfg := Default()
	cfg.Cache.Enabled = false
	cfg.Cache.MaxEntries = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ObserveErrorsUnwrap(t *testing.T) {
	cfg := Default()
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Exporter = "carrier-pigeon"
	err := cfg.Validate()
	assert.ErrorIs(t, err, observe.ErrInvalidMetricsExporter)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.BurstSize = 42

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "burstSize: 42")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestGuardConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	gc := cfg.GuardConfig()
	assert.Equal(t, 120, gc.RateLimit.RequestsPerMinute)
	assert.Equal(t, 20, gc.RateLimit.Burst)
	assert.True(t, gc.RateLimit.WaitOnLimit)
	assert.Equal(t, 2500*time.Millisecond, gc.RateLimit.MaxWait)
	assert.Equal(t, 5*time.Minute, gc.IdleTimeout)

	assert.Equal(t, 3, gc.Breaker.FailureThreshold)
	assert.Equal(t, 1, gc.Breaker.SuccessThreshold)
	assert.Equal(t, 30*time.Second, gc.Breaker.Timeout)

	assert.Equal(t, 4, gc.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, gc.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, gc.Retry.MaxDelay)
	assert.Equal(t, 3.0, gc.Retry.Multiplier)
	assert.False(t, gc.Retry.Jitter)

	assert.False(t, gc.DisableCache)
	assert.Equal(t, 50, gc.Cache.MaxSize)
	require.NotNil(t, gc.Cache.Policy)
	assert.Equal(t, time.Minute, gc.Cache.Policy.DefaultTTL)
	assert.Equal(t, 10*time.Minute, gc.Cache.Policy.MaxTTL)
	assert.Equal(t, 15*time.Second, gc.Cache.SweepInterval)

	assert.Equal(t, 5*time.Second, gc.AttemptTimeout)
	assert.Equal(t, 8, gc.MaxConcurrent)
	assert.Nil(t, gc.Observer)
}

func TestGuardConfig_CacheDisabled(t *testing.T) {
	cfg := Default()
	cfg.Cache.Enabled = false
	assert.True(t, cfg.GuardConfig().DisableCache)
}

func TestObserveConfig(t *testing.T) {
	cfg := Default()
	cfg.Observability.Version = "1.2.3"
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.SamplePct = 0.25

	oc := cfg.ObserveConfig()
	assert.Equal(t, "callguard", oc.ServiceName)
	assert.Equal(t, "1.2.3", oc.Version)
	assert.True(t, oc.Tracing.Enabled)
	assert.Equal(t, "none", oc.Tracing.Exporter)
	assert.Equal(t, 0.25, oc.Tracing.SamplePct)
	assert.Equal(t, "info", oc.Logging.Level)
}
