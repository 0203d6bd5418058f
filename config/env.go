package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GUARD_"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
//   - $VAR and ${VAR} are expanded as by os.ExpandEnv.
//   - ${VAR} with VAR unset is an error wrapping ErrMissingEnv.
//   - $$ emits a literal $.
func ExpandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00CALLGUARD_CONFIG_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing[match[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

type override struct {
	name string
	set  func(string) error
}

func (c *Config) overrides() []override {
	return []override{
		{"RATE_LIMIT_REQUESTS_PER_MINUTE", intVar(&c.RateLimit.RequestsPerMinute)},
		{"RATE_LIMIT_BURST_SIZE", intVar(&c.RateLimit.BurstSize)},
		{"RATE_LIMIT_WAIT_ON_LIMIT", boolVar(&c.RateLimit.WaitOnLimit)},
		{"RATE_LIMIT_MAX_WAIT_SECONDS", floatVar(&c.RateLimit.MaxWaitSeconds)},
		{"RATE_LIMIT_IDLE_TIMEOUT_SECONDS", floatVar(&c.RateLimit.IdleTimeoutSeconds)},

		{"CIRCUIT_BREAKER_FAILURE_THRESHOLD", intVar(&c.CircuitBreaker.FailureThreshold)},
		{"CIRCUIT_BREAKER_SUCCESS_THRESHOLD", intVar(&c.CircuitBreaker.SuccessThreshold)},
		{"CIRCUIT_BREAKER_OPEN_TIMEOUT_SECONDS", floatVar(&c.CircuitBreaker.OpenTimeoutSeconds)},
		{"CIRCUIT_BREAKER_HALF_OPEN_MAX_REQUESTS", intVar(&c.CircuitBreaker.HalfOpenMaxRequests)},

		{"RETRY_MAX_ATTEMPTS", intVar(&c.Retry.MaxAttempts)},
		{"RETRY_INITIAL_DELAY_SECONDS", floatVar(&c.Retry.InitialDelaySeconds)},
		{"RETRY_MAX_DELAY_SECONDS", floatVar(&c.Retry.MaxDelaySeconds)},
		{"RETRY_BACKOFF_BASE", floatVar(&c.Retry.BackoffBase)},
		{"RETRY_JITTER_ENABLED", boolVar(&c.Retry.JitterEnabled)},

		{"CACHE_ENABLED", boolVar(&c.Cache.Enabled)},
		{"CACHE_MAX_ENTRIES", intVar(&c.Cache.MaxEntries)},
		{"CACHE_DEFAULT_TTL_SECONDS", floatVar(&c.Cache.DefaultTTLSeconds)},
		{"CACHE_MAX_TTL_SECONDS", floatVar(&c.Cache.MaxTTLSeconds)},
		{"CACHE_SWEEP_INTERVAL_SECONDS", floatVar(&c.Cache.SweepIntervalSeconds)},

		{"EXECUTION_ATTEMPT_TIMEOUT_SECONDS", floatVar(&c.Execution.AttemptTimeoutSeconds)},
		{"EXECUTION_MAX_CONCURRENT", intVar(&c.Execution.MaxConcurrent)},

		{"SERVICE_NAME", stringVar(&c.Observability.ServiceName)},
		{"TRACING_ENABLED", boolVar(&c.Observability.Tracing.Enabled)},
		{"TRACING_EXPORTER", stringVar(&c.Observability.Tracing.Exporter)},
		{"TRACING_SAMPLE_PCT", floatVar(&c.Observability.Tracing.SamplePct)},
		{"METRICS_ENABLED", boolVar(&c.Observability.Metrics.Enabled)},
		{"METRICS_EXPORTER", stringVar(&c.Observability.Metrics.Exporter)},
		{"LOG_ENABLED", boolVar(&c.Observability.Logging.Enabled)},
		{"LOG_LEVEL", stringVar(&c.Observability.Logging.Level)},
	}
}

// ApplyEnv overrides fields from GUARD_* variables found by lookup. Every
// unparsable value is reported; each error wraps ErrInvalidEnv.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs error
	for _, o := range c.overrides() {
		name := EnvPrefix + o.name
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := o.set(strings.TrimSpace(v)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, name, v, err))
		}
	}
	return errs
}

// EnvNames lists the recognized override variables.
func EnvNames() []string {
	var c Config
	ovs := c.overrides()
	names := make([]string, len(ovs))
	for i, o := range ovs {
		names[i] = EnvPrefix + o.name
	}
	return names
}

func intVar(p *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
}

func floatVar(p *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
}

func stringVar(p *string) func(string) error {
	return func(s string) error {
		*p = s
		return nil
	}
}
