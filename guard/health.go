package guard

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonwraymond/callguard/health"
	"github.com/jonwraymond/callguard/resilience"
)

// HealthCheckers returns checkers for the guard's breakers, cache and rate
// limiter, for registration with a health.Aggregator.
//
// The breaker checker reports the worst breaker: closed is healthy,
// half-open is degraded, and open is unhealthy until its timeout has
// elapsed, after which it is degraded because the next call will probe.
func (g *Guard) HealthCheckers() []health.Checker {
	checkers := []health.Checker{
		health.NewCheckerFunc("circuit_breakers", g.checkBreakers),
		health.NewCheckerFunc("rate_limiter", g.checkRateLimiter),
	}
	if g.cache != nil {
		checkers = append(checkers, health.NewCheckerFunc("cache", g.checkCache))
	}
	return checkers
}

func breakerHealth(st resilience.CircuitBreakerStatus) health.Status {
	switch st.State {
	case resilience.StateClosed:
		return health.StatusHealthy
	case resilience.StateHalfOpen:
		return health.StatusDegraded
	default:
		if st.RetryAfter <= 0 {
			return health.StatusDegraded
		}
		return health.StatusUnhealthy
	}
}

func (g *Guard) checkBreakers(ctx context.Context) health.Result {
	statuses := g.breakers.Statuses()

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := health.StatusHealthy
	var worst []string
	details := make(map[string]any, len(statuses))
	for _, name := range names {
		st := statuses[name]
		s := breakerHealth(st)
		details[name] = map[string]any{
			"state":               st.State.String(),
			"failures":            st.Failures,
			"retry_after_seconds": st.RetryAfter.Seconds(),
		}
		switch {
		case s > overall:
			overall = s
			worst = []string{name}
		case s == overall && s != health.StatusHealthy:
			worst = append(worst, name)
		}
	}

	var result health.Result
	switch overall {
	case health.StatusHealthy:
		result = health.Healthy(fmt.Sprintf("%d breakers closed", len(names)))
	case health.StatusDegraded:
		result = health.Degraded(fmt.Sprintf("breakers probing: %v", worst))
	default:
		result = health.Unhealthy(fmt.Sprintf("breakers open: %v", worst), resilience.ErrCircuitOpen)
	}
	return result.WithDetails(details)
}

func (g *Guard) checkRateLimiter(ctx context.Context) health.Result {
	st := g.limiter.Stats()
	return health.Healthy(fmt.Sprintf("%d active buckets", st.ActiveBuckets)).WithDetails(map[string]any{
		"requests_per_minute": st.RequestsPerMinute,
		"burst":               st.Burst,
		"active_buckets":      st.ActiveBuckets,
		"allowed":             st.Allowed,
		"rejected":            st.Rejected,
	})
}

func (g *Guard) checkCache(ctx context.Context) health.Result {
	st := g.cache.Stats()
	return health.Healthy(fmt.Sprintf("%d/%d entries", st.Size, st.MaxSize)).WithDetails(map[string]any{
		"size":      st.Size,
		"max_size":  st.MaxSize,
		"hit_rate":  st.HitRate,
		"evictions": st.Evictions,
	})
}
