// Package health reports whether the guard's components can serve calls.
//
// A Checker reports one component as Healthy, Degraded, or Unhealthy. The
// guard package exposes checkers for its circuit breakers (closed is
// healthy, half-open degraded, open unhealthy), its cache, and its rate
// limiter. An Aggregator runs them concurrently under a deadline and
// reports the worst status.
//
// # HTTP Endpoints
//
//	agg := health.NewAggregator()
//	_ = agg.RegisterAll(g.HealthCheckers()...)
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)        // /healthz, /readyz, /health
//	health.RegisterMetrics(mux, obs.Gatherer()) // /metrics
package health
