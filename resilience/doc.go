// Package resilience provides the admission and failure-handling patterns
// that guard calls to a remote service.
//
// # Patterns
//
//   - Rate Limiter: one token bucket per caller key with lazy refill.
//     Rejections carry the limit, the wait time, and the reset time.
//
//   - Circuit Breaker: a CLOSED / OPEN / HALF_OPEN state machine that fails
//     fast while the remote is unhealthy and probes it after a timeout. A
//     BreakerGroup keeps one breaker per operation class.
//
//   - Retry: exponential backoff with jitter in [0.5, 1.0). Only errors the
//     Classifier marks retryable are retried.
//
//   - Bulkhead: limits concurrent calls.
//
//   - Timeout: bounds each attempt.
//
// # Error classification
//
// DefaultClassifier retries timeouts, connection failures, and 5xx
// statuses, and never retries 4xx statuses or context cancellation.
// Collaborators can mark errors explicitly with Transient and Permanent, or
// report a status with *StatusError.
//
// # Usage
//
//	breakers := resilience.NewBreakerGroup(resilience.BreakerGroupConfig{
//	    Breaker: resilience.CircuitBreakerConfig{
//	        FailureThreshold: 5,
//	        SuccessThreshold: 2,
//	        Timeout:          time.Minute,
//	    },
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	        RequestsPerMinute: 60,
//	        Burst:             10,
//	    })),
//	    resilience.WithBreakerGroup(breakers),
//	    resilience.WithRetry(resilience.NewRetry(resilience.DefaultRetryConfig())),
//	)
//
//	ctx = resilience.WithKey(ctx, "user-42")
//	ctx = resilience.WithOperation(ctx, "users.get")
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callRemote(ctx)
//	})
package resilience
