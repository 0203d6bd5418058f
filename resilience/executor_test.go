package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewExecutor(t *testing.T) {
	e := NewExecutor()

	if e.circuitBreaker != nil || e.breakers != nil {
		t.Error("Default executor should not have a circuit breaker")
	}
	if e.retry != nil {
		t.Error("Default executor should not have retry")
	}
	if e.rateLimiter != nil {
		t.Error("Default executor should not have rate limiter")
	}
	if e.bulkhead != nil {
		t.Error("Default executor should not have bulkhead")
	}
	if e.timeout != nil {
		t.Error("Default executor should not have timeout")
	}
}

func TestExecutor_BreakerOptionsAreExclusive(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	g := NewBreakerGroup(BreakerGroupConfig{})

	e := NewExecutor(WithCircuitBreaker(cb), WithBreakerGroup(g))
	if e.circuitBreaker != nil || e.breakers != g {
		t.Error("WithBreakerGroup should replace the single breaker")
	}

	e = NewExecutor(WithBreakerGroup(g), WithCircuitBreaker(cb))
	if e.breakers != nil || e.circuitBreaker != cb {
		t.Error("WithCircuitBreaker should replace the group")
	}
}

func TestExecutor_ExecuteNoPatterns(t *testing.T) {
	e := NewExecutor()

	executed := false
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		executed = true
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if !executed {
		t.Error("Operation was not executed")
	}
}

func TestExecutor_RateLimitBeforeBreaker(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, Burst: 1, Now: clock.Now})
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Now: clock.Now})

	e := NewExecutor(WithRateLimiter(rl), WithCircuitBreaker(cb))
	ctx := WithKey(context.Background(), "k")

	_ = e.Execute(ctx, succeeding)
	err := e.Execute(ctx, failing)

	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Execute() = %v, want ErrRateLimitExceeded", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("rejected call reached the breaker, state = %v", cb.State())
	}
}

func TestExecutor_RetryInsideBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})
	e := NewExecutor(WithCircuitBreaker(cb), WithRetry(r))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errUnavailable
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Execute() = %v, want ErrMaxRetriesExceeded", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if got := cb.Status().Failures; got != 1 {
		t.Errorf("breaker failures = %d, want 1", got)
	}
}

func TestExecutor_OpenBreakerSkipsRetry(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})
	e := NewExecutor(WithCircuitBreaker(cb), WithRetry(r))

	_ = e.Execute(context.Background(), failing)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestExecutor_TimeoutPerAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond})
	e := NewExecutor(WithRetry(r), WithTimeout(10*time.Millisecond))

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecutor_BreakerGroupByOperation(t *testing.T) {
	g := NewBreakerGroup(BreakerGroupConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute},
	})
	e := NewExecutor(WithBreakerGroup(g))

	_ = e.Execute(WithOperation(context.Background(), "a"), failing)

	if err := e.Execute(WithOperation(context.Background(), "a"), succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("a = %v, want ErrCircuitOpen", err)
	}
	if err := e.Execute(WithOperation(context.Background(), "b"), succeeding); err != nil {
		t.Errorf("b error = %v", err)
	}
}
