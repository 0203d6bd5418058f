package resilience

import (
	"context"
	"time"
)

// stage is a pattern that wraps one operation.
type stage interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Executor chains the configured patterns around an operation.
type Executor struct {
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	breakers       *BreakerGroup
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor returns an Executor with the given patterns. With no options
// Execute simply calls the operation.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := new(Executor)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter admits each call through rl, keyed by WithKey and charged
// WithTokens.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead caps the calls in flight.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithCircuitBreaker puts every call behind cb. It replaces any
// BreakerGroup.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker, e.breakers = cb, nil
	}
}

// WithBreakerGroup puts each call behind the breaker of its operation
// (see WithOperation). It replaces any single breaker.
func WithBreakerGroup(g *BreakerGroup) ExecutorOption {
	return func(e *Executor) {
		e.breakers, e.circuitBreaker = g, nil
	}
}

// WithRetry retries retryable failures.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// stages lists the configured patterns from outermost to innermost:
// rate limiter, bulkhead, breaker, retry, timeout. Rejected calls never take
// a bulkhead slot, and the breaker records the result of the whole retry
// loop as one outcome.
func (e *Executor) stages() []stage {
	var s []stage
	if e.rateLimiter != nil {
		s = append(s, e.rateLimiter)
	}
	if e.bulkhead != nil {
		s = append(s, e.bulkhead)
	}
	if e.breakers != nil {
		s = append(s, e.breakers)
	} else if e.circuitBreaker != nil {
		s = append(s, e.circuitBreaker)
	}
	if e.retry != nil {
		s = append(s, e.retry)
	}
	if e.timeout != nil {
		s = append(s, e.timeout)
	}
	return s
}

// Execute runs op through every configured pattern.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	stages := e.stages()
	for i := len(stages) - 1; i >= 0; i-- {
		run = wrap(stages[i], run)
	}
	return run(ctx)
}

func wrap(s stage, next func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.Execute(ctx, next)
	}
}
