package resilience

import (
	"context"
	"errors"
	"time"
)

const defaultAttemptTimeout = 30 * time.Second

// TimeoutConfig configures the per-attempt timeout.
type TimeoutConfig struct {
	// Timeout is the maximum duration of one attempt.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds each attempt of a call.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout returns a Timeout, substituting the default for a
// non-positive duration.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = defaultAttemptTimeout
	}
	return &Timeout{config: config}
}

// Execute runs op under a deadline of its own.
//
// An attempt cut short by that deadline yields a retryable *TransientError
// of kind KindTimeout wrapping ErrTimeout. If the parent context ends first
// its error comes back unchanged, so caller cancellation is never retried.
// An op that ignores its context keeps running in the background after
// Execute returns.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- op(attemptCtx) }()

	var (
		err      error
		finished bool
	)
	select {
	case err = <-result:
		if err == nil {
			return nil
		}
		finished = true
	case <-attemptCtx.Done():
	}

	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return Transient(KindTimeout, ErrTimeout)
	}
	if !finished {
		return ctx.Err()
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig { return t.config }

// ExecuteWithTimeout is shorthand for a single-use Timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
