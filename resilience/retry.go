package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 60 seconds
	MaxDelay time.Duration

	// Multiplier is the exponential backoff base.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter scales each delay by a random factor in [0.5, 1.0).
	Jitter bool

	// Classifier decides which errors are retried and labels the final
	// error's kind.
	// Default: DefaultClassifier
	Classifier Classifier

	// OnRetry is called before sleeping ahead of each retry. attempt is the
	// attempt that just failed.
	OnRetry func(ctx context.Context, attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns three attempts with jittered 1s, 2s backoff
// capped at 60s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Strategy:     BackoffExponential,
		Jitter:       true,
	}
}

// Retry implements retry with backoff. It holds no state between calls and
// is safe to share.
type Retry struct {
	config RetryConfig
	rand   func() float64
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Classifier == nil {
		config.Classifier = DefaultClassifier
	}

	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return &Retry{config: config, rand: rand.Float64}
}

// Execute runs op until it succeeds, fails terminally, or runs out of
// attempts.
//
// A non-retryable error is returned as is. After the last attempt the
// final error is returned inside a *RetryExhaustedError. If ctx is done
// while waiting, ctx.Err() is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.Classifier.Retryable(err) {
			return err
		}

		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.Delay(attempt + 1)

		if r.config.OnRetry != nil {
			r.config.OnRetry(ctx, attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &RetryExhaustedError{
		Attempts: r.config.MaxAttempts,
		Kind:     r.config.Classifier(lastErr).Kind,
		Err:      lastErr,
	}
}

// Backoff returns the delay before attempt n without jitter. Attempts
// before the second have no delay.
func (r *Retry) Backoff(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}

	initial := float64(r.config.InitialDelay)
	var delay float64

	switch r.config.Strategy {
	case BackoffConstant:
		delay = initial
	case BackoffLinear:
		delay = initial * float64(attempt-1)
	default:
		delay = initial * math.Pow(r.config.Multiplier, float64(attempt-2))
	}

	if delay > float64(r.config.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return r.config.MaxDelay
	}
	return time.Duration(delay)
}

// Delay returns the delay before attempt n, with jitter when enabled.
func (r *Retry) Delay(attempt int) time.Duration {
	delay := r.Backoff(attempt)
	if r.config.Jitter && delay > 0 {
		factor := 0.5 + r.rand()*0.5
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
