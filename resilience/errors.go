package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when max retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrTokensExceedBurst is returned when a single request asks for more
	// tokens than a bucket can ever hold.
	ErrTokensExceedBurst = errors.New("resilience: requested tokens exceed burst size")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an attempt times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// RateLimitError is returned when a key has no tokens left.
// It matches ErrRateLimitExceeded with errors.Is.
type RateLimitError struct {
	Key       string
	Limit     int // requests per minute
	Remaining int
	ResetAt   time.Time
	Wait      time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded for %q, try again in %.1f seconds", e.Key, e.Wait.Seconds())
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Details returns the rejection as plain structured data.
func (e *RateLimitError) Details() map[string]any {
	return map[string]any{
		"limit":      e.Limit,
		"remaining":  e.Remaining,
		"reset_time": e.ResetAt.Unix(),
		"wait_time":  e.Wait.Seconds(),
	}
}

// CircuitOpenError is returned when a breaker fails a call fast.
// It matches ErrCircuitOpen with errors.Is.
type CircuitOpenError struct {
	Name       string
	State      State
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("resilience: circuit breaker is %s, retry after %s", e.State, e.RetryAfter)
	}
	return fmt.Sprintf("resilience: circuit breaker %q is %s, retry after %s", e.Name, e.State, e.RetryAfter)
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RetryExhaustedError wraps the last error seen after every attempt failed.
// It unwraps to both ErrMaxRetriesExceeded and the last error.
type RetryExhaustedError struct {
	Attempts int
	Kind     ErrorKind
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("resilience: %s failure after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrMaxRetriesExceeded, e.Err}
}

// TransientError marks an error as retryable with a known kind.
type TransientError struct {
	Kind ErrorKind
	Err  error
}

// Transient marks err as a retryable failure of the given kind.
func Transient(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Kind: kind, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as never retryable.
type PermanentError struct {
	Err error
}

// Permanent marks err as a failure that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// StatusError reports a non-success status from the remote service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resilience: remote returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("resilience: remote returned %d: %s", e.StatusCode, e.Message)
}
