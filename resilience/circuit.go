package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls pass through and failures are counted.
	StateClosed State = iota
	// StateOpen means calls are rejected without reaching the remote.
	StateOpen
	// StateHalfOpen means a limited number of probe calls are let through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the guarded operation class in errors and status.
	Name string

	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes
	// the circuit.
	// Default: 2
	SuccessThreshold int

	// Timeout is how long the circuit stays open after the last failure.
	// Default: 60 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests caps concurrent probe calls in half-open state.
	// Default: SuccessThreshold
	HalfOpenMaxRequests int

	// IsFailure decides whether an error counts against the breaker.
	// Errors that are not failures pass through without touching state.
	// Default: DefaultClassifier's retryable verdict.
	IsFailure func(err error) bool

	// OnStateChange is called under the breaker lock on every transition.
	// It must not call back into the breaker.
	OnStateChange func(from, to State)

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// CircuitBreaker implements the circuit breaker pattern.
//
// The OPEN to HALF_OPEN transition is lazy: it happens on the first call
// after Timeout has elapsed, never on a timer.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu             sync.Mutex
	state          State
	generation     uint64
	failures       int
	successes      int
	halfOpenActive int
	lastFailure    time.Time
	stateChangedAt time.Time
	lastUsed       time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = config.SuccessThreshold
	}
	if config.IsFailure == nil {
		config.IsFailure = Classifier(DefaultClassifier).Retryable
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	now := config.Now()
	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateChangedAt: now,
		lastUsed:       now,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	gen, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = op(ctx)
	cb.afterRequest(gen, err)
	return err
}

// State returns the stored circuit state. It does not perform the lazy
// OPEN to HALF_OPEN transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.setStateLocked(StateClosed)
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Now()
	cb.lastUsed = now

	if cb.state == StateOpen {
		if elapsed := now.Sub(cb.lastFailure); elapsed < cb.config.Timeout {
			return 0, &CircuitOpenError{
				Name:       cb.config.Name,
				State:      StateOpen,
				RetryAfter: cb.config.Timeout - elapsed,
			}
		}
		cb.setStateLocked(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenActive >= cb.config.HalfOpenMaxRequests {
			return 0, &CircuitOpenError{Name: cb.config.Name, State: StateHalfOpen}
		}
		cb.halfOpenActive++
	}

	return cb.generation, nil
}

func (cb *CircuitBreaker) afterRequest(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// The state moved on while this call was in flight.
	if gen != cb.generation {
		return
	}

	if cb.state == StateHalfOpen {
		cb.halfOpenActive--
	}

	switch {
	case err == nil:
		cb.onSuccessLocked()
	case cb.config.IsFailure(err):
		cb.onFailureLocked()
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setStateLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.failures++
	cb.lastFailure = cb.config.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.setStateLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(to State) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.halfOpenActive = 0
	cb.stateChangedAt = cb.config.Now()

	switch to {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
	case StateHalfOpen:
		cb.failures = 0
		cb.successes = 0
	case StateOpen:
		cb.successes = 0
	}

	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// CircuitBreakerStatus is a point-in-time view of a breaker.
type CircuitBreakerStatus struct {
	Name        string
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
	TimeInState time.Duration

	// RetryAfter is the time left before an open circuit admits a probe.
	RetryAfter time.Duration
}

// Status returns the breaker status without changing it.
func (cb *CircuitBreaker) Status() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Now()
	status := CircuitBreakerStatus{
		Name:        cb.config.Name,
		State:       cb.state,
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
		TimeInState: now.Sub(cb.stateChangedAt),
	}
	if cb.state == StateOpen {
		if left := cb.config.Timeout - now.Sub(cb.lastFailure); left > 0 {
			status.RetryAfter = left
		}
	}
	return status
}

// idleSince reports whether the breaker is closed, clean, and unused since
// cutoff.
func (cb *CircuitBreaker) idleSince(cutoff time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == StateClosed && cb.failures == 0 && cb.lastUsed.Before(cutoff)
}
