package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/callguard/observe"
	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds one CheckAll or Check call.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxConcurrent caps how many checks run at once. 1 runs them in
	// registration order; 0 runs them all at once.
	// Default: 0
	MaxConcurrent int

	// Logger receives a warning for every check that is not healthy.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Aggregator combines named checkers into one composite status.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxConcurrent < 0 {
		cfg.MaxConcurrent = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	return &Aggregator{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds or replaces the checker stored under name.
func (a *Aggregator) Register(name string, checker Checker) error {
	if checker == nil {
		return ErrNilChecker
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
	return nil
}

// RegisterAll registers every checker under its own Name.
func (a *Aggregator) RegisterAll(checkers ...Checker) error {
	for _, c := range checkers {
		if c == nil {
			return ErrNilChecker
		}
		if err := a.Register(c.Name(), c); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes the checker stored under name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.checkers[name]; !ok {
		return
	}
	delete(a.checkers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs the checker stored under name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	result := runCheck(ctx, checker)
	a.logResult(ctx, name, result)
	return result, nil
}

// CheckAll runs every registered checker and returns the results by name.
// A checker that outlives the deadline is reported unhealthy with
// ErrCheckTimeout.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = a.checkers[name]
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(names))
	if len(names) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if a.config.MaxConcurrent > 0 {
		g.SetLimit(a.config.MaxConcurrent)
	}
	for i, name := range names {
		checker := checkers[i]
		g.Go(func() error {
			result := runCheck(ctx, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range names {
		a.logResult(ctx, name, results[name])
	}
	return results
}

// OverallStatus returns the worst status in results. An empty set is
// healthy.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	status := StatusHealthy
	for _, result := range results {
		status = status.Worse(result.Status)
	}
	return status
}

// Report is a point-in-time view of every check.
type Report struct {
	Status    Status
	Timestamp time.Time
	Checks    map[string]Result
}

// Report runs every check and summarizes them.
func (a *Aggregator) Report(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	return Report{
		Status:    a.OverallStatus(results),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func (a *Aggregator) logResult(ctx context.Context, name string, result Result) {
	if result.Status == StatusHealthy {
		return
	}
	fields := []observe.Field{
		{Key: "check", Value: name},
		{Key: "status", Value: result.Status.String()},
		{Key: "message", Value: result.Message},
	}
	if result.Error != nil {
		fields = append(fields, observe.Field{Key: "error", Value: result.Error.Error()})
	}
	a.config.Logger.Warn(ctx, "health check not healthy", fields...)
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}

// Checker exposes the aggregator as a single Checker named "aggregate".
func (a *Aggregator) Checker() Checker {
	return NewCheckerFunc("aggregate", func(ctx context.Context) Result {
		report := a.Report(ctx)

		details := make(map[string]any, len(report.Checks))
		for name, result := range report.Checks {
			details[name] = map[string]any{
				"status":   result.Status.String(),
				"message":  result.Message,
				"duration": result.Duration.String(),
			}
		}

		var message string
		switch report.Status {
		case StatusHealthy:
			message = "all checks passed"
		case StatusDegraded:
			message = "some checks degraded"
		default:
			message = "some checks failed"
		}

		return Result{
			Status:    report.Status,
			Message:   message,
			Details:   details,
			Timestamp: report.Timestamp,
		}
	})
}
