package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish before the
	// aggregator's deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates no checker is registered under a name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrNilChecker is returned when registering a nil checker.
	ErrNilChecker = errors.New("health: checker is nil")
)
