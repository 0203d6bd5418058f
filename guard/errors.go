package guard

import "errors"

var (
	// ErrNilFunc is returned when Call is given a nil function.
	ErrNilFunc = errors.New("guard: function is nil")

	// ErrResultType is returned by Do when the result does not have the
	// requested type, e.g. a cached value stored by another call site.
	ErrResultType = errors.New("guard: unexpected result type")
)
