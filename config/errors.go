package config

import "errors"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingEnv is returned when a ${VAR} reference names an unset
	// variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrInvalidEnv is returned when a GUARD_* override cannot be parsed.
	ErrInvalidEnv = errors.New("config: invalid environment override")
)
