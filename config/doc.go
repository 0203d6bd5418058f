// Package config loads the guard configuration from YAML.
//
// Loading runs in four steps:
//
//  1. ${VAR} references in the file are expanded; a missing variable is an
//     error and $$ yields a literal $.
//  2. The YAML is decoded strictly. Unknown keys are rejected.
//  3. GUARD_* environment variables override single values, for example
//     GUARD_RATE_LIMIT_REQUESTS_PER_MINUTE=120.
//  4. The result is validated, reporting every problem at once.
//
// Durations are expressed in seconds and may be fractional.
//
// # Usage
//
//	cfg, err := config.Load("guard.yaml")
//	if err != nil {
//	    return err
//	}
//	g, err := guard.New(cfg.GuardConfig())
package config
