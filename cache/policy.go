package cache

import (
	"fmt"
	"time"
)

// Policy resolves the lifetime of stored entries.
type Policy struct {
	// DefaultTTL applies when Set is given no TTL. Zero means such values
	// are not stored.
	DefaultTTL time.Duration

	// MaxTTL caps every TTL. Zero means uncapped.
	MaxTTL time.Duration
}

// DefaultPolicy stores entries for 5 minutes unless told otherwise.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 5 * time.Minute}
}

// TTL resolves a requested TTL: requested <= 0 takes DefaultTTL, and the
// result never exceeds MaxTTL. A zero result means do not store.
func (p Policy) TTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return max(ttl, 0)
}

// StoresByDefault reports whether a Set without a TTL stores anything.
func (p Policy) StoresByDefault() bool {
	return p.TTL(0) > 0
}

// Validate rejects negative durations and a default above the cap.
func (p Policy) Validate() error {
	switch {
	case p.DefaultTTL < 0:
		return fmt.Errorf("cache: negative default TTL %v", p.DefaultTTL)
	case p.MaxTTL < 0:
		return fmt.Errorf("cache: negative max TTL %v", p.MaxTTL)
	case p.MaxTTL > 0 && p.DefaultTTL > p.MaxTTL:
		return fmt.Errorf("cache: default TTL %v exceeds max TTL %v", p.DefaultTTL, p.MaxTTL)
	}
	return nil
}
