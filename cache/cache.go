package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxKeyLength bounds the length of a key in bytes.
const MaxKeyLength = 512

var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache is the storage a Loader reads through. Manager implements it.
//
// Implementations are safe for concurrent use and report an expired entry
// as absent whether or not it has been swept yet.
type Cache interface {
	// Get returns the live value for key, or (nil, false).
	Get(ctx context.Context, key string) (any, bool)

	// Set stores value. A ttl <= 0 asks for the implementation's default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key and reports whether a live entry was there.
	Delete(ctx context.Context, key string) bool

	Exists(ctx context.Context, key string) bool
}

// ValidateKey rejects blank keys, keys containing line breaks, and keys
// longer than MaxKeyLength. Errors wrap ErrInvalidKey or ErrKeyTooLong.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: blank", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	case strings.ContainsAny(key, "\n\r"):
		return fmt.Errorf("%w: contains a line break", ErrInvalidKey)
	}
	return nil
}

// NamespacedKey returns "namespace:key", or key alone when namespace is
// empty.
func NamespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}
