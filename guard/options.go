package guard

import (
	"time"

	"github.com/jonwraymond/callguard/cache"
	"github.com/jonwraymond/callguard/resilience"
)

type callOptions struct {
	operation string
	namespace string
	tokens    int

	cacheKey  string
	cacheArgs any
	hasArgs   bool
	cacheTTL  time.Duration
	condition cache.Condition
}

func (o callOptions) cached() bool {
	return o.cacheKey != "" || o.hasArgs
}

// CallOption configures one call.
type CallOption func(*callOptions)

// WithOperation names the operation class. It selects the circuit breaker
// and labels telemetry.
// Default: "default"
func WithOperation(name string) CallOption {
	return func(o *callOptions) {
		o.operation = name
	}
}

// WithCacheKey caches the result under key.
func WithCacheKey(key string) CallOption {
	return func(o *callOptions) {
		o.cacheKey = key
	}
}

// WithCacheArgs caches the result under a key derived from the operation
// name and args. WithCacheKey takes precedence.
func WithCacheArgs(args any) CallOption {
	return func(o *callOptions) {
		o.cacheArgs = args
		o.hasArgs = true
	}
}

// WithCacheTTL overrides the cache policy's default TTL for this call.
func WithCacheTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.cacheTTL = ttl
	}
}

// WithCacheNamespace prefixes the cache key with namespace so the
// namespace can be cleared as a group.
func WithCacheNamespace(namespace string) CallOption {
	return func(o *callOptions) {
		o.namespace = namespace
	}
}

// WithCacheCondition caches a successful result only when cond returns
// true.
func WithCacheCondition(cond cache.Condition) CallOption {
	return func(o *callOptions) {
		o.condition = cond
	}
}

// WithTokens charges n rate limit tokens for the call.
// Default: 1
func WithTokens(n int) CallOption {
	return func(o *callOptions) {
		o.tokens = n
	}
}

func newCallOptions(opts []CallOption) callOptions {
	o := callOptions{
		operation: resilience.DefaultOperation,
		tokens:    1,
		condition: cache.Always,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.operation == "" {
		o.operation = resilience.DefaultOperation
	}
	if o.condition == nil {
		o.condition = cache.Always
	}
	return o
}
