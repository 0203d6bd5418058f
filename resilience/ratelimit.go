package resilience

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// DefaultKey is the bucket used when a call supplies no key.
const DefaultKey = "default"

// TokenBucket is a capped, continuously refilling permit counter.
//
// Refill is lazy: the balance is recomputed from elapsed time on every
// access and never by a background timer. Only Take changes the bucket;
// reads compute the refilled balance without storing it.
type TokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
}

// NewTokenBucket creates a full bucket.
// If now is nil, time.Now is used.
func NewTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if now == nil {
		now = time.Now
	}
	t := now()
	return &TokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		now:        now,
		tokens:     float64(capacity),
		lastRefill: t,
		lastUsed:   t,
	}
}

// Take consumes n tokens if they are available. When they are not, it
// returns the time until they will be.
func (b *TokenBucket) Take(n float64) (ok bool, wait time.Duration, remaining float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens = b.balanceLocked(now)
	b.lastRefill = now
	b.lastUsed = now

	if b.tokens >= n {
		b.tokens -= n
		return true, 0, b.tokens
	}
	return false, waitFor(n-b.tokens, b.refillRate), b.tokens
}

// Available returns the current balance.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(b.now())
}

// WaitTime returns how long until n tokens are available, 0 if they are now.
func (b *TokenBucket) WaitTime(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tokens := b.balanceLocked(b.now()); tokens < n {
		return waitFor(n-tokens, b.refillRate)
	}
	return 0
}

// Capacity returns the maximum balance.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// balanceLocked returns the balance at now without storing it.
func (b *TokenBucket) balanceLocked(now time.Time) float64 {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return b.tokens
	}
	return math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
}

func waitFor(deficit, rate float64) time.Duration {
	return time.Duration(math.Ceil(deficit / rate * float64(time.Second)))
}

// LastUsed returns the time of the most recent Take.
func (b *TokenBucket) LastUsed() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}

// idleFull reports whether the bucket is full and has not been taken from
// since cutoff.
func (b *TokenBucket) idleFull(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.lastUsed.Before(cutoff) {
		return false
	}
	return b.balanceLocked(b.now()) >= b.capacity
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained refill rate of every bucket.
	// Default: 60
	RequestsPerMinute int

	// Burst is the capacity of every bucket.
	// Default: 10
	Burst int

	// WaitOnLimit waits for tokens instead of returning an error.
	// Default: false
	WaitOnLimit bool

	// MaxWait bounds a single wait in WaitOnLimit mode.
	// Default: 30 seconds
	MaxWait time.Duration

	// IdleTimeout is how long a bucket may go unused before
	// CleanupInactive removes it.
	// Default: 5 minutes
	IdleTimeout time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Wait      time.Duration
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateLimiter admits calls per key with one token bucket per key.
//
// The bucket map has its own lock; each bucket has another. Consuming
// tokens on one key never waits on another key.
type RateLimiter struct {
	config     RateLimiterConfig
	refillRate float64

	mu      sync.RWMutex
	buckets map[string]*TokenBucket

	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config:     config,
		refillRate: float64(config.RequestsPerMinute) / 60,
		buckets:    make(map[string]*TokenBucket),
	}
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	if key == "" {
		key = DefaultKey
	}

	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[key]; ok {
		return b
	}
	b = NewTokenBucket(rl.config.Burst, rl.refillRate, rl.config.Now)
	rl.buckets[key] = b
	return b
}

// CheckLimit consumes n tokens from key's bucket if they are available.
// n below 1 counts as 1. Any string is a valid key; the empty key maps to
// DefaultKey. Every call counts as one allow or one rejection in Stats.
func (rl *RateLimiter) CheckLimit(key string, n int) Decision {
	d := rl.take(key, n)
	rl.record(d.Allowed)
	return d
}

func (rl *RateLimiter) record(allowed bool) {
	if allowed {
		rl.allowed.Inc()
		return
	}
	rl.rejected.Inc()
}

// take is CheckLimit without touching the counters.
func (rl *RateLimiter) take(key string, n int) Decision {
	if n < 1 {
		n = 1
	}

	ok, wait, remaining := rl.bucket(key).Take(float64(n))
	d := Decision{
		Allowed:   ok,
		Wait:      wait,
		Remaining: int(math.Floor(remaining)),
		Limit:     rl.config.RequestsPerMinute,
	}
	if ok {
		d.ResetAt = rl.config.Now()
		return d
	}

	d.Remaining = 0
	d.ResetAt = rl.config.Now().Add(wait)
	return d
}

// Allow consumes one token for key or returns a *RateLimitError.
func (rl *RateLimiter) Allow(key string) error {
	return rl.AllowN(key, 1)
}

// AllowN consumes n tokens for key or returns a *RateLimitError.
func (rl *RateLimiter) AllowN(key string, n int) error {
	if err := rl.checkCost(n); err != nil {
		return err
	}
	d := rl.CheckLimit(key, n)
	if d.Allowed {
		return nil
	}
	return rl.limitError(key, d)
}

// Wait blocks until a token for key is available, the context is done,
// or MaxWait would be exceeded.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.WaitN(ctx, key, 1)
}

// WaitN blocks until n tokens for key are available.
//
// Waiting never holds a lock, so other keys and other waiters on the same
// key make progress. If the next required wait would push the total past
// MaxWait, WaitN gives up with a *RateLimitError. A WaitN call counts once
// in Stats: as an allow when it gets its tokens, as a rejection when it
// gives up. A call ended by its context counts as neither.
func (rl *RateLimiter) WaitN(ctx context.Context, key string, n int) error {
	if err := rl.checkCost(n); err != nil {
		return err
	}

	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		d := rl.take(key, n)
		if d.Allowed {
			rl.record(true)
			return nil
		}
		if waited+d.Wait > rl.config.MaxWait {
			rl.record(false)
			return rl.limitError(key, d)
		}

		if err := sleep(ctx, d.Wait); err != nil {
			return err
		}
		waited += d.Wait
	}
}

// Admit applies the configured policy: wait in WaitOnLimit mode, reject
// otherwise.
func (rl *RateLimiter) Admit(ctx context.Context, key string, n int) error {
	if rl.config.WaitOnLimit {
		return rl.WaitN(ctx, key, n)
	}
	return rl.AllowN(key, n)
}

// Execute runs the operation if the key taken from ctx is admitted.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Admit(ctx, KeyFromContext(ctx), TokensFromContext(ctx)); err != nil {
		return err
	}
	return op(ctx)
}

func (rl *RateLimiter) checkCost(n int) error {
	if n > rl.config.Burst {
		return fmt.Errorf("%w: %d > %d", ErrTokensExceedBurst, n, rl.config.Burst)
	}
	return nil
}

func (rl *RateLimiter) limitError(key string, d Decision) error {
	if key == "" {
		key = DefaultKey
	}
	return &RateLimitError{
		Key:       key,
		Limit:     d.Limit,
		Remaining: 0,
		ResetAt:   d.ResetAt,
		Wait:      d.Wait,
	}
}

// LimitInfo is a non-consuming view of one key's bucket.
type LimitInfo struct {
	Key       string
	Limit     int
	Burst     int
	Remaining float64
	ResetAt   time.Time // when the bucket will be full again
}

// LimitInfo reports key's balance without consuming tokens. Unknown keys
// report a full bucket and are not created.
func (rl *RateLimiter) LimitInfo(key string) LimitInfo {
	if key == "" {
		key = DefaultKey
	}
	now := rl.config.Now()
	info := LimitInfo{
		Key:       key,
		Limit:     rl.config.RequestsPerMinute,
		Burst:     rl.config.Burst,
		Remaining: float64(rl.config.Burst),
		ResetAt:   now,
	}

	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if !ok {
		return info
	}

	info.Remaining = b.Available()
	info.ResetAt = now.Add(b.WaitTime(b.Capacity()))
	return info
}

// Reset drops key's bucket; the next request sees a full bucket.
func (rl *RateLimiter) Reset(key string) {
	if key == "" {
		key = DefaultKey
	}
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}

// CleanupInactive removes buckets untouched for longer than threshold that
// have refilled to capacity. A zero threshold uses IdleTimeout. It returns
// the number of buckets removed.
func (rl *RateLimiter) CleanupInactive(threshold time.Duration) int {
	if threshold <= 0 {
		threshold = rl.config.IdleTimeout
	}
	cutoff := rl.config.Now().Add(-threshold)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, b := range rl.buckets {
		if b.idleFull(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// BucketStats describes one bucket.
type BucketStats struct {
	Available float64
	Capacity  float64
}

// RateLimiterStats contains rate limiter statistics.
type RateLimiterStats struct {
	RequestsPerMinute int
	Burst             int
	ActiveBuckets     int
	Allowed           int64
	Rejected          int64
	Buckets           map[string]BucketStats
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.RLock()
	keys := make([]string, 0, len(rl.buckets))
	buckets := make([]*TokenBucket, 0, len(rl.buckets))
	for key, b := range rl.buckets {
		keys = append(keys, key)
		buckets = append(buckets, b)
	}
	rl.mu.RUnlock()

	stats := RateLimiterStats{
		RequestsPerMinute: rl.config.RequestsPerMinute,
		Burst:             rl.config.Burst,
		ActiveBuckets:     len(keys),
		Allowed:           rl.allowed.Load(),
		Rejected:          rl.rejected.Load(),
		Buckets:           make(map[string]BucketStats, len(keys)),
	}
	for i, key := range keys {
		stats.Buckets[key] = BucketStats{
			Available: buckets[i].Available(),
			Capacity:  buckets[i].Capacity(),
		}
	}
	return stats
}

// Keys returns the keys with a live bucket, sorted.
func (rl *RateLimiter) Keys() []string {
	rl.mu.RLock()
	keys := make([]string, 0, len(rl.buckets))
	for key := range rl.buckets {
		keys = append(keys, key)
	}
	rl.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
