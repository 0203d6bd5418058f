package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a cache miss.
type LoadFunc func(ctx context.Context) (any, error)

// Condition reports whether a loaded value may be cached.
type Condition func(value any) bool

// Always caches every successful result.
func Always(any) bool { return true }

// Loader wraps calls with cache-then-call semantics.
//
// On a hit the cached value is returned without calling the loader. On a
// miss the loader runs once per key even under concurrent demand, and a
// successful result is stored when the Condition allows it. Errors are
// never cached.
type Loader struct {
	cache Cache
	keyer Keyer
	group singleflight.Group

	loads  atomic.Int64
	shared atomic.Int64
}

// NewLoader creates a loader over cache. A nil keyer uses DefaultKeyer.
func NewLoader(cache Cache, keyer Keyer) (*Loader, error) {
	if cache == nil {
		return nil, ErrNilCache
	}
	if keyer == nil {
		keyer = NewDefaultKeyer()
	}
	return &Loader{cache: cache, keyer: keyer}, nil
}

// Key derives the cache key for an operation and its arguments.
func (l *Loader) Key(operation string, args any) (string, error) {
	return l.keyer.Key(operation, args)
}

// Execute returns the value cached under key, or loads and caches it.
// hit reports whether the value came from the cache.
func (l *Loader) Execute(ctx context.Context, key string, ttl time.Duration, fn LoadFunc) (value any, hit bool, err error) {
	return l.ExecuteIf(ctx, key, ttl, Always, fn)
}

// ExecuteIf is Execute with a caching predicate: a loaded value is stored
// only when cond returns true.
func (l *Loader) ExecuteIf(ctx context.Context, key string, ttl time.Duration, cond Condition, fn LoadFunc) (value any, hit bool, err error) {
	if cond == nil {
		cond = Always
	}
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, true, nil
	}

	load := func() (any, error) {
		l.loads.Inc()
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if cond(v) {
			// A rejected key only loses the caching, not the result.
			_ = l.cache.Set(ctx, key, v, ttl)
		}
		return v, nil
	}
	ch := l.group.DoChan(key, load)

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			l.shared.Inc()
		}
		// The leader's cancellation must not fail followers that are
		// still live.
		if res.Err != nil && res.Shared && ctx.Err() == nil && isContextErr(res.Err) {
			v, err := load()
			return v, false, err
		}
		return res.Val, false, res.Err
	}
}

// Invalidate removes the value cached under key.
func (l *Loader) Invalidate(ctx context.Context, key string) bool {
	return l.cache.Delete(ctx, key)
}

// LoaderStats counts loader activity.
type LoaderStats struct {
	Loads  int64 `json:"loads"`
	Shared int64 `json:"shared"`
}

// Stats returns loader counters. Loads counts loader invocations; Shared
// counts callers that received another caller's in-flight result.
func (l *Loader) Stats() LoaderStats {
	return LoaderStats{
		Loads:  l.loads.Load(),
		Shared: l.shared.Load(),
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
