package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/jonwraymond/callguard/cache"
	"github.com/jonwraymond/callguard/observe"
	"github.com/jonwraymond/callguard/resilience"
)

// Func is a call to the remote service.
type Func func(ctx context.Context) (any, error)

// Guard composes caching, rate limiting, circuit breaking, retry and
// telemetry around calls to one remote service. Create one per remote at
// startup and share it; it is safe for concurrent use.
type Guard struct {
	config Config

	limiter  *resilience.RateLimiter
	breakers *resilience.BreakerGroup
	retry    *resilience.Retry
	bulkhead *resilience.Bulkhead
	executor *resilience.Executor

	cache  *cache.Manager
	loader *cache.Loader

	mw      *observe.Middleware
	metrics observe.Metrics
	logger  observe.Logger
	gauges  metric.Registration

	calls           atomic.Int64
	failures        atomic.Int64
	cacheHits       atomic.Int64
	rateLimited     atomic.Int64
	circuitRejected atomic.Int64
	retries         atomic.Int64
	exhausted       atomic.Int64

	runMu  sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// New builds a Guard from cfg. It fails when the cache policy is invalid
// or the observer's metric instruments cannot be created.
func New(cfg Config) (*Guard, error) {
	cfg = cfg.withDefaults()
	g := &Guard{config: cfg}

	g.mw = observe.NopMiddleware()
	if cfg.Observer != nil {
		mw, err := observe.MiddlewareFromObserver(cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("guard: telemetry: %w", err)
		}
		g.mw = mw
	}
	g.metrics = g.mw.Metrics()
	g.logger = g.mw.Logger()
	if cfg.Logger != nil {
		g.logger = cfg.Logger
		g.mw = observe.NewMiddleware(g.mw.Tracer(), g.metrics, cfg.Logger)
	}
	g.mw = g.mw.WithOutcome(callOutcome)

	rlCfg := cfg.RateLimit
	if rlCfg.IdleTimeout <= 0 {
		rlCfg.IdleTimeout = cfg.IdleTimeout
	}
	g.limiter = resilience.NewRateLimiter(rlCfg)

	g.breakers = resilience.NewBreakerGroup(resilience.BreakerGroupConfig{
		Breaker:       cfg.Breaker,
		OnStateChange: g.onStateChange,
	})

	retryCfg := cfg.Retry
	userOnRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(ctx context.Context, attempt int, err error, delay time.Duration) {
		g.onRetry(ctx, attempt, err, delay)
		if userOnRetry != nil {
			userOnRetry(ctx, attempt, err, delay)
		}
	}
	g.retry = resilience.NewRetry(retryCfg)

	opts := []resilience.ExecutorOption{
		resilience.WithRateLimiter(g.limiter),
		resilience.WithBreakerGroup(g.breakers),
		resilience.WithRetry(g.retry),
	}
	if cfg.MaxConcurrent > 0 {
		g.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.MaxConcurrentWait,
		})
		opts = append(opts, resilience.WithBulkhead(g.bulkhead))
	}
	if cfg.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(cfg.AttemptTimeout))
	}
	g.executor = resilience.NewExecutor(opts...)

	if !cfg.DisableCache {
		cacheCfg := cfg.Cache
		if cacheCfg.Policy != nil {
			if err := cacheCfg.Policy.Validate(); err != nil {
				return nil, fmt.Errorf("guard: %w", err)
			}
		}
		if cacheCfg.Logger == nil {
			cacheCfg.Logger = observe.Zap(g.logger)
		}
		g.cache = cache.NewManager(cacheCfg)
		loader, err := cache.NewLoader(g.cache, cfg.Keyer)
		if err != nil {
			return nil, fmt.Errorf("guard: cache: %w", err)
		}
		g.loader = loader
	}

	if cfg.Observer != nil {
		reg, err := observe.RegisterGauges(cfg.Observer.Meter(), g)
		if err != nil {
			return nil, fmt.Errorf("guard: gauges: %w", err)
		}
		g.gauges = reg
	}

	return g, nil
}

// Call runs fn on behalf of the caller identified by key.
//
// The layers run in this order: telemetry, cache lookup, rate limit
// admission, bulkhead, the operation's circuit breaker, retry, and the
// per-attempt timeout. A cache hit returns without consuming a token.
// Rate limit and circuit open rejections are returned as
// *resilience.RateLimitError and *resilience.CircuitOpenError without
// calling fn; exhausted retries as *resilience.RetryExhaustedError.
func (g *Guard) Call(ctx context.Context, key string, fn Func, opts ...CallOption) (any, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	co := newCallOptions(opts)
	meta := observe.OperationMeta{Namespace: co.namespace, Name: co.operation, Key: key}

	g.calls.Inc()
	result, err := g.mw.Wrap(func(ctx context.Context, meta observe.OperationMeta) (any, error) {
		return g.call(ctx, meta, co, fn)
	})(ctx, meta)
	if err != nil {
		g.failures.Inc()
	}
	return result, err
}

// Do is Call with a typed result.
func Do[T any](ctx context.Context, g *Guard, key string, fn func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	v, err := g.Call(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrResultType, v, zero)
	}
	return t, nil
}

type metaKey struct{}

func (g *Guard) call(ctx context.Context, meta observe.OperationMeta, co callOptions, fn Func) (any, error) {
	ctx = context.WithValue(ctx, metaKey{}, meta)
	ctx = resilience.WithKey(ctx, meta.Key)
	ctx = resilience.WithOperation(ctx, meta.Name)
	ctx = resilience.WithTokens(ctx, co.tokens)

	load := func(ctx context.Context) (any, error) {
		v, err := g.invoke(ctx, fn)
		g.observeOutcome(ctx, meta, err)
		return v, err
	}

	if g.loader == nil || !co.cached() {
		return load(ctx)
	}

	key, err := g.cacheKey(meta, co)
	if err != nil {
		return nil, err
	}
	v, hit, err := g.loader.ExecuteIf(ctx, key, co.cacheTTL, co.condition, load)
	g.metrics.RecordCacheLookup(ctx, meta, hit)
	if hit {
		g.cacheHits.Inc()
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("guard.cache.hit", true))
	}
	return v, err
}

func (g *Guard) cacheKey(meta observe.OperationMeta, co callOptions) (string, error) {
	key := co.cacheKey
	if key == "" {
		k, err := g.loader.Key(meta.Name, co.cacheArgs)
		if err != nil {
			return "", fmt.Errorf("guard: cache key: %w", err)
		}
		key = k
	}
	if meta.Namespace != "" {
		key = cache.NamespacedKey(meta.Namespace, key)
	}
	return key, nil
}

// invoke runs fn through the executor. An attempt abandoned by the
// per-attempt timeout may still finish later, so the result is guarded.
func (g *Guard) invoke(ctx context.Context, fn Func) (any, error) {
	var (
		mu  sync.Mutex
		out any
	)
	err := g.executor.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		out = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return out, nil
}

// callOutcome labels admission failures as rejections: the remote was
// never called.
func callOutcome(err error) observe.Outcome {
	switch {
	case errors.Is(err, resilience.ErrRateLimitExceeded),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrBulkheadFull):
		return observe.OutcomeRejected
	}
	return observe.DefaultOutcome(err)
}

func (g *Guard) observeOutcome(ctx context.Context, meta observe.OperationMeta, err error) {
	logger := g.logger.WithOperation(meta)

	var rle *resilience.RateLimitError
	switch {
	case errors.As(err, &rle):
		g.rateLimited.Inc()
		g.metrics.RecordRateLimit(ctx, meta, false)
		logger.Warn(ctx, "rate limit exceeded",
			observe.Field{Key: "wait_seconds", Value: rle.Wait.Seconds()},
			observe.Field{Key: "reset_at", Value: rle.ResetAt},
		)
		return
	case errors.Is(err, resilience.ErrTokensExceedBurst):
		return
	}
	g.metrics.RecordRateLimit(ctx, meta, true)

	var (
		coe *resilience.CircuitOpenError
		ree *resilience.RetryExhaustedError
	)
	switch {
	case errors.As(err, &coe):
		g.circuitRejected.Inc()
		logger.Warn(ctx, "circuit open, call rejected",
			observe.Field{Key: "breaker", Value: coe.Name},
			observe.Field{Key: "state", Value: coe.State.String()},
			observe.Field{Key: "retry_after_seconds", Value: coe.RetryAfter.Seconds()},
		)
	case errors.As(err, &ree):
		g.exhausted.Inc()
		logger.Error(ctx, "retries exhausted",
			observe.Field{Key: "attempts", Value: ree.Attempts},
			observe.Field{Key: "kind", Value: ree.Kind.String()},
			observe.Field{Key: "error", Value: ree.Err.Error()},
		)
	}
}

func (g *Guard) onRetry(ctx context.Context, attempt int, err error, delay time.Duration) {
	g.retries.Inc()
	meta, _ := ctx.Value(metaKey{}).(observe.OperationMeta)
	delayMS := float64(delay) / float64(time.Millisecond)

	g.metrics.RecordRetry(ctx, meta, attempt)
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.Int("guard.retry.attempt", attempt),
		attribute.Float64("guard.retry.delay_ms", delayMS),
		attribute.String("guard.error", err.Error()),
	))
	g.logger.WithOperation(meta).Debug(ctx, "retrying guarded call",
		observe.Field{Key: "attempt", Value: attempt},
		observe.Field{Key: "delay_ms", Value: delayMS},
		observe.Field{Key: "error", Value: err.Error()},
	)
}

// onStateChange runs under the breaker's lock.
func (g *Guard) onStateChange(name string, from, to resilience.State) {
	ctx := context.Background()
	g.metrics.RecordBreakerTransition(ctx, name, from.String(), to.String())

	fields := []observe.Field{
		{Key: "breaker", Value: name},
		{Key: "from", Value: from.String()},
		{Key: "to", Value: to.String()},
	}
	if to == resilience.StateOpen {
		g.logger.Warn(ctx, "circuit breaker opened", fields...)
		return
	}
	g.logger.Info(ctx, "circuit breaker state changed", fields...)
}

// Cache returns the guard's cache, or nil when caching is disabled.
func (g *Guard) Cache() *cache.Manager {
	return g.cache
}

// Invalidate drops the cached result of a call made with
// WithCacheKey(key) and, when non-empty, WithCacheNamespace(namespace).
func (g *Guard) Invalidate(ctx context.Context, namespace, key string) bool {
	if g.loader == nil {
		return false
	}
	if namespace != "" {
		key = cache.NamespacedKey(namespace, key)
	}
	return g.loader.Invalidate(ctx, key)
}

// RateLimiter returns the guard's rate limiter.
func (g *Guard) RateLimiter() *resilience.RateLimiter {
	return g.limiter
}

// Breakers returns the guard's per-operation circuit breakers.
func (g *Guard) Breakers() *resilience.BreakerGroup {
	return g.breakers
}
