// Package guard composes the resilience and cache packages into a single
// guarded call for clients of a remote service.
//
// A call passes through the layers in a fixed order:
//
//	telemetry -> cache -> rate limit -> bulkhead -> circuit breaker -> retry -> attempt timeout -> fn
//
// A cache hit skips every layer after it. Rate limit and circuit open
// rejections fail immediately without calling fn. The breaker records the
// outcome of the whole retry loop, so one exhausted call is one failure.
//
// # Usage
//
//	g, err := guard.New(guard.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	g.Start(ctx)
//	defer g.Close()
//
//	user, err := guard.Do(ctx, g, callerID, func(ctx context.Context) (*User, error) {
//	    return client.GetUser(ctx, id)
//	},
//	    guard.WithOperation("users.get"),
//	    guard.WithCacheArgs(map[string]any{"id": id}),
//	    guard.WithCacheTTL(time.Minute),
//	)
package guard
