package guard

import (
	"context"
	"strconv"
	"testing"
)

func benchGuard(b *testing.B) *Guard {
	b.Helper()
	cfg := DefaultConfig()
	cfg.RateLimit.RequestsPerMinute = 1 << 30
	cfg.RateLimit.Burst = 1 << 30
	g, err := New(cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = g.Close() })
	return g
}

func BenchmarkCall_NoCache(b *testing.B) {
	g := benchGuard(b)
	ctx := context.Background()
	fn := func(ctx context.Context) (any, error) { return 1, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Call(ctx, "user", fn)
	}
}

func BenchmarkCall_CacheHit(b *testing.B) {
	g := benchGuard(b)
	ctx := context.Background()
	fn := func(ctx context.Context) (any, error) { return 1, nil }
	_, _ = g.Call(ctx, "user", fn, WithCacheKey("k"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Call(ctx, "user", fn, WithCacheKey("k"))
	}
}

func BenchmarkCall_ParallelKeys(b *testing.B) {
	g := benchGuard(b)
	fn := func(ctx context.Context) (any, error) { return 1, nil }

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		i := 0
		for pb.Next() {
			_, _ = g.Call(ctx, "user-"+strconv.Itoa(i%64), fn)
			i++
		}
	})
}
