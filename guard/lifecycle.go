package guard

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/jonwraymond/callguard/observe"
)

// Start launches the cache sweep and the janitor that drops idle rate
// limit buckets and breakers. Both stop when ctx is done or Close is
// called. Starting a running guard is a no-op.
func (g *Guard) Start(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if g.stop != nil || g.closed {
		return
	}
	if g.cache != nil {
		g.cache.Start(ctx)
	}

	stop := make(chan struct{})
	g.stop = stop
	g.wg.Add(1)
	go g.janitor(ctx, stop)
}

// Close stops the background goroutines, waits for them, and unregisters
// the guard's gauges. Calls made after Close still work without
// background maintenance.
func (g *Guard) Close() error {
	g.runMu.Lock()
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
	alreadyClosed := g.closed
	g.closed = true
	g.runMu.Unlock()

	g.wg.Wait()
	if alreadyClosed {
		return nil
	}

	var err error
	if g.cache != nil {
		err = multierr.Append(err, g.cache.Close())
	}
	if g.gauges != nil {
		err = multierr.Append(err, g.gauges.Unregister())
	}
	return err
}

func (g *Guard) janitor(ctx context.Context, stop <-chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			g.Cleanup()
		}
	}
}

// Cleanup drops rate limit buckets and closed breakers unused for longer
// than IdleTimeout. It returns how many of each were dropped.
func (g *Guard) Cleanup() (buckets, breakers int) {
	buckets = g.limiter.CleanupInactive(g.config.IdleTimeout)
	breakers = g.breakers.CleanupIdle(g.config.IdleTimeout)
	if buckets > 0 || breakers > 0 {
		g.logger.Debug(context.Background(), "dropped idle guard state",
			observe.Field{Key: "buckets", Value: buckets},
			observe.Field{Key: "breakers", Value: breakers},
		)
	}
	return buckets, breakers
}
