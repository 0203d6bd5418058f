package resilience

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of calls in flight.
	// Default: 10
	MaxConcurrent int

	// MaxWait is how long a call may queue for a slot. Zero rejects at once.
	MaxWait time.Duration
}

// Bulkhead caps the number of calls in flight against the remote.
type Bulkhead struct {
	config BulkheadConfig
	slots  *semaphore.Weighted

	active   atomic.Int64
	peak     atomic.Int64
	rejected atomic.Int64
}

// NewBulkhead returns a Bulkhead with MaxConcurrent slots.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		slots:  semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Acquire takes a slot, queueing for at most MaxWait. It returns
// ErrBulkheadFull when none frees up in time, or ctx.Err() when ctx ends
// first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.slots.TryAcquire(1) {
		b.enter()
		return nil
	}
	if b.config.MaxWait <= 0 {
		b.rejected.Inc()
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()
	if err := b.slots.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.rejected.Inc()
		return ErrBulkheadFull
	}
	b.enter()
	return nil
}

// Release frees a slot taken by Acquire. Extra calls are ignored.
func (b *Bulkhead) Release() {
	for {
		n := b.active.Load()
		if n == 0 {
			return
		}
		if b.active.CompareAndSwap(n, n-1) {
			b.slots.Release(1)
			return
		}
	}
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

func (b *Bulkhead) enter() {
	n := b.active.Inc()
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// BulkheadStats is a snapshot of bulkhead usage.
type BulkheadStats struct {
	Active        int   `json:"active"`
	MaxActive     int   `json:"max_active"`
	MaxConcurrent int   `json:"max_concurrent"`
	Rejected      int64 `json:"rejected"`
}

// Stats returns current usage.
func (b *Bulkhead) Stats() BulkheadStats {
	return BulkheadStats{
		Active:        int(b.active.Load()),
		MaxActive:     int(b.peak.Load()),
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected.Load(),
	}
}
