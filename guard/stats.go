package guard

import (
	"github.com/jonwraymond/callguard/cache"
	"github.com/jonwraymond/callguard/resilience"
)

// Stats is a snapshot of guard activity.
type Stats struct {
	Calls            int64 `json:"calls"`
	Failures         int64 `json:"failures"`
	CacheHits        int64 `json:"cache_hits"`
	RateLimited      int64 `json:"rate_limited"`
	CircuitRejected  int64 `json:"circuit_rejected"`
	Retries          int64 `json:"retries"`
	RetriesExhausted int64 `json:"retries_exhausted"`

	// Cache is nil when caching is disabled.
	Cache  *cache.Stats      `json:"cache,omitempty"`
	Loader cache.LoaderStats `json:"loader"`

	RateLimiter resilience.RateLimiterStats                `json:"rate_limiter"`
	Breakers    map[string]resilience.CircuitBreakerStatus `json:"breakers"`

	// Bulkhead is nil unless MaxConcurrent is set.
	Bulkhead *resilience.BulkheadStats `json:"bulkhead,omitempty"`
}

// Stats returns counters and component state. Each component is read
// under its own lock, so the snapshot is not atomic across components.
func (g *Guard) Stats() Stats {
	s := Stats{
		Calls:            g.calls.Load(),
		Failures:         g.failures.Load(),
		CacheHits:        g.cacheHits.Load(),
		RateLimited:      g.rateLimited.Load(),
		CircuitRejected:  g.circuitRejected.Load(),
		Retries:          g.retries.Load(),
		RetriesExhausted: g.exhausted.Load(),
		RateLimiter:      g.limiter.Stats(),
		Breakers:         g.breakers.Statuses(),
	}
	if g.cache != nil {
		cs := g.cache.Stats()
		s.Cache = &cs
		s.Loader = g.loader.Stats()
	}
	if g.bulkhead != nil {
		bs := g.bulkhead.Stats()
		s.Bulkhead = &bs
	}
	return s
}

// CacheEntries reports the number of cached entries.
func (g *Guard) CacheEntries() int64 {
	if g.cache == nil {
		return 0
	}
	return int64(g.cache.Len())
}

// ActiveBuckets reports the number of live rate limit buckets.
func (g *Guard) ActiveBuckets() int64 {
	return int64(len(g.limiter.Keys()))
}

// OpenBreakers reports the number of breakers in the open state.
func (g *Guard) OpenBreakers() int64 {
	var n int64
	for _, st := range g.breakers.Statuses() {
		if st.State == resilience.StateOpen {
			n++
		}
	}
	return n
}
