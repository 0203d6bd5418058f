package resilience

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultOperation is the breaker used when a call names no operation.
const DefaultOperation = "default"

// BreakerGroupConfig configures a BreakerGroup.
type BreakerGroupConfig struct {
	// Breaker is the template for every breaker in the group. Name and
	// OnStateChange are set per breaker.
	Breaker CircuitBreakerConfig

	// OnStateChange is called with the breaker name on every transition.
	OnStateChange func(name string, from, to State)
}

// BreakerGroup holds one circuit breaker per operation class, created on
// first use.
type BreakerGroup struct {
	config BreakerGroupConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerGroup creates an empty breaker group.
func NewBreakerGroup(config BreakerGroupConfig) *BreakerGroup {
	if config.Breaker.Now == nil {
		config.Breaker.Now = time.Now
	}
	return &BreakerGroup{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it if needed.
func (g *BreakerGroup) Get(name string) *CircuitBreaker {
	if name == "" {
		name = DefaultOperation
	}

	g.mu.RLock()
	cb, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[name]; ok {
		return cb
	}

	cfg := g.config.Breaker
	cfg.Name = name
	if g.config.OnStateChange != nil {
		onChange := g.config.OnStateChange
		cfg.OnStateChange = func(from, to State) { onChange(name, from, to) }
	}
	cb = NewCircuitBreaker(cfg)
	g.breakers[name] = cb
	return cb
}

// Execute runs op through the breaker named by the operation in ctx.
func (g *BreakerGroup) Execute(ctx context.Context, op func(context.Context) error) error {
	return g.Get(OperationFromContext(ctx)).Execute(ctx, op)
}

// Names returns the names of all live breakers, sorted.
func (g *BreakerGroup) Names() []string {
	g.mu.RLock()
	names := make([]string, 0, len(g.breakers))
	for name := range g.breakers {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Statuses returns the status of every live breaker.
func (g *BreakerGroup) Statuses() map[string]CircuitBreakerStatus {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	statuses := make(map[string]CircuitBreakerStatus, len(breakers))
	for _, cb := range breakers {
		statuses[cb.Name()] = cb.Status()
	}
	return statuses
}

// Reset forces the named breaker closed. It reports whether it existed.
func (g *BreakerGroup) Reset(name string) bool {
	g.mu.RLock()
	cb, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		cb.Reset()
	}
	return ok
}

// ResetAll forces every breaker closed.
func (g *BreakerGroup) ResetAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, cb := range g.breakers {
		cb.Reset()
	}
}

// CleanupIdle drops closed, failure-free breakers unused for longer than
// threshold and returns how many were dropped.
func (g *BreakerGroup) CleanupIdle(threshold time.Duration) int {
	cutoff := g.config.Breaker.Now().Add(-threshold)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for name, cb := range g.breakers {
		if cb.idleSince(cutoff) {
			delete(g.breakers, name)
			removed++
		}
	}
	return removed
}
