package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreakerGroup_PerOperation(t *testing.T) {
	g := NewBreakerGroup(BreakerGroupConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute},
	})

	ctxA := WithOperation(context.Background(), "users.get")
	ctxB := WithOperation(context.Background(), "orders.list")

	_ = g.Execute(ctxA, failing)

	if err := g.Execute(ctxA, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("users.get = %v, want ErrCircuitOpen", err)
	}
	if err := g.Execute(ctxB, succeeding); err != nil {
		t.Errorf("orders.list error = %v", err)
	}

	names := g.Names()
	if len(names) != 2 || names[0] != "orders.list" || names[1] != "users.get" {
		t.Errorf("Names() = %v", names)
	}
}

func TestBreakerGroup_DefaultOperation(t *testing.T) {
	g := NewBreakerGroup(BreakerGroupConfig{})

	_ = g.Execute(context.Background(), succeeding)

	if got := g.Get("").Name(); got != DefaultOperation {
		t.Errorf("Name = %q, want %q", got, DefaultOperation)
	}
	if g.Get(DefaultOperation) != g.Get("") {
		t.Error("empty name should map to the default breaker")
	}
}

func TestBreakerGroup_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var got []string

	g := NewBreakerGroup(BreakerGroupConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1},
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			got = append(got, name+":"+from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	_ = g.Execute(WithOperation(context.Background(), "disks"), failing)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "disks:closed->open" {
		t.Errorf("transitions = %v", got)
	}
}

func TestBreakerGroup_StatusesAndReset(t *testing.T) {
	g := NewBreakerGroup(BreakerGroupConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1},
	})
	_ = g.Execute(WithOperation(context.Background(), "a"), failing)
	_ = g.Execute(WithOperation(context.Background(), "b"), succeeding)

	statuses := g.Statuses()
	if statuses["a"].State != StateOpen {
		t.Errorf("a = %v, want open", statuses["a"].State)
	}
	if statuses["b"].State != StateClosed {
		t.Errorf("b = %v, want closed", statuses["b"].State)
	}

	if !g.Reset("a") {
		t.Error("Reset(a) = false, want true")
	}
	if g.Reset("missing") {
		t.Error("Reset(missing) = true, want false")
	}
	if g.Get("a").State() != StateClosed {
		t.Errorf("a after reset = %v, want closed", g.Get("a").State())
	}

	_ = g.Execute(WithOperation(context.Background(), "b"), failing)
	g.ResetAll()
	if g.Get("b").State() != StateClosed {
		t.Errorf("b after ResetAll = %v, want closed", g.Get("b").State())
	}
}

func TestBreakerGroup_CleanupIdle(t *testing.T) {
	clock := newFakeClock()
	g := NewBreakerGroup(BreakerGroupConfig{
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour, Now: clock.Now},
	})

	_ = g.Execute(WithOperation(context.Background(), "idle"), succeeding)
	_ = g.Execute(WithOperation(context.Background(), "tripped"), failing)
	clock.Advance(10 * time.Minute)
	_ = g.Execute(WithOperation(context.Background(), "busy"), succeeding)

	if removed := g.CleanupIdle(5 * time.Minute); removed != 1 {
		t.Errorf("CleanupIdle() = %d, want 1", removed)
	}

	names := g.Names()
	if len(names) != 2 || names[0] != "busy" || names[1] != "tripped" {
		t.Errorf("Names() = %v, want [busy tripped]", names)
	}
}
