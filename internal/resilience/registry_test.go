package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_GetOrCreateReusesBreaker(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate(BreakerConfig{Name: "redis"})
	b := r.GetOrCreate(BreakerConfig{Name: "redis", FailureThreshold: 99})
	if a != b {
		t.Fatal("expected GetOrCreate to return the same breaker instance for a known name")
	}
	if b.cfg.FailureThreshold == 99 {
		t.Fatal("expected second call's cfg to be ignored once the breaker already exists")
	}
}

func TestRegistry_ForceOpenRejectsWithoutTrippingUnderlying(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate(BreakerConfig{Name: "provider", FailureThreshold: 5})
	r.ForceOpen("provider")

	err := r.Execute(context.Background(), "provider", func(ctx context.Context) error {
		t.Fatal("fn must not run while forced open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	r.ForceClose("provider")
	err = r.Execute(context.Background(), "provider", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected call to pass after ForceClose, got %v", err)
	}
}

func TestRegistry_ExecuteUnknownBreaker(t *testing.T) {
	r := NewRegistry()
	err := r.Execute(context.Background(), "missing", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrUnknownBreaker) {
		t.Fatalf("expected ErrUnknownBreaker, got %v", err)
	}
}

func TestRegistry_ResetAllClearsStateAndOverrides(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate(BreakerConfig{Name: "dns", FailureThreshold: 1, ResetTimeout: time.Minute})
	r.ForceOpen("dns")
	_ = r.Execute(context.Background(), "dns", func(ctx context.Context) error { return errors.New("boom") })

	r.ResetAll()

	b, ok := r.Get("dns")
	if !ok {
		t.Fatal("expected breaker to survive ResetAll")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected breaker closed after ResetAll, got %s", b.State())
	}
	err := r.Execute(context.Background(), "dns", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected forced-open override to be cleared by ResetAll, got %v", err)
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate(BreakerConfig{Name: "a"})
	r.GetOrCreate(BreakerConfig{Name: "b"})
	_ = r.Execute(context.Background(), "a", func(ctx context.Context) error { return nil })

	stats := r.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 stats entries, got %d", len(stats))
	}
}
