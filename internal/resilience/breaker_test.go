package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	var events []BreakerEvent
	b := NewBreaker(BreakerConfig{
		Name:             "dns",
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		OnOpen:           func(e BreakerEvent) { events = append(events, e) },
	})

	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error { return failing })
		if !errors.Is(err, failing) {
			t.Fatalf("attempt %d: expected underlying error, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected breaker open after %d consecutive failures, got %s", 3, b.State())
	}
	if len(events) != 1 || events[0].To != StateOpen {
		t.Fatalf("expected one onOpen event, got %+v", events)
	}

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestBreaker_PerCallTimeoutCountsAsFailure(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:             "slow",
		FailureThreshold: 1,
		PerCallTimeout:   10 * time.Millisecond,
		ResetTimeout:     time.Minute,
	})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected breaker to trip on timeout, got %s", b.State())
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:             "recover",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		ResetTimeout:     20 * time.Millisecond,
	})

	failing := errors.New("down")
	_ = b.Execute(context.Background(), func(ctx context.Context) error { return failing })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected half-open probe to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected breaker closed after successful probe, got %s", b.State())
	}
}

func TestIsTransientLookingError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("invalid recipient address"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsTransientLookingError(c.err); got != c.want {
			t.Errorf("IsTransientLookingError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
