package dr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestFailoverManager_TriggersAfterThresholdPlusOne(t *testing.T) {
	var healthy int32 // 0 = unhealthy
	var switchoverCalls int32
	fm := NewFailoverManager(FailoverConfig{
		Primary:           "primary",
		Secondary:         "secondary",
		FailoverThreshold: 2,
		HealthCheck: func(ctx context.Context) error {
			if atomic.LoadInt32(&healthy) == 1 {
				return nil
			}
			return errors.New("down")
		},
		Switchover: func(ctx context.Context, from, to string) error {
			atomic.AddInt32(&switchoverCalls, 1)
			return nil
		},
	})

	// 1st failure: below threshold.
	_ = fm.CheckHealth(context.Background())
	if state, _ := fm.State(); state != HealthHealthy {
		t.Fatalf("expected still healthy after 1 failure, got %s", state)
	}

	// 2nd failure: reaches threshold, marks PRIMARY_FAILING, no failover yet.
	_ = fm.CheckHealth(context.Background())
	if state, _ := fm.State(); state != HealthPrimaryFailing {
		t.Fatalf("expected primary_failing after reaching threshold, got %s", state)
	}
	if atomic.LoadInt32(&switchoverCalls) != 0 {
		t.Fatal("expected no switchover yet")
	}

	// 3rd failure: the next failure after PRIMARY_FAILING triggers failover.
	_ = fm.CheckHealth(context.Background())
	state, active := fm.State()
	if state != HealthFailedOver {
		t.Fatalf("expected failed_over, got %s", state)
	}
	if active != "secondary" {
		t.Fatalf("expected active endpoint to be secondary, got %s", active)
	}
	if atomic.LoadInt32(&switchoverCalls) != 1 {
		t.Fatalf("expected exactly 1 switchover call, got %d", switchoverCalls)
	}
}

func TestFailoverManager_RecoversOnHealthySignal(t *testing.T) {
	var shouldFail int32 = 1
	fm := NewFailoverManager(FailoverConfig{
		Primary:           "primary",
		Secondary:         "secondary",
		FailoverThreshold: 2,
		HealthCheck: func(ctx context.Context) error {
			if atomic.LoadInt32(&shouldFail) == 1 {
				return errors.New("down")
			}
			return nil
		},
		Switchover: func(ctx context.Context, from, to string) error { return nil },
	})

	// Two consecutive failures reach FailoverThreshold.
	_ = fm.CheckHealth(context.Background())
	_ = fm.CheckHealth(context.Background())
	if state, _ := fm.State(); state != HealthPrimaryFailing {
		t.Fatalf("expected primary_failing, got %s", state)
	}

	atomic.StoreInt32(&shouldFail, 0)
	_ = fm.CheckHealth(context.Background())
	if state, _ := fm.State(); state != HealthHealthy {
		t.Fatalf("expected recovery to healthy, got %s", state)
	}
}

func TestFailoverManager_FailbackFailsWhilePrimaryUnhealthy(t *testing.T) {
	fm := NewFailoverManager(FailoverConfig{
		Primary:   "primary",
		Secondary: "secondary",
		HealthCheck: func(ctx context.Context) error {
			return errors.New("still down")
		},
		Switchover: func(ctx context.Context, from, to string) error { return nil },
	})

	if err := fm.Failback(context.Background()); err == nil {
		t.Fatal("expected Failback to fail while primary is unhealthy")
	}
}

func TestFailoverManager_FailbackSucceedsWhenPrimaryHealthy(t *testing.T) {
	fm := NewFailoverManager(FailoverConfig{
		Primary:   "primary",
		Secondary: "secondary",
		HealthCheck: func(ctx context.Context) error {
			return nil
		},
		Switchover: func(ctx context.Context, from, to string) error { return nil },
	})
	fm.active = "secondary"
	fm.state = HealthFailedOver

	if err := fm.Failback(context.Background()); err != nil {
		t.Fatalf("Failback: %v", err)
	}
	state, active := fm.State()
	if state != HealthHealthy || active != "primary" {
		t.Fatalf("expected healthy/primary after failback, got %s/%s", state, active)
	}
}

func TestFailoverManager_HistoryRetained(t *testing.T) {
	fm := NewFailoverManager(FailoverConfig{
		Primary:           "primary",
		Secondary:         "secondary",
		FailoverThreshold: 1,
		HealthCheck:       func(ctx context.Context) error { return errors.New("down") },
		Switchover:        func(ctx context.Context, from, to string) error { return nil },
	})
	_ = fm.CheckHealth(context.Background())
	_ = fm.CheckHealth(context.Background())

	hist := fm.History()
	if len(hist) == 0 {
		t.Fatal("expected history entries to be retained")
	}
}
