package dr

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecoveryPlan_AllStepsSucceed(t *testing.T) {
	var ran []string
	plan := &RecoveryPlan{
		Name: "full-restore",
		Steps: []Step{
			{Name: "restore-db", Action: func(ctx context.Context) error { ran = append(ran, "restore-db"); return nil }, Critical: true},
			{Name: "warm-cache", Action: func(ctx context.Context) error { ran = append(ran, "warm-cache"); return nil }},
		},
		RTO: time.Minute,
	}

	result := plan.Execute(context.Background(), ExecuteOptions{})
	if !result.Success {
		t.Fatal("expected overall success")
	}
	if !result.RTOMet {
		t.Fatal("expected RTO to be met")
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(result.Steps))
	}
	if len(ran) != 2 {
		t.Fatalf("expected both steps to run, got %v", ran)
	}
}

func TestRecoveryPlan_CriticalFailureStopsPlan(t *testing.T) {
	var ran []string
	plan := &RecoveryPlan{
		Steps: []Step{
			{Name: "step1", Action: func(ctx context.Context) error { ran = append(ran, "step1"); return nil }, Critical: true},
			{Name: "step2", Action: func(ctx context.Context) error { return errors.New("boom") }, Critical: true},
			{Name: "step3", Action: func(ctx context.Context) error { ran = append(ran, "step3"); return nil }},
		},
	}

	result := plan.Execute(context.Background(), ExecuteOptions{})
	if result.Success {
		t.Fatal("expected plan failure")
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected execution to stop after the critical failure, got %d step results", len(result.Steps))
	}
	for _, s := range ran {
		if s == "step3" {
			t.Fatal("step3 should not have run after critical failure")
		}
	}
}

func TestRecoveryPlan_NonCriticalFailureContinues(t *testing.T) {
	plan := &RecoveryPlan{
		Steps: []Step{
			{Name: "optional", Action: func(ctx context.Context) error { return errors.New("skippable") }},
			{Name: "final", Action: func(ctx context.Context) error { return nil }, Critical: true},
		},
	}

	result := plan.Execute(context.Background(), ExecuteOptions{})
	if !result.Success {
		t.Fatal("expected plan to succeed overall despite the non-critical failure")
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected both steps recorded, got %d", len(result.Steps))
	}
	if result.Steps[0].Success {
		t.Fatal("expected the optional step to be recorded as failed")
	}
	if !result.Steps[1].Success {
		t.Fatal("expected the final step to run and succeed")
	}
}

func TestRecoveryPlan_StepTimeoutCountsAsFailure(t *testing.T) {
	plan := &RecoveryPlan{
		Steps: []Step{
			{
				Name:    "slow",
				Timeout: 10 * time.Millisecond,
				Action: func(ctx context.Context) error {
					select {
					case <-time.After(time.Second):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				},
				Critical: true,
			},
		},
	}

	result := plan.Execute(context.Background(), ExecuteOptions{})
	if result.Success {
		t.Fatal("expected timeout to fail the critical step")
	}
	if result.Steps[0].Err == nil {
		t.Fatal("expected a recorded timeout error")
	}
}

func TestRecoveryPlan_RollbackOnFailureRunsReverseOrder(t *testing.T) {
	var rolledBack []string
	plan := &RecoveryPlan{
		Steps: []Step{
			{
				Name:     "step1",
				Action:   func(ctx context.Context) error { return nil },
				Rollback: func(ctx context.Context) error { rolledBack = append(rolledBack, "step1"); return nil },
				Critical: true,
			},
			{
				Name:     "step2",
				Action:   func(ctx context.Context) error { return nil },
				Rollback: func(ctx context.Context) error { rolledBack = append(rolledBack, "step2"); return nil },
				Critical: true,
			},
			{
				Name:     "step3",
				Action:   func(ctx context.Context) error { return errors.New("fatal") },
				Critical: true,
			},
		},
	}

	result := plan.Execute(context.Background(), ExecuteOptions{RollbackOnFailure: true})
	if result.Success {
		t.Fatal("expected plan failure")
	}
	if len(rolledBack) != 2 || rolledBack[0] != "step2" || rolledBack[1] != "step1" {
		t.Fatalf("expected reverse-order rollback of step2 then step1, got %v", rolledBack)
	}

	var s1, s2 *StepResult
	for i := range result.Steps {
		switch result.Steps[i].Name {
		case "step1":
			s1 = &result.Steps[i]
		case "step2":
			s2 = &result.Steps[i]
		}
	}
	if s1 == nil || !s1.RolledBack || s2 == nil || !s2.RolledBack {
		t.Fatal("expected step1 and step2 to be marked RolledBack")
	}
}

func TestRecoveryPlan_RTONotMetWhenDurationExceedsRTO(t *testing.T) {
	plan := &RecoveryPlan{
		Steps: []Step{
			{Name: "slow", Action: func(ctx context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			}},
		},
		RTO: 5 * time.Millisecond,
	}

	result := plan.Execute(context.Background(), ExecuteOptions{})
	if result.RTOMet {
		t.Fatal("expected RTO to be missed")
	}
}
