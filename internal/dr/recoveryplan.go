package dr

import (
	"context"
	"time"
)

// Step is one action in a RecoveryPlan.
type Step struct {
	Name     string
	Action   func(ctx context.Context) error
	Rollback func(ctx context.Context) error
	Timeout  time.Duration
	Critical bool
}

// StepResult records one step's outcome within a PlanResult.
type StepResult struct {
	Name       string
	Success    bool
	Err        error
	RolledBack bool
	Duration   time.Duration
}

// PlanResult is returned by RecoveryPlan.Execute.
type PlanResult struct {
	Success  bool
	Duration time.Duration
	Steps    []StepResult
	RTOMet   bool
}

// RecoveryPlan runs an ordered sequence of steps, each racing its own
// timeout; a failing critical step stops the plan, a failing non-critical
// step is recorded and execution continues.
type RecoveryPlan struct {
	Name  string
	Steps []Step
	RTO   time.Duration
}

// ExecuteOptions configures Execute.
type ExecuteOptions struct {
	RollbackOnFailure bool
}

// Execute runs the plan's steps sequentially. When RollbackOnFailure is set
// and a critical step fails, previously-completed steps' Rollback handlers
// run in reverse order on a best-effort basis (errors are swallowed).
func (p *RecoveryPlan) Execute(ctx context.Context, opts ExecuteOptions) PlanResult {
	start := time.Now()
	result := PlanResult{Success: true}

	var completed []Step

	for _, step := range p.Steps {
		stepStart := time.Now()
		err := runWithTimeout(ctx, step.Timeout, step.Action)
		sr := StepResult{
			Name:     step.Name,
			Success:  err == nil,
			Err:      err,
			Duration: time.Since(stepStart),
		}
		result.Steps = append(result.Steps, sr)

		if err == nil {
			completed = append(completed, step)
			continue
		}

		if step.Critical {
			result.Success = false
			if opts.RollbackOnFailure {
				rollback(ctx, completed, result.Steps)
			}
			break
		}
		// non-critical failure: recorded, plan continues.
	}

	result.Duration = time.Since(start)
	if p.RTO > 0 {
		result.RTOMet = result.Duration <= p.RTO
	} else {
		result.RTOMet = true
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	} else if !result.RTOMet {
		outcome = "rto_missed"
	}
	recoveryPlanDuration.WithLabelValues(outcome).Observe(result.Duration.Seconds())

	return result
}

func runWithTimeout(ctx context.Context, timeout time.Duration, action func(ctx context.Context) error) error {
	if timeout <= 0 {
		return action(ctx)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- action(stepCtx) }()

	select {
	case err := <-done:
		return err
	case <-stepCtx.Done():
		return stepCtx.Err()
	}
}

// rollback runs completed steps' Rollback handlers in reverse order,
// marking the corresponding StepResult.RolledBack and swallowing errors.
func rollback(ctx context.Context, completed []Step, results []StepResult) {
	byName := make(map[string]*StepResult, len(results))
	for i := range results {
		byName[results[i].Name] = &results[i]
	}

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Rollback == nil {
			continue
		}
		_ = step.Rollback(ctx)
		if sr, ok := byName[step.Name]; ok {
			sr.RolledBack = true
		}
	}
}
