// Package batch implements parallelMap and the chunked BatchProcessor (C8),
// grounded on the fan-out/errgroup pattern the teacher uses in
// check/dnsbl.DNSBL.checkLists to run independent lookups concurrently and
// collect their results under a single lock.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FailurePolicy selects how ParallelMap reacts to a per-item error.
type FailurePolicy int

const (
	// StopOnError aborts and returns the first error encountered; other
	// in-flight items are allowed to finish but their results are not
	// collected into a partial success.
	StopOnError FailurePolicy = iota
	// CollectErrors runs every item to completion and returns every error
	// in an *Errors, never aborting early.
	CollectErrors
	// FailFast is the default: the first error returned is propagated as
	// a bare error, same as StopOnError but callers needn't type-assert.
	FailFast
)

// ParallelMapOptions configures ParallelMap.
type ParallelMapOptions struct {
	Concurrency   int
	CollectErrors bool
	StopOnError   bool
}

func (o *ParallelMapOptions) policy() FailurePolicy {
	switch {
	case o.CollectErrors:
		return CollectErrors
	case o.StopOnError:
		return StopOnError
	default:
		return FailFast
	}
}

// Errors collects every per-item error under CollectErrors, indexed by the
// item's position in the input slice.
type Errors struct {
	ByIndex map[int]error
}

func (e *Errors) Error() string {
	return "batch: one or more items failed"
}

// ParallelMap runs fn on each item with at most Concurrency in flight,
// preserving input order in the returned slice. FailFast/StopOnError start
// no new item once one item errors, wait for the items already in flight,
// and return the first error (results for items never started are left
// zero-valued); CollectErrors always runs every item and returns every
// failure via *Errors.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts ParallelMapOptions) ([]R, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = len(items)
		if opts.Concurrency == 0 {
			opts.Concurrency = 1
		}
	}
	policy := opts.policy()

	results := make([]R, len(items))
	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		errs     = &Errors{ByIndex: make(map[int]error)}
	)

	for i, item := range items {
		if policy != CollectErrors {
			mu.Lock()
			stop := firstErr != nil
			mu.Unlock()
			if stop {
				break
			}
		}

		if err := sem.Acquire(runCtx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)

			r, err := fn(ctx, item)
			if err != nil {
				mu.Lock()
				errs.ByIndex[i] = err
				if firstErr == nil {
					firstErr = err
					if policy != CollectErrors {
						cancel()
					}
				}
				mu.Unlock()
				return
			}
			results[i] = r
		}(i, item)
	}

	wg.Wait()

	if policy == CollectErrors {
		if len(errs.ByIndex) > 0 {
			return results, errs
		}
		return results, nil
	}

	if firstErr != nil {
		return results, firstErr
	}
	return results, nil
}
