package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryError wraps the last error from a retry loop that exhausted
// maxAttempts, carrying how many attempts were made.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("resilience: retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryHooks are invoked around each attempt; all are optional.
type RetryHooks struct {
	OnAttempt func(attempt int, err error)
	OnGiveUp  func(attempts int, err error)
	OnSuccess func(attempt int)
}

// RetryConfig configures Retry. BaseDelay/MaxDelay feed a
// backoff.ExponentialBackOff with multiplier 2, matching delay(n) =
// min(maxDelay, baseDelay*2^(n-1)); Jitter turns on the backoff library's
// own randomization of each computed interval.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	ShouldRetry func(error) bool
	Hooks       RetryHooks
}

func (c *RetryConfig) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = DefaultShouldRetry
	}
}

// DefaultShouldRetry matches HTTP 429/5xx-shaped and socket reset/timeout/
// DNS/network phrases in the error text, the same heuristic the breaker
// exposes as IsTransientLookingError.
func DefaultShouldRetry(err error) bool {
	return IsTransientLookingError(err)
}

// Retry runs fn up to cfg.MaxAttempts times on a cenkalti/backoff/v5
// exponential schedule. An abort signal (ctx) cancels an in-progress wait
// immediately; on final exhaustion the last error is wrapped in a
// RetryError carrying the attempt count.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.setDefaults()

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		err := fn(ctx)
		if err == nil {
			if cfg.Hooks.OnSuccess != nil {
				cfg.Hooks.OnSuccess(attempts)
			}
			return struct{}{}, nil
		}

		if cfg.Hooks.OnAttempt != nil {
			cfg.Hooks.OnAttempt(attempts, err)
		}
		if !cfg.ShouldRetry(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if cfg.Jitter {
		b.RandomizationFactor = 0.5
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
	)
	if err != nil {
		if cfg.Hooks.OnGiveUp != nil {
			cfg.Hooks.OnGiveUp(attempts, err)
		}
		return &RetryError{Attempts: attempts, Err: err}
	}
	return nil
}
