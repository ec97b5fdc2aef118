// Package resilience implements the circuit breaker, retry-with-backoff,
// connection pool and query cache that make up the C6 resilience substrate.
// External DNS and provider calls are routed through these wrappers so the
// scoring pipeline never talks to an unhealthy dependency directly.
package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/inboxsentinel/core/internal/exterrors"
)

// BreakerState mirrors the three states the spec names explicitly; it maps
// 1:1 onto gobreaker.State but keeps the public API independent of the
// vendored type.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerEvent is the snapshot passed to lifecycle hooks.
type BreakerEvent struct {
	Name      string
	From      BreakerState
	To        BreakerState
	At        time.Time
	Consec    uint32
	TotalReq  uint32
	TotalFail uint32
}

// BreakerConfig carries the named, per-dependency thresholds.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	SuccessThreshold uint32
	PerCallTimeout   time.Duration
	ResetTimeout     time.Duration
	OnOpen           func(BreakerEvent)
	OnClose          func(BreakerEvent)
	OnHalfOpen       func(BreakerEvent)
}

func (c *BreakerConfig) setDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.PerCallTimeout == 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 60 * time.Second
	}
}

// ErrOpen is returned by Execute when the breaker is OPEN; the call is
// rejected without invoking fn.
var ErrOpen = errors.New("resilience: circuit breaker open")

// Breaker wraps a *gobreaker.CircuitBreaker with a per-call timeout and the
// named lifecycle hooks the spec calls onOpen/onClose/onHalfOpen.
type Breaker struct {
	cfg BreakerConfig
	cb  *gobreaker.CircuitBreaker
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.setDefaults()
	b := &Breaker{cfg: cfg}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.fireHook(from, to)
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func (b *Breaker) fireHook(from, to gobreaker.State) {
	toState := stateOf(to)
	event := BreakerEvent{
		Name: b.cfg.Name,
		From: stateOf(from),
		To:   toState,
		At:   time.Now(),
	}
	breakerState.WithLabelValues(b.cfg.Name).Set(stateGaugeValue(toState))
	breakerTransitions.WithLabelValues(b.cfg.Name, string(toState)).Inc()
	switch to {
	case gobreaker.StateOpen:
		if b.cfg.OnOpen != nil {
			b.cfg.OnOpen(event)
		}
	case gobreaker.StateClosed:
		if b.cfg.OnClose != nil {
			b.cfg.OnClose(event)
		}
	case gobreaker.StateHalfOpen:
		if b.cfg.OnHalfOpen != nil {
			b.cfg.OnHalfOpen(event)
		}
	}
}

func stateOf(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Execute runs fn under the per-call timeout, bounded by the breaker's
// current state. A timeout is reported to the state machine as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.PerCallTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- fn(callCtx) }()

		select {
		case err := <-done:
			return nil, err
		case <-callCtx.Done():
			return nil, errTimeout
		}
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

var errTimeout = errors.New("resilience: call timed out")

// State reports the breaker's current state, resolving OPEN→HALF_OPEN
// lazily the same way gobreaker does internally on the next Execute/State
// call once resetTimeout has elapsed.
func (b *Breaker) State() BreakerState {
	return stateOf(b.cb.State())
}

// Counts returns the cumulative/consecutive counters backing the state
// machine.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the dependency name this breaker was registered under.
func (b *Breaker) Name() string { return b.cfg.Name }

// IsTransientLookingError applies the same heuristic the retry package uses
// to decide if a failure should count against the breaker as a dependency
// failure versus a caller (validation) error. An error implementing
// exterrors.TemporaryErr (dnsresolve.TempError and friends) is trusted
// directly via exterrors.IsTemporaryOrUnspec; everything else falls back to
// matching transport/DNS-shaped phrases in the error text. Exposed for
// callers that want to pre-filter before calling Execute.
func IsTransientLookingError(err error) bool {
	if err == nil {
		return false
	}
	var temp exterrors.TemporaryErr
	if errors.As(err, &temp) {
		return exterrors.IsTemporaryOrUnspec(err)
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{"timeout", "timed out", "reset", "refused", "no such host", "temporary", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
