package resilience

import (
	"context"
	"sync"
)

// Registry is a process-wide name→Breaker map. Dependencies register once
// (typically at startup) and look their breaker up by name thereafter.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	forceMu sync.Mutex
	forced  map[string]bool // true = forced open
}

func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		forced:   make(map[string]bool),
	}
}

// GetOrCreate returns the named breaker, creating it from cfg on first use.
func (r *Registry) GetOrCreate(cfg BreakerConfig) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[cfg.Name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[cfg.Name]; ok {
		return b
	}
	b = NewBreaker(cfg)
	r.breakers[cfg.Name] = b
	return b
}

// Get returns the named breaker and whether it was found.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Stat is one entry of the registry's aggregate stats snapshot.
type Stat struct {
	Name  string
	State BreakerState
	Counts struct {
		Requests, Successes, Failures, ConsecutiveFailures, ConsecutiveSuccesses uint32
	}
}

// Stats returns a snapshot across every registered breaker.
func (r *Registry) Stats() []Stat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stat, 0, len(r.breakers))
	for name, b := range r.breakers {
		c := b.Counts()
		s := Stat{Name: name, State: b.State()}
		s.Counts.Requests = c.Requests
		s.Counts.Successes = c.TotalSuccesses
		s.Counts.Failures = c.TotalFailures
		s.Counts.ConsecutiveFailures = c.ConsecutiveFailures
		s.Counts.ConsecutiveSuccesses = c.ConsecutiveSuccesses
		out = append(out, s)
	}
	return out
}

// ResetAll forces every registered breaker back to CLOSED with cleared
// counters, by rebuilding its underlying state machine.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, b := range r.breakers {
		r.breakers[name] = NewBreaker(b.cfg)
	}
	r.forceMu.Lock()
	r.forced = make(map[string]bool)
	r.forceMu.Unlock()
}

// ForceOpen makes name reject every call until ForceClose or Reset is
// called, independent of the underlying breaker's own counters.
func (r *Registry) ForceOpen(name string) {
	r.forceMu.Lock()
	defer r.forceMu.Unlock()
	r.forced[name] = true
}

// ForceClose clears a manual ForceOpen override for name.
func (r *Registry) ForceClose(name string) {
	r.forceMu.Lock()
	defer r.forceMu.Unlock()
	delete(r.forced, name)
}

// Reset clears a manual override and rebuilds the named breaker's counters.
func (r *Registry) Reset(name string) {
	r.forceMu.Lock()
	delete(r.forced, name)
	r.forceMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		r.breakers[name] = NewBreaker(b.cfg)
	}
}

func (r *Registry) isForced(name string) bool {
	r.forceMu.Lock()
	defer r.forceMu.Unlock()
	return r.forced[name]
}

// Execute runs fn through the named breaker, honoring any manual ForceOpen
// override first.
func (r *Registry) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if r.isForced(name) {
		return ErrOpen
	}
	b, ok := r.Get(name)
	if !ok {
		return ErrUnknownBreaker
	}
	return b.Execute(ctx, fn)
}

var ErrUnknownBreaker = breakerErr("resilience: no breaker registered under that name")

type breakerErr string

func (e breakerErr) Error() string { return string(e) }
