package dr

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthState is the failover manager's view of the primary endpoint.
type HealthState string

const (
	HealthHealthy        HealthState = "healthy"
	HealthPrimaryFailing HealthState = "primary_failing"
	HealthFailedOver     HealthState = "failed_over"
)

// FailoverEvent records one state transition for the retained history.
type FailoverEvent struct {
	At   time.Time
	From HealthState
	To   HealthState
	Note string
}

// HealthCheckFunc probes the primary endpoint; a non-nil error counts as a
// failed check.
type HealthCheckFunc func(ctx context.Context) error

// SwitchoverFunc performs the actual cutover between two endpoint
// identifiers.
type SwitchoverFunc func(ctx context.Context, from, to string) error

// FailoverConfig configures a FailoverManager.
type FailoverConfig struct {
	Primary           string
	Secondary         string
	FailoverThreshold int
	CheckInterval     time.Duration
	HealthCheck       HealthCheckFunc
	Switchover        SwitchoverFunc
}

func (c *FailoverConfig) setDefaults() {
	if c.FailoverThreshold <= 0 {
		c.FailoverThreshold = 3
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
}

// FailoverManager periodically probes the primary endpoint's health and
// automatically switches traffic to the secondary once consecutive
// failures cross FailoverThreshold.
type FailoverManager struct {
	cfg FailoverConfig

	mu                  sync.Mutex
	state               HealthState
	active              string
	consecutiveFailures int
	history             []FailoverEvent

	stop chan struct{}
}

func NewFailoverManager(cfg FailoverConfig) *FailoverManager {
	cfg.setDefaults()
	return &FailoverManager{
		cfg:    cfg,
		state:  HealthHealthy,
		active: cfg.Primary,
	}
}

// CheckHealth runs one health probe and updates state. A threshold-th
// consecutive failure marks PRIMARY_FAILING; the very next failure (after
// the manager is already PRIMARY_FAILING) triggers automatic failover.
func (f *FailoverManager) CheckHealth(ctx context.Context) error {
	err := f.cfg.HealthCheck(ctx)

	f.mu.Lock()
	if err == nil {
		if f.consecutiveFailures > 0 || f.state == HealthPrimaryFailing {
			f.transition(HealthHealthy, "primary recovered")
		}
		f.consecutiveFailures = 0
		f.mu.Unlock()
		return nil
	}

	f.consecutiveFailures++
	wasFailing := f.state == HealthPrimaryFailing
	if f.consecutiveFailures >= f.cfg.FailoverThreshold && f.state != HealthPrimaryFailing {
		f.transition(HealthPrimaryFailing, fmt.Sprintf("consecutive failures: %d", f.consecutiveFailures))
	}
	triggerFailover := wasFailing && f.state != HealthFailedOver
	f.mu.Unlock()

	if triggerFailover {
		return f.Failover(ctx)
	}
	return nil
}

// Failover performs an automatic (or forced) cutover from primary to
// secondary.
func (f *FailoverManager) Failover(ctx context.Context) error {
	f.mu.Lock()
	from, to := f.active, f.cfg.Secondary
	f.mu.Unlock()

	if err := f.cfg.Switchover(ctx, from, to); err != nil {
		return fmt.Errorf("dr: switchover failed: %w", err)
	}

	f.mu.Lock()
	f.active = to
	f.transition(HealthFailedOver, fmt.Sprintf("failed over from %s to %s", from, to))
	f.mu.Unlock()
	return nil
}

// Failback switches traffic back to the primary once it is healthy again;
// it errors if the primary is still unhealthy.
func (f *FailoverManager) Failback(ctx context.Context) error {
	if err := f.cfg.HealthCheck(ctx); err != nil {
		return fmt.Errorf("dr: primary still unhealthy, refusing failback: %w", err)
	}

	f.mu.Lock()
	from := f.active
	f.mu.Unlock()

	if err := f.cfg.Switchover(ctx, from, f.cfg.Primary); err != nil {
		return fmt.Errorf("dr: failback switchover failed: %w", err)
	}

	f.mu.Lock()
	f.active = f.cfg.Primary
	f.consecutiveFailures = 0
	f.transition(HealthHealthy, "failback to primary")
	f.mu.Unlock()
	return nil
}

// transition must be called with mu held.
func (f *FailoverManager) transition(to HealthState, note string) {
	f.history = append(f.history, FailoverEvent{At: time.Now(), From: f.state, To: to, Note: note})
	f.state = to
	if to == HealthFailedOver {
		failoverState.Set(1)
	} else {
		failoverState.Set(0)
	}
}

// State returns the current health state and active endpoint.
func (f *FailoverManager) State() (HealthState, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.active
}

// History returns a copy of every recorded transition.
func (f *FailoverManager) History() []FailoverEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FailoverEvent, len(f.history))
	copy(out, f.history)
	return out
}

// Run starts the periodic health-check loop; it blocks until ctx is
// cancelled or Stop is called.
func (f *FailoverManager) Run(ctx context.Context) {
	f.mu.Lock()
	f.stop = make(chan struct{})
	stop := f.stop
	f.mu.Unlock()

	t := time.NewTicker(f.cfg.CheckInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = f.CheckHealth(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (f *FailoverManager) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
}
