package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PooledConn is a connection lifecycle handle; any client type the pool
// manages (SQL, Redis, provider HTTP client, ...) implements this the way
// maddy's own internal/smtpconn/pool.Conn interface does.
type PooledConn interface {
	Usable() bool
	Close() error
}

// PoolConfig configures a ConnectionPool.
type PoolConfig struct {
	Name                string
	Min                 int
	Max                 int
	AcquireTimeout      time.Duration
	IdleTimeout         time.Duration
	HealthCheckInterval time.Duration
	New                 func(ctx context.Context) (PooledConn, error)
}

func (c *PoolConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Max <= 0 {
		c.Max = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
}

// ConnectionTimeoutError is returned by Acquire when no connection becomes
// available before AcquireTimeout, carrying a stats snapshot for diagnosis.
type ConnectionTimeoutError struct {
	Stats PoolStats
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("resilience: connection acquire timed out (total=%d idle=%d waiters=%d)", e.Stats.Total, e.Stats.Idle, e.Stats.Waiters)
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Total   int
	Idle    int
	Active  int
	Waiters int
}

type entry struct {
	id       uint64
	conn     PooledConn
	lastUsed time.Time
}

// ConnectionPool is a min/max-bounded pool with FIFO waiters, idle eviction
// and a background health sweep, grounded on the teacher's channel-backed
// internal/smtpconn/pool.P but generalized to a single unkeyed pool with
// acquire timeouts and drain support as the spec requires.
type ConnectionPool struct {
	cfg PoolConfig

	mu       sync.Mutex
	idle     []*entry
	tracked  map[uint64]*entry
	waiters  []chan *entry
	total    int
	draining bool

	nextID uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewConnectionPool(cfg PoolConfig) *ConnectionPool {
	cfg.setDefaults()
	return &ConnectionPool{
		cfg:     cfg,
		tracked: make(map[uint64]*entry),
	}
}

// Run warms the pool to Min connections and starts the background health
// sweep. Safe to call at most once.
func (p *ConnectionPool) Run(ctx context.Context) error {
	for i := 0; i < p.cfg.Min; i++ {
		e, err := p.newEntry(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.idle = append(p.idle, e)
		p.mu.Unlock()
	}

	p.stop = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.cfg.HealthCheckInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.PruneIdle()
			case <-p.stop:
				return
			}
		}
	}()
	return nil
}

func (p *ConnectionPool) newEntry(ctx context.Context) (*entry, error) {
	conn, err := p.cfg.New(ctx)
	if err != nil {
		return nil, err
	}
	id := atomic.AddUint64(&p.nextID, 1)
	e := &entry{id: id, conn: conn, lastUsed: time.Now()}
	p.mu.Lock()
	p.tracked[id] = e
	p.total++
	p.mu.Unlock()
	return e, nil
}

// Acquire returns an idle healthy connection, creates one if under Max, or
// waits FIFO for a release until AcquireTimeout elapses.
func (p *ConnectionPool) Acquire(ctx context.Context) (PooledConn, uint64, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, 0, fmt.Errorf("resilience: pool is draining")
	}

	for len(p.idle) > 0 {
		e := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !e.conn.Usable() {
			p.removeTracked(e.id)
			continue
		}
		p.mu.Unlock()
		poolInUse.WithLabelValues(p.cfg.Name).Inc()
		return e.conn, e.id, nil
	}

	if p.total < p.cfg.Max {
		p.mu.Unlock()
		e, err := p.newEntry(ctx)
		if err != nil {
			return nil, 0, err
		}
		poolInUse.WithLabelValues(p.cfg.Name).Inc()
		return e.conn, e.id, nil
	}

	wait := make(chan *entry, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case e := <-wait:
		if e == nil {
			return nil, 0, fmt.Errorf("resilience: pool is draining")
		}
		// Handed off by Release without a decrement: still counted in use.
		return e.conn, e.id, nil
	case <-timer.C:
		return nil, 0, &ConnectionTimeoutError{Stats: p.Stats()}
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// Release hands conn off to the next FIFO waiter or returns it to idle.
func (p *ConnectionPool) Release(id uint64) {
	p.mu.Lock()
	e, ok := p.tracked[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.lastUsed = time.Now()

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		// handed directly to the next waiter, still in use
		w <- e
		return
	}

	p.idle = append(p.idle, e)
	p.mu.Unlock()
	poolInUse.WithLabelValues(p.cfg.Name).Dec()
}

// MarkUnhealthy removes id from the pool entirely instead of returning it
// to idle; the caller must not use the connection again.
func (p *ConnectionPool) MarkUnhealthy(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.tracked[id]; ok {
		e.conn.Close()
	}
	p.removeTracked(id)
	for i, ie := range p.idle {
		if ie.id == id {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	poolInUse.WithLabelValues(p.cfg.Name).Dec()
}

// removeTracked must be called with mu held.
func (p *ConnectionPool) removeTracked(id uint64) {
	if _, ok := p.tracked[id]; ok {
		delete(p.tracked, id)
		p.total--
	}
}

// PruneIdle evicts idle connections older than IdleTimeout while keeping at
// least Min connections total.
func (p *ConnectionPool) PruneIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	kept := p.idle[:0]
	for _, e := range p.idle {
		if p.total > p.cfg.Min && now.Sub(e.lastUsed) > p.cfg.IdleTimeout {
			e.conn.Close()
			p.removeTracked(e.id)
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
}

// Drain blocks new acquirers, rejects pending waiters, and waits up to
// timeout for active connections to be released before clearing the pool.
func (p *ConnectionPool) Drain(timeout time.Duration) {
	p.mu.Lock()
	p.draining = true
	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil
	if p.stop != nil {
		close(p.stop)
	}
	p.mu.Unlock()

	p.wg.Wait()

	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		active := p.total - len(p.idle)
		p.mu.Unlock()
		if active <= 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	for _, e := range p.idle {
		e.conn.Close()
	}
	p.idle = nil
	p.tracked = make(map[uint64]*entry)
	p.total = 0
	p.mu.Unlock()
}

// Stats returns a point-in-time occupancy snapshot.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Total:   p.total,
		Idle:    len(p.idle),
		Active:  p.total - len(p.idle),
		Waiters: len(p.waiters),
	}
}

// WithConnection acquires a connection, runs fn, and guarantees release or
// MarkUnhealthy on every exit path.
func (p *ConnectionPool) WithConnection(ctx context.Context, fn func(conn PooledConn) error) error {
	conn, id, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	fnErr := fn(conn)
	if !conn.Usable() {
		p.MarkUnhealthy(id)
	} else {
		p.Release(id)
	}
	return fnErr
}
