package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	id      int32
	healthy int32
}

func (c *fakeConn) Usable() bool { return atomic.LoadInt32(&c.healthy) == 1 }
func (c *fakeConn) Close() error { atomic.StoreInt32(&c.healthy, 0); return nil }

func newFakePoolConfig(min, max int) (*PoolConfig, *int32) {
	var created int32
	cfg := &PoolConfig{
		Min: min,
		Max: max,
		New: func(ctx context.Context) (PooledConn, error) {
			id := atomic.AddInt32(&created, 1)
			return &fakeConn{id: id, healthy: 1}, nil
		},
	}
	return cfg, &created
}

func TestConnectionPool_WarmsToMin(t *testing.T) {
	cfg, created := newFakePoolConfig(2, 5)
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	if atomic.LoadInt32(created) != 2 {
		t.Fatalf("expected 2 connections created at warmup, got %d", *created)
	}
	stats := p.Stats()
	if stats.Total != 2 || stats.Idle != 2 {
		t.Fatalf("unexpected stats after warmup: %+v", stats)
	}
}

func TestConnectionPool_AcquireReleaseReusesIdle(t *testing.T) {
	cfg, created := newFakePoolConfig(0, 2)
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	conn, id, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(id)

	_, _, err = p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if atomic.LoadInt32(created) != 1 {
		t.Fatalf("expected the released connection to be reused, got %d created", *created)
	}
	_ = conn
}

func TestConnectionPool_AcquireTimeoutWhenExhausted(t *testing.T) {
	cfg, _ := newFakePoolConfig(0, 1)
	cfg.AcquireTimeout = 20 * time.Millisecond
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	_, _, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, _, err = p.Acquire(context.Background())
	var timeoutErr *ConnectionTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ConnectionTimeoutError, got %v", err)
	}
}

func TestConnectionPool_WaiterReceivesReleasedConnection(t *testing.T) {
	cfg, _ := newFakePoolConfig(0, 1)
	cfg.AcquireTimeout = time.Second
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	_, firstID, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var waiterErr error
	go func() {
		defer wg.Done()
		_, _, waiterErr = p.Acquire(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	p.Release(firstID)
	wg.Wait()

	if waiterErr != nil {
		t.Fatalf("expected waiter to receive the released connection, got %v", waiterErr)
	}
}

func TestConnectionPool_MarkUnhealthyDropsConnection(t *testing.T) {
	cfg, created := newFakePoolConfig(0, 2)
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	_, id, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.MarkUnhealthy(id)

	if p.Stats().Total != 0 {
		t.Fatalf("expected pool total 0 after MarkUnhealthy, got %d", p.Stats().Total)
	}

	_, _, err = p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after MarkUnhealthy: %v", err)
	}
	if atomic.LoadInt32(created) != 2 {
		t.Fatalf("expected a fresh connection after unhealthy drop, got %d created", *created)
	}
}

func TestConnectionPool_WithConnectionReleasesOnSuccess(t *testing.T) {
	cfg, _ := newFakePoolConfig(0, 1)
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer p.Drain(time.Second)

	err := p.WithConnection(context.Background(), func(conn PooledConn) error { return nil })
	if err != nil {
		t.Fatalf("WithConnection: %v", err)
	}
	if p.Stats().Idle != 1 {
		t.Fatalf("expected connection returned to idle, got stats %+v", p.Stats())
	}
}

func TestConnectionPool_DrainRejectsNewAcquires(t *testing.T) {
	cfg, _ := newFakePoolConfig(1, 2)
	p := NewConnectionPool(*cfg)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	p.Drain(time.Second)

	_, _, err := p.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected Acquire to fail once the pool is draining")
	}
}
