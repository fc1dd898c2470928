package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/snmp/client"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("poller: pool closed")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// PoolOptions configures the connection pool behaviour.
type PoolOptions struct {
	// MaxIdlePerDevice is the maximum number of idle sessions kept per device
	// (default 1). Excess sessions returned via Put are closed immediately.
	MaxIdlePerDevice int

	// IdleTimeout is how long an idle session remains in the pool before being
	// discarded. Zero means no expiry.
	IdleTimeout time.Duration

	// Dial creates new sessions. Defaults to NewSession.
	Dial func(models.Device) (*gosnmp.GoSNMP, error)
}

func (o *PoolOptions) defaults() {
	if o.MaxIdlePerDevice <= 0 {
		o.MaxIdlePerDevice = 1
	}
	if o.Dial == nil {
		o.Dial = NewSession
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection pool
// ─────────────────────────────────────────────────────────────────────────────

type poolEntry struct {
	conn       *gosnmp.GoSNMP
	returnedAt time.Time
}

// devicePool is the per-device idle list and concurrency semaphore.
type devicePool struct {
	mu   sync.Mutex
	idle []poolEntry // LIFO

	// sem holds one slot per session checked out. Its capacity is
	// Device.MaxConcurrentPolls, 1 by default, so a device sees a single
	// outstanding request at a time.
	sem chan struct{}
}

// ConnectionPool manages gosnmp sessions keyed by device hostname.
type ConnectionPool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu    sync.RWMutex
	pools map[string]*devicePool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnectionPool creates a ready-to-use pool.
func NewConnectionPool(opts PoolOptions, logger *slog.Logger) *ConnectionPool {
	opts.defaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &ConnectionPool{
		opts:   opts,
		logger: logger,
		pools:  make(map[string]*devicePool),
		closed: make(chan struct{}),
	}
}

// Get acquires a session for dev. It blocks while the device's concurrency
// limit is reached and honours ctx.
func (p *ConnectionPool) Get(ctx context.Context, dev models.Device) (*gosnmp.GoSNMP, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}
	dp := p.getOrCreatePool(dev.Hostname, dev.MaxConcurrentPolls)

	select {
	case dp.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	}

	if conn := p.popIdle(dp); conn != nil {
		return conn, nil
	}
	conn, err := p.opts.Dial(dev)
	if err != nil {
		<-dp.sem
		return nil, err
	}
	return conn, nil
}

// Put returns a session for reuse and releases its slot. Sessions beyond
// MaxIdlePerDevice are closed.
func (p *ConnectionPool) Put(hostname string, conn *gosnmp.GoSNMP) {
	dp := p.getPool(hostname)
	if dp == nil {
		closeConn(conn)
		return
	}
	defer func() { <-dp.sem }()

	select {
	case <-p.closed:
		closeConn(conn)
		return
	default:
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.idle) >= p.opts.MaxIdlePerDevice {
		closeConn(conn)
		return
	}
	dp.idle = append(dp.idle, poolEntry{conn: conn, returnedAt: time.Now()})
}

// Discard closes a session known to be broken and releases its slot.
func (p *ConnectionPool) Discard(hostname string, conn *gosnmp.GoSNMP) {
	closeConn(conn)
	if dp := p.getPool(hostname); dp != nil {
		<-dp.sem
	}
}

// Acquire implements SessionSource. release puts the session back when
// healthy and discards it otherwise.
func (p *ConnectionPool) Acquire(ctx context.Context, dev models.Device) (client.Session, func(healthy bool), error) {
	conn, err := p.Get(ctx, dev)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	release := func(healthy bool) {
		once.Do(func() {
			if healthy {
				p.Put(dev.Hostname, conn)
			} else {
				p.Discard(dev.Hostname, conn)
			}
		})
	}
	return conn, release, nil
}

// Close drains all idle sessions and fails subsequent Get calls.
func (p *ConnectionPool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.mu.Lock()
		defer p.mu.Unlock()
		for host, dp := range p.pools {
			dp.mu.Lock()
			for _, e := range dp.idle {
				closeConn(e.conn)
			}
			p.logger.Debug("poller: pool drained", "device", host, "idle", len(dp.idle))
			dp.idle = nil
			dp.mu.Unlock()
		}
	})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (p *ConnectionPool) getOrCreatePool(hostname string, maxConcurrent int) *devicePool {
	p.mu.RLock()
	dp, ok := p.pools[hostname]
	p.mu.RUnlock()
	if ok {
		return dp
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if dp, ok = p.pools[hostname]; ok {
		return dp
	}
	dp = &devicePool{
		idle: make([]poolEntry, 0, p.opts.MaxIdlePerDevice),
		sem:  make(chan struct{}, maxConcurrent),
	}
	p.pools[hostname] = dp
	return dp
}

func (p *ConnectionPool) getPool(hostname string) *devicePool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pools[hostname]
}

func (p *ConnectionPool) popIdle(dp *devicePool) *gosnmp.GoSNMP {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	for len(dp.idle) > 0 {
		n := len(dp.idle) - 1
		entry := dp.idle[n]
		dp.idle = dp.idle[:n]

		if p.opts.IdleTimeout > 0 && time.Since(entry.returnedAt) > p.opts.IdleTimeout {
			closeConn(entry.conn)
			continue
		}
		return entry.conn
	}
	return nil
}

func closeConn(conn *gosnmp.GoSNMP) {
	if conn != nil && conn.Conn != nil {
		_ = conn.Conn.Close()
	}
}

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
