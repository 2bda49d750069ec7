package dbpool

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is an open session with the backing resource. The pool only
// requires the ability to close it; everything else is between the caller and
// the backing resource.
type Connection interface {
	Close() error
}

// Pinger is implemented by backing connections that can check their own
// liveness. The health check and [Pool.Ping] use it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Factory opens one backing connection or fails with a driver-specific error.
type Factory func(ctx context.Context) (Connection, error)

// Pool is a concurrency-safe pool of connections to a single backing
// resource. Acquire and Release may be called from any goroutine. The
// bookkeeping lock is never held during backing-connection I/O.
type Pool struct {
	config  *Config
	factory Factory

	acquireTracer AcquireTracer
	releaseTracer ReleaseTracer
	connectTracer ConnectTracer
	closeTracer   CloseTracer

	mux          sync.Mutex
	idle         []*poolConn // LIFO; the tail was used most recently
	inUse        map[*Conn]struct{}
	constructing int32
	waiters      *list.List // of *waiter, FIFO
	closed       bool
	drainChan    chan struct{} // non-nil while Close waits out in-use conns

	acquireCount         int64
	acquireDuration      time.Duration
	emptyAcquireCount    int64
	canceledAcquireCount int64
	newConnsCount        int64
	maxIdleDestroyCount  int64

	healthCheckChan chan struct{}
	closeChan       chan struct{}
	closeOnce       sync.Once
}

// waiter is parked by an Acquire that found the pool exhausted. Release hands
// a connection directly to the oldest waiter, freshly checked out under the
// handle the waiter will own; a nil send tells the waiter to re-examine the
// pool because capacity was freed or the pool closed.
type waiter struct {
	ch     chan *Conn
	queued bool // guarded by Pool.mux
}

// New creates a [Pool] from connString and opens MinConns connections before
// returning. See [ParseConfig] for the connection string format.
func New(ctx context.Context, connString string) (*Pool, error) {
	config, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	return NewWithConfig(ctx, config)
}

// NewWithConfig creates a [Pool]. config must have been created by
// [ParseConfig].
func NewWithConfig(ctx context.Context, config *Config) (*Pool, error) {
	// Default values are set in ParseConfig. Enforce initial creation by
	// ParseConfig rather than setting defaults from zero values.
	if !config.createdByParseConfig {
		panic("config must be created by ParseConfig")
	}

	p := &Pool{
		config:          config,
		factory:         config.Factory,
		inUse:           make(map[*Conn]struct{}),
		waiters:         list.New(),
		healthCheckChan: make(chan struct{}, 1),
		closeChan:       make(chan struct{}),
	}
	if p.factory == nil {
		p.factory = defaultFactory(config)
	}

	if t := config.Tracer; t != nil {
		p.acquireTracer = t
		if rt, ok := t.(ReleaseTracer); ok {
			p.releaseTracer = rt
		}
		if ct, ok := t.(ConnectTracer); ok {
			p.connectTracer = ct
		}
		if ct, ok := t.(CloseTracer); ok {
			p.closeTracer = ct
		}
	}

	for i := int32(0); i < config.MinConns; i++ {
		conn, err := p.openConnection(ctx)
		if err != nil {
			// Leave nothing half-open behind.
			for _, res := range p.idle {
				res.status = connStatusClosed
				_ = res.conn.Close()
			}
			p.idle = nil
			p.closed = true
			return nil, err
		}
		res := p.newPoolConn(conn)
		res.status = connStatusIdle
		res.idleSince = time.Now()
		p.idle = append(p.idle, res)
	}

	go p.backgroundHealthCheck()

	return p, nil
}

func (p *Pool) newPoolConn(conn Connection) *poolConn {
	p.newConnsCount++
	return &poolConn{
		conn: conn,
		id:   uuid.New(),
	}
}

// checkOutLocked issues a fresh handle for res and records it as in use.
// p.mux must be held.
func (p *Pool) checkOutLocked(res *poolConn) *Conn {
	res.status = connStatusInUse
	c := &Conn{pool: p, res: res}
	p.inUse[c] = struct{}{}
	return c
}

// openConnection invokes the factory with connect tracing. Errors are wrapped
// in *ConnectError.
func (p *Pool) openConnection(ctx context.Context) (Connection, error) {
	if p.connectTracer != nil {
		ctx = p.connectTracer.TraceConnectStart(ctx, TraceConnectStartData{Config: p.config})
	}

	conn, err := p.factory(ctx)
	if err != nil {
		conn = nil
		err = &ConnectError{Config: p.config, err: err}
	}

	if p.connectTracer != nil {
		p.connectTracer.TraceConnectEnd(ctx, TraceConnectEndData{Conn: conn, Err: err})
	}

	return conn, err
}

// Config returns a copy of config that was used to create this pool.
func (p *Pool) Config() *Config { return p.config.Copy() }

// Acquire returns a connection from the pool. The caller owns the connection
// until it is passed to [Pool.Release] or [Conn.Release], exactly once.
//
// If the pool is exhausted Acquire waits until a connection is released, a
// deadline expires, or ctx is canceled. Deadline expiry, whether from the
// configured AcquireTimeout or from ctx itself, fails with ErrAcquireTimeout;
// cancellation surfaces as ctx.Err(). Abandoning the wait never leaks a
// reservation.
func (p *Pool) Acquire(ctx context.Context) (c *Conn, err error) {
	if p.acquireTracer != nil {
		ctx = p.acquireTracer.TraceAcquireStart(ctx, p, TraceAcquireStartData{})
		defer func() {
			p.acquireTracer.TraceAcquireEnd(ctx, p, TraceAcquireEndData{Conn: c, Err: err})
		}()
	}

	if err := ctx.Err(); err != nil {
		p.countCanceledAcquire()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrAcquireTimeout
		}
		return nil, err
	}

	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	startTime := time.Now()
	waited := false

	for {
		p.mux.Lock()

		if p.closed {
			p.mux.Unlock()
			return nil, ErrClosedPool
		}

		// Fast path: reuse the most recently returned idle connection.
		if n := len(p.idle); n > 0 {
			res := p.idle[n-1]
			p.idle = p.idle[:n-1]
			c := p.checkOutLocked(res)
			p.countAcquireLocked(startTime, waited)
			p.mux.Unlock()
			return c, nil
		}

		// Below capacity: open a new connection. The slot is reserved via
		// constructing so concurrent acquires cannot overshoot MaxConns.
		if p.totalLocked() < p.config.MaxConns {
			p.constructing++
			p.mux.Unlock()

			conn, err := p.openConnection(ctx)

			p.mux.Lock()
			p.constructing--
			if err != nil {
				// The failed attempt does not count against capacity; let the
				// next waiter try instead.
				p.signalWaiterLocked()
				p.signalDrainedLocked()
				p.mux.Unlock()
				return nil, err
			}
			if p.closed {
				p.signalDrainedLocked()
				p.mux.Unlock()
				_ = conn.Close()
				return nil, ErrClosedPool
			}
			c := p.checkOutLocked(p.newPoolConn(conn))
			p.countAcquireLocked(startTime, waited)
			p.mux.Unlock()
			return c, nil
		}

		// Exhausted: park until a connection comes back.
		w := &waiter{ch: make(chan *Conn, 1), queued: true}
		elem := p.waiters.PushBack(w)
		p.mux.Unlock()
		waited = true

		select {
		case c := <-w.ch:
			if c == nil {
				// Capacity freed or pool closed; re-examine the pool.
				continue
			}
			p.mux.Lock()
			p.countAcquireLocked(startTime, waited)
			p.mux.Unlock()
			return c, nil
		case <-ctx.Done():
			p.mux.Lock()
			if w.queued {
				p.waiters.Remove(elem)
				w.queued = false
				p.canceledAcquireCount++
				p.mux.Unlock()
			} else {
				p.canceledAcquireCount++
				p.mux.Unlock()
				// A value was already committed to us; take it and put any
				// delivered connection back so it is not lost.
				if c := <-w.ch; c != nil {
					_ = p.Release(c)
				}
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrAcquireTimeout
			}
			return nil, ctx.Err()
		}
	}
}

// totalLocked is the number of connections the pool currently owns or is in
// the middle of opening. p.mux must be held.
func (p *Pool) totalLocked() int32 {
	return int32(len(p.idle)) + int32(len(p.inUse)) + p.constructing
}

func (p *Pool) countAcquireLocked(startTime time.Time, waited bool) {
	p.acquireCount++
	p.acquireDuration += time.Since(startTime)
	if waited {
		p.emptyAcquireCount++
	}
}

func (p *Pool) countCanceledAcquire() {
	p.mux.Lock()
	p.canceledAcquireCount++
	p.mux.Unlock()
}

// popWaiterLocked removes and returns the oldest waiter, or nil. p.mux must
// be held.
func (p *Pool) popWaiterLocked() *waiter {
	e := p.waiters.Front()
	if e == nil {
		return nil
	}
	w := p.waiters.Remove(e).(*waiter)
	w.queued = false
	return w
}

// signalWaiterLocked wakes the oldest waiter so it can retry now that
// capacity was freed. p.mux must be held.
func (p *Pool) signalWaiterLocked() {
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- nil
	}
}

// signalDrainedLocked wakes Close once the last outstanding connection has
// been accounted for. p.mux must be held.
func (p *Pool) signalDrainedLocked() {
	if p.drainChan != nil && int32(len(p.inUse))+p.constructing == 0 {
		close(p.drainChan)
		p.drainChan = nil
	}
}

// Release returns a previously acquired connection to the pool.
//
// Releasing a connection that was not acquired from this pool, or releasing
// the same connection twice, fails with ErrInvalidRelease. Releasing to a
// closed pool discards the connection and reports no error. An invalidated
// connection is destroyed instead of returned to the idle set.
func (p *Pool) Release(c *Conn) error {
	if c == nil || c.pool != p {
		return ErrInvalidRelease
	}

	p.mux.Lock()

	if p.closed {
		if _, ok := p.inUse[c]; ok {
			delete(p.inUse, c)
			c.res.status = connStatusClosed
			p.signalDrainedLocked()
			p.mux.Unlock()
			_ = c.res.conn.Close()
			p.traceRelease(c, true)
			return nil
		}
		p.mux.Unlock()
		return nil
	}

	if _, ok := p.inUse[c]; !ok {
		p.mux.Unlock()
		return ErrInvalidRelease
	}
	delete(p.inUse, c)
	res := c.res

	if res.broken {
		res.status = connStatusClosed
		p.signalWaiterLocked()
		p.mux.Unlock()
		_ = res.conn.Close()
		p.triggerHealthCheck()
		p.traceRelease(c, true)
		return nil
	}

	if w := p.popWaiterLocked(); w != nil {
		// Hand the connection straight to the oldest waiter under a fresh
		// handle; the released handle is inert from here on.
		w.ch <- p.checkOutLocked(res)
		p.mux.Unlock()
		p.traceRelease(c, false)
		return nil
	}

	res.status = connStatusIdle
	res.idleSince = time.Now()
	p.idle = append(p.idle, res)
	p.mux.Unlock()
	p.traceRelease(c, false)
	return nil
}

func (p *Pool) traceRelease(c *Conn, destroyed bool) {
	if p.releaseTracer != nil {
		p.releaseTracer.TraceRelease(p, TraceReleaseData{Conn: c, Destroyed: destroyed})
	}
}

// Ping acquires a connection, checks its liveness if the backing connection
// implements [Pinger], and releases it. A connection that fails its ping is
// invalidated so it is destroyed on release.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	pinger, ok := c.Conn().(Pinger)
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		c.Invalidate()
		return err
	}
	return nil
}

// Reset closes all connections, but leaves the pool open. Idle connections
// are closed immediately; checked-out connections keep working until
// released, at which point they are destroyed instead of pooled.
func (p *Pool) Reset() {
	p.mux.Lock()
	idle := p.idle
	p.idle = nil
	for _, res := range idle {
		res.status = connStatusClosed
	}
	for c := range p.inUse {
		c.res.broken = true
	}
	p.mux.Unlock()

	for _, res := range idle {
		_ = res.conn.Close()
	}

	p.triggerHealthCheck()
}

// Close closes all connections in the pool and rejects future Acquire calls
// with ErrClosedPool. It blocks until all in-use connections are returned or
// ShutdownGrace elapses, whichever comes first; stragglers are then closed
// forcibly. Close is safe to call multiple times.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		var closeErrs []error

		p.mux.Lock()
		p.closed = true
		for {
			w := p.popWaiterLocked()
			if w == nil {
				break
			}
			w.ch <- nil
		}
		idle := p.idle
		p.idle = nil
		for _, res := range idle {
			res.status = connStatusClosed
		}
		var drained chan struct{}
		if int32(len(p.inUse))+p.constructing > 0 {
			drained = make(chan struct{})
			p.drainChan = drained
		}
		p.mux.Unlock()

		close(p.closeChan)

		for _, res := range idle {
			if err := res.conn.Close(); err != nil {
				closeErrs = append(closeErrs, err)
			}
		}

		if drained != nil {
			timer := time.NewTimer(p.config.ShutdownGrace)
			select {
			case <-drained:
				timer.Stop()
			case <-timer.C:
				// Grace period over; reclaim whatever is still out. The
				// handles become stale and their release is a no-op.
				p.mux.Lock()
				p.drainChan = nil
				var force []*poolConn
				for c := range p.inUse {
					delete(p.inUse, c)
					c.res.status = connStatusClosed
					force = append(force, c.res)
				}
				p.mux.Unlock()
				for _, res := range force {
					if err := res.conn.Close(); err != nil {
						closeErrs = append(closeErrs, err)
					}
				}
			}
		}

		if p.closeTracer != nil {
			p.closeTracer.TraceClose(p, TraceCloseData{Err: errors.Join(closeErrs...)})
		}
	})
}

// triggerHealthCheck runs the health check soon without waiting for the next
// HealthCheckPeriod tick.
func (p *Pool) triggerHealthCheck() {
	select {
	case p.healthCheckChan <- struct{}{}:
	default:
	}
}

func (p *Pool) backgroundHealthCheck() {
	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeChan:
			return
		case <-ticker.C:
		case <-p.healthCheckChan:
		}

		p.checkIdleConnsHealth()
		p.checkMinConns()
	}
}

// checkIdleConnsHealth closes connections that have been idle longer than
// MaxConnIdleTime, never shrinking the pool below MinConns. The oldest idle
// connections sit at the front of the slice.
func (p *Pool) checkIdleConnsHealth() {
	if p.config.MaxConnIdleTime <= 0 {
		return
	}

	cutoff := time.Now().Add(-p.config.MaxConnIdleTime)

	p.mux.Lock()
	var destroy []*poolConn
	for len(p.idle) > 0 && p.totalLocked() > p.config.MinConns && p.idle[0].idleSince.Before(cutoff) {
		res := p.idle[0]
		p.idle = p.idle[1:]
		res.status = connStatusClosed
		p.maxIdleDestroyCount++
		destroy = append(destroy, res)
	}
	p.mux.Unlock()

	for _, res := range destroy {
		_ = res.conn.Close()
	}
}

// checkMinConns opens connections until the pool owns at least MinConns.
// Factory failures are swallowed; the next health check tick retries.
func (p *Pool) checkMinConns() {
	for {
		p.mux.Lock()
		if p.closed || p.totalLocked() >= p.config.MinConns {
			p.mux.Unlock()
			return
		}
		p.constructing++
		p.mux.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), p.config.HealthCheckPeriod)
		conn, err := p.openConnection(ctx)
		cancel()

		p.mux.Lock()
		p.constructing--
		if err != nil {
			p.signalDrainedLocked()
			p.mux.Unlock()
			return
		}
		if p.closed {
			p.signalDrainedLocked()
			p.mux.Unlock()
			_ = conn.Close()
			return
		}
		res := p.newPoolConn(conn)
		if w := p.popWaiterLocked(); w != nil {
			w.ch <- p.checkOutLocked(res)
		} else {
			res.status = connStatusIdle
			res.idleSince = time.Now()
			p.idle = append(p.idle, res)
		}
		p.mux.Unlock()
	}
}
