package dbpool

import (
	"time"

	"github.com/google/uuid"
)

const (
	connStatusIdle = iota
	connStatusInUse
	connStatusClosed
	connStatusHijacked
)

// poolConn is a pooled backing connection together with its bookkeeping
// state. status, broken and idleSince are guarded by Pool.mux.
type poolConn struct {
	conn Connection
	id   uuid.UUID

	status    byte
	broken    bool
	idleSince time.Time
}

// Conn is an acquired connection handle. A fresh handle is issued for every
// checkout of a backing connection, so a handle is owned by exactly one
// caller between Acquire and Release and is inert afterwards, even if the
// backing connection has since been handed to another caller.
type Conn struct {
	pool *Pool
	res  *poolConn
}

// Conn returns the underlying backing connection.
func (c *Conn) Conn() Connection { return c.res.conn }

// ID identifies the backing connection for its lifetime. It is stable across
// repeated acquire/release cycles of the same connection.
func (c *Conn) ID() uuid.UUID { return c.res.id }

// Release returns c to the pool it was acquired from. See [Pool.Release].
func (c *Conn) Release() error {
	return c.pool.Release(c)
}

// Invalidate marks the backing connection as broken, for example after an
// I/O error. The pool destroys it on release instead of returning it to the
// idle set, and the health check opens a replacement to maintain MinConns.
// Invalidating an already released handle has no effect.
func (c *Conn) Invalidate() {
	p := c.pool

	p.mux.Lock()
	if _, ok := p.inUse[c]; ok {
		c.res.broken = true
	}
	p.mux.Unlock()
}

// Hijack assumes ownership of the backing connection from the pool. The
// caller is responsible for closing it. The freed pool slot becomes available
// to other acquirers immediately.
//
// Hijack returns nil if c is not currently acquired, including after a
// release or on a closed pool.
func (c *Conn) Hijack() Connection {
	p := c.pool

	p.mux.Lock()
	if _, ok := p.inUse[c]; !ok {
		p.mux.Unlock()
		return nil
	}
	delete(p.inUse, c)
	c.res.status = connStatusHijacked
	p.signalWaiterLocked()
	p.signalDrainedLocked()
	p.mux.Unlock()

	return c.res.conn
}
