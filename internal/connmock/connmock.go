// Package connmock provides a scriptable connection factory for testing
// connection pools without a real backing resource.
package connmock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bilb0bagg1ns/dbpool"
)

// Conn is a fake backing connection. It records whether it has been closed
// and can be primed to fail pings or closes.
type Conn struct {
	// PingErr is returned by Ping.
	PingErr error
	// CloseErr is returned by the first Close.
	CloseErr error

	mu     sync.Mutex
	closed bool
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connmock: connection already closed")
	}
	c.closed = true
	return c.CloseErr
}

func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connmock: connection closed")
	}
	return c.PingErr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Step produces the outcome of one factory invocation.
type Step func(ctx context.Context) (*Conn, error)

// Open succeeds with a fresh connection.
func Open() Step {
	return func(ctx context.Context) (*Conn, error) {
		return &Conn{}, nil
	}
}

// OpenConn succeeds with the given connection.
func OpenConn(c *Conn) Step {
	return func(ctx context.Context) (*Conn, error) {
		return c, nil
	}
}

// FailOpen fails with err.
func FailOpen(err error) Step {
	return func(ctx context.Context) (*Conn, error) {
		return nil, err
	}
}

// Delay waits for d before running step, honoring ctx cancellation like a
// slow network dial would.
func Delay(d time.Duration, step Step) Step {
	return func(ctx context.Context) (*Conn, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		return step(ctx)
	}
}

// Script runs queued steps for each factory invocation in order. When the
// queue is empty every invocation behaves like Open. The zero value is ready
// to use.
type Script struct {
	mu     sync.Mutex
	steps  []Step
	opened int
	conns  []*Conn
}

// Push appends steps to the queue.
func (s *Script) Push(steps ...Step) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
}

// Factory returns a dbpool.Factory driven by the script.
func (s *Script) Factory() dbpool.Factory {
	return func(ctx context.Context) (dbpool.Connection, error) {
		s.mu.Lock()
		step := Open()
		if len(s.steps) > 0 {
			step = s.steps[0]
			s.steps = s.steps[1:]
		}
		s.mu.Unlock()

		conn, err := step(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.opened++
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		return conn, nil
	}
}

// Opened returns the number of successfully opened connections.
func (s *Script) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Conns returns all successfully opened connections in open order.
func (s *Script) Conns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Conn(nil), s.conns...)
}

// OpenConns returns the connections that have not been closed yet.
func (s *Script) OpenConns() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*Conn
	for _, c := range s.conns {
		if !c.Closed() {
			open = append(open, c)
		}
	}
	return open
}
