package dbpool

import "time"

// Stat is a snapshot of Pool statistics.
type Stat struct {
	idleConns         int32
	acquiredConns     int32
	constructingConns int32
	maxConns          int32

	acquireCount         int64
	acquireDuration      time.Duration
	emptyAcquireCount    int64
	canceledAcquireCount int64
	newConnsCount        int64
	maxIdleDestroyCount  int64
}

// Stat returns a snapshot of Pool statistics.
func (p *Pool) Stat() *Stat {
	p.mux.Lock()
	defer p.mux.Unlock()

	return &Stat{
		idleConns:         int32(len(p.idle)),
		acquiredConns:     int32(len(p.inUse)),
		constructingConns: p.constructing,
		maxConns:          p.config.MaxConns,

		acquireCount:         p.acquireCount,
		acquireDuration:      p.acquireDuration,
		emptyAcquireCount:    p.emptyAcquireCount,
		canceledAcquireCount: p.canceledAcquireCount,
		newConnsCount:        p.newConnsCount,
		maxIdleDestroyCount:  p.maxIdleDestroyCount,
	}
}

// IdleConns returns the number of currently idle connections in the pool.
func (s *Stat) IdleConns() int32 { return s.idleConns }

// AcquiredConns returns the number of currently acquired connections in the pool.
func (s *Stat) AcquiredConns() int32 { return s.acquiredConns }

// ConstructingConns returns the number of connections with construction in progress in
// the pool.
func (s *Stat) ConstructingConns() int32 { return s.constructingConns }

// TotalConns returns the total number of resources currently in the pool.
// The value is the sum of ConstructingConns, AcquiredConns, and IdleConns.
func (s *Stat) TotalConns() int32 { return s.idleConns + s.acquiredConns + s.constructingConns }

// MaxConns returns the maximum size of the pool.
func (s *Stat) MaxConns() int32 { return s.maxConns }

// AcquireCount returns the cumulative count of successful acquires from the pool.
func (s *Stat) AcquireCount() int64 { return s.acquireCount }

// AcquireDuration returns the total duration of all successful acquires from
// the pool.
func (s *Stat) AcquireDuration() time.Duration { return s.acquireDuration }

// EmptyAcquireCount returns the cumulative count of successful acquires from the pool
// that waited for a connection to be released or constructed because the pool was
// empty.
func (s *Stat) EmptyAcquireCount() int64 { return s.emptyAcquireCount }

// CanceledAcquireCount returns the cumulative count of acquires from the pool
// that were canceled by a context.
func (s *Stat) CanceledAcquireCount() int64 { return s.canceledAcquireCount }

// NewConnsCount returns the cumulative count of new connections opened.
func (s *Stat) NewConnsCount() int64 { return s.newConnsCount }

// MaxIdleDestroyCount returns the cumulative count of connections destroyed
// because they exceeded MaxConnIdleTime.
func (s *Stat) MaxIdleDestroyCount() int64 { return s.maxIdleDestroyCount }
