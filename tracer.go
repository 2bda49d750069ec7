package dbpool

import (
	"context"
)

// AcquireTracer traces Acquire.
type AcquireTracer interface {
	// TraceAcquireStart is called at the beginning of Acquire.
	// The returned context is used for the rest of the call and will be passed to the TraceAcquireEnd.
	TraceAcquireStart(ctx context.Context, pool *Pool, data TraceAcquireStartData) context.Context
	// TraceAcquireEnd is called when a connection has been acquired.
	TraceAcquireEnd(ctx context.Context, pool *Pool, data TraceAcquireEndData)
}

type TraceAcquireStartData struct{}

type TraceAcquireEndData struct {
	// Conn is the connection that was acquired. It is nil if the acquire failed.
	Conn *Conn
	Err  error
}

// ReleaseTracer traces Release.
type ReleaseTracer interface {
	// TraceRelease is called when a connection is returned to the pool.
	TraceRelease(pool *Pool, data TraceReleaseData)
}

type TraceReleaseData struct {
	Conn *Conn
	// Destroyed is true when the connection was closed instead of returned to
	// the idle set, either because it was invalidated or the pool is closed.
	Destroyed bool
}

// ConnectTracer traces the opening of new backing connections.
type ConnectTracer interface {
	TraceConnectStart(ctx context.Context, data TraceConnectStartData) context.Context
	// TraceConnectEnd is called when the factory attempt completes.
	TraceConnectEnd(ctx context.Context, data TraceConnectEndData)
}

type TraceConnectStartData struct {
	Config *Config
}

type TraceConnectEndData struct {
	// Conn is the backing connection that was opened. It is nil if the
	// attempt failed.
	Conn Connection
	Err  error
}

// CloseTracer traces Close.
type CloseTracer interface {
	// TraceClose is called once, when the pool reaches the closed state. Err
	// aggregates any errors reported while closing backing connections.
	TraceClose(pool *Pool, data TraceCloseData)
}

type TraceCloseData struct {
	Err error
}
