package dbpool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bilb0bagg1ns/dbpool"
	"github.com/bilb0bagg1ns/dbpool/internal/connmock"
	"github.com/stretchr/testify/require"
)

type testTracer struct {
	traceAcquireStart func(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireStartData) context.Context
	traceAcquireEnd   func(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireEndData)
	traceRelease      func(pool *dbpool.Pool, data dbpool.TraceReleaseData)
	traceConnectStart func(ctx context.Context, data dbpool.TraceConnectStartData) context.Context
	traceConnectEnd   func(ctx context.Context, data dbpool.TraceConnectEndData)
	traceClose        func(pool *dbpool.Pool, data dbpool.TraceCloseData)
}

type ctxKey string

func (tt *testTracer) TraceAcquireStart(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireStartData) context.Context {
	if tt.traceAcquireStart != nil {
		return tt.traceAcquireStart(ctx, pool, data)
	}
	return ctx
}

func (tt *testTracer) TraceAcquireEnd(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireEndData) {
	if tt.traceAcquireEnd != nil {
		tt.traceAcquireEnd(ctx, pool, data)
	}
}

func (tt *testTracer) TraceRelease(pool *dbpool.Pool, data dbpool.TraceReleaseData) {
	if tt.traceRelease != nil {
		tt.traceRelease(pool, data)
	}
}

func (tt *testTracer) TraceConnectStart(ctx context.Context, data dbpool.TraceConnectStartData) context.Context {
	if tt.traceConnectStart != nil {
		return tt.traceConnectStart(ctx, data)
	}
	return ctx
}

func (tt *testTracer) TraceConnectEnd(ctx context.Context, data dbpool.TraceConnectEndData) {
	if tt.traceConnectEnd != nil {
		tt.traceConnectEnd(ctx, data)
	}
}

func (tt *testTracer) TraceClose(pool *dbpool.Pool, data dbpool.TraceCloseData) {
	if tt.traceClose != nil {
		tt.traceClose(pool, data)
	}
}

func newTracedPool(t *testing.T, connString string, tracer dbpool.AcquireTracer) *dbpool.Pool {
	t.Helper()

	config, err := dbpool.ParseConfig(connString)
	require.NoError(t, err)
	config.Factory = (&connmock.Script{}).Factory()
	config.Tracer = tracer

	pool, err := dbpool.NewWithConfig(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestTraceAcquire(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pool := newTracedPool(t, "pool_max_conns=5", tracer)

	traceAcquireStartCalled := false
	tracer.traceAcquireStart = func(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireStartData) context.Context {
		traceAcquireStartCalled = true
		require.NotNil(t, pool)
		return context.WithValue(ctx, ctxKey("fromTraceAcquireStart"), "foo")
	}

	traceAcquireEndCalled := false
	tracer.traceAcquireEnd = func(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireEndData) {
		traceAcquireEndCalled = true
		require.Equal(t, "foo", ctx.Value(ctxKey("fromTraceAcquireStart")))
		require.NotNil(t, pool)
		require.NotNil(t, data.Conn)
		require.NoError(t, data.Err)
	}

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	require.True(t, traceAcquireStartCalled)
	require.True(t, traceAcquireEndCalled)

	traceAcquireStartCalled = false
	traceAcquireEndCalled = false
	tracer.traceAcquireEnd = func(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireEndData) {
		traceAcquireEndCalled = true
		require.NotNil(t, pool)
		require.Nil(t, data.Conn)
		require.Error(t, data.Err)
	}

	ctx, cancel = context.WithCancel(ctx)
	cancel()
	_, err = pool.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, traceAcquireStartCalled)
	require.True(t, traceAcquireEndCalled)
}

func TestTraceRelease(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pool := newTracedPool(t, "pool_max_conns=5", tracer)

	traceReleaseCalled := false
	tracer.traceRelease = func(pool *dbpool.Pool, data dbpool.TraceReleaseData) {
		traceReleaseCalled = true
		require.NotNil(t, pool)
		require.NotNil(t, data.Conn)
		require.False(t, data.Destroyed)
	}

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	c.Release()
	require.True(t, traceReleaseCalled)
}

func TestTraceReleaseDestroyed(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pool := newTracedPool(t, "pool_max_conns=5", tracer)

	destroyed := false
	tracer.traceRelease = func(pool *dbpool.Pool, data dbpool.TraceReleaseData) {
		destroyed = data.Destroyed
	}

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	c.Invalidate()
	c.Release()
	require.True(t, destroyed)
}

func TestTraceConnect(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	traceConnectStartCalled := false
	tracer.traceConnectStart = func(ctx context.Context, data dbpool.TraceConnectStartData) context.Context {
		traceConnectStartCalled = true
		require.NotNil(t, data.Config)
		return context.WithValue(ctx, ctxKey("fromTraceConnectStart"), "bar")
	}

	traceConnectEndCalled := false
	tracer.traceConnectEnd = func(ctx context.Context, data dbpool.TraceConnectEndData) {
		traceConnectEndCalled = true
		require.Equal(t, "bar", ctx.Value(ctxKey("fromTraceConnectStart")))
		require.NotNil(t, data.Conn)
		require.NoError(t, data.Err)
	}

	pool := newTracedPool(t, "pool_max_conns=5", tracer)

	c, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()
	require.True(t, traceConnectStartCalled)
	require.True(t, traceConnectEndCalled)
}

func TestTraceConnectError(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	var connectErr error
	tracer.traceConnectEnd = func(ctx context.Context, data dbpool.TraceConnectEndData) {
		connectErr = data.Err
	}

	config, err := dbpool.ParseConfig("pool_max_conns=5")
	require.NoError(t, err)
	script := &connmock.Script{}
	script.Push(connmock.FailOpen(errors.New("resource unreachable")))
	config.Factory = script.Factory()
	config.Tracer = tracer

	pool, err := dbpool.NewWithConfig(ctx, config)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	require.Error(t, connectErr)
	var wantErr *dbpool.ConnectError
	require.ErrorAs(t, connectErr, &wantErr)
}

func TestTraceClose(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	traceCloseCalled := false
	tracer.traceClose = func(pool *dbpool.Pool, data dbpool.TraceCloseData) {
		traceCloseCalled = true
		require.NotNil(t, pool)
		require.NoError(t, data.Err)
	}

	pool := newTracedPool(t, "pool_min_conns=1 pool_max_conns=5", tracer)
	pool.Close()
	require.True(t, traceCloseCalled)
}

func TestTraceCloseReportsCloseErrors(t *testing.T) {
	t.Parallel()

	tracer := &testTracer{}

	var closeErr error
	tracer.traceClose = func(pool *dbpool.Pool, data dbpool.TraceCloseData) {
		closeErr = data.Err
	}

	config, err := dbpool.ParseConfig("pool_min_conns=1 pool_max_conns=5")
	require.NoError(t, err)
	script := &connmock.Script{}
	script.Push(connmock.OpenConn(&connmock.Conn{CloseErr: errors.New("close failed")}))
	config.Factory = script.Factory()
	config.Tracer = tracer

	pool, err := dbpool.NewWithConfig(context.Background(), config)
	require.NoError(t, err)

	// Close still reaches the closed state; the error is only reported.
	pool.Close()
	require.Error(t, closeErr)

	_, err = pool.Acquire(context.Background())
	require.ErrorIs(t, err, dbpool.ErrClosedPool)
}
