// Package multitracer provides a Tracer that can combine several tracers into one.
package multitracer

import (
	"context"

	"github.com/bilb0bagg1ns/dbpool"
)

// Tracer can combine several tracers into one.
// You can use New to automatically split tracers by interface.
type Tracer struct {
	AcquireTracers []dbpool.AcquireTracer
	ReleaseTracers []dbpool.ReleaseTracer
	ConnectTracers []dbpool.ConnectTracer
	CloseTracers   []dbpool.CloseTracer
}

// New returns new Tracer from tracers with automatically split tracers by interface.
func New(tracers ...dbpool.AcquireTracer) *Tracer {
	var t Tracer

	for _, tracer := range tracers {
		t.AcquireTracers = append(t.AcquireTracers, tracer)

		if releaseTracer, ok := tracer.(dbpool.ReleaseTracer); ok {
			t.ReleaseTracers = append(t.ReleaseTracers, releaseTracer)
		}

		if connectTracer, ok := tracer.(dbpool.ConnectTracer); ok {
			t.ConnectTracers = append(t.ConnectTracers, connectTracer)
		}

		if closeTracer, ok := tracer.(dbpool.CloseTracer); ok {
			t.CloseTracers = append(t.CloseTracers, closeTracer)
		}
	}

	return &t
}

func (t *Tracer) TraceAcquireStart(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireStartData) context.Context {
	for _, tracer := range t.AcquireTracers {
		ctx = tracer.TraceAcquireStart(ctx, pool, data)
	}

	return ctx
}

func (t *Tracer) TraceAcquireEnd(ctx context.Context, pool *dbpool.Pool, data dbpool.TraceAcquireEndData) {
	for _, tracer := range t.AcquireTracers {
		tracer.TraceAcquireEnd(ctx, pool, data)
	}
}

func (t *Tracer) TraceRelease(pool *dbpool.Pool, data dbpool.TraceReleaseData) {
	for _, tracer := range t.ReleaseTracers {
		tracer.TraceRelease(pool, data)
	}
}

func (t *Tracer) TraceConnectStart(ctx context.Context, data dbpool.TraceConnectStartData) context.Context {
	for _, tracer := range t.ConnectTracers {
		ctx = tracer.TraceConnectStart(ctx, data)
	}

	return ctx
}

func (t *Tracer) TraceConnectEnd(ctx context.Context, data dbpool.TraceConnectEndData) {
	for _, tracer := range t.ConnectTracers {
		tracer.TraceConnectEnd(ctx, data)
	}
}

func (t *Tracer) TraceClose(pool *dbpool.Pool, data dbpool.TraceCloseData) {
	for _, tracer := range t.CloseTracers {
		tracer.TraceClose(pool, data)
	}
}
