// Package dbpooltest provides utilities for testing packages that integrate with dbpool.
package dbpooltest

import (
	"context"
	"testing"

	"github.com/bilb0bagg1ns/dbpool"
)

// PoolTestRunner controls how a *dbpool.Pool is created and closed by tests. All fields are required. Use
// DefaultPoolTestRunner to get a PoolTestRunner with reasonable default values.
type PoolTestRunner struct {
	// CreateConfig returns a *dbpool.Config suitable for use with dbpool.NewWithConfig.
	CreateConfig func(ctx context.Context, t testing.TB) *dbpool.Config

	// AfterCreate is called after the pool is established. It allows for arbitrary setup before a test begins.
	AfterCreate func(ctx context.Context, t testing.TB, pool *dbpool.Pool)

	// AfterTest is called after the test is run. It allows for validating the state of the pool before it is closed.
	AfterTest func(ctx context.Context, t testing.TB, pool *dbpool.Pool)

	// ClosePool closes pool.
	ClosePool func(ctx context.Context, t testing.TB, pool *dbpool.Pool)
}

// DefaultPoolTestRunner returns a new PoolTestRunner with all fields set to reasonable default values. The returned
// runner creates pools backed by factory.
func DefaultPoolTestRunner(connString string, factory dbpool.Factory) PoolTestRunner {
	return PoolTestRunner{
		CreateConfig: func(ctx context.Context, t testing.TB) *dbpool.Config {
			config, err := dbpool.ParseConfig(connString)
			if err != nil {
				t.Fatalf("ParseConfig failed: %v", err)
			}
			config.Factory = factory
			return config
		},
		AfterCreate: func(ctx context.Context, t testing.TB, pool *dbpool.Pool) {},
		AfterTest:   func(ctx context.Context, t testing.TB, pool *dbpool.Pool) {},
		ClosePool: func(ctx context.Context, t testing.TB, pool *dbpool.Pool) {
			pool.Close()
		},
	}
}

func (ptr *PoolTestRunner) RunTest(ctx context.Context, t testing.TB, f func(ctx context.Context, t testing.TB, pool *dbpool.Pool)) {
	t.Helper()

	config := ptr.CreateConfig(ctx, t)
	pool, err := dbpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	defer ptr.ClosePool(ctx, t, pool)

	ptr.AfterCreate(ctx, t, pool)
	f(ctx, t, pool)
	ptr.AfterTest(ctx, t, pool)
}
