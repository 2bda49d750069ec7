// Package dbpool is a concurrency-safe connection pool for an abstract backing resource.
/*
dbpool manages a bounded, reusable set of connections to a single backing
resource such as a database. Connections are opened through a Factory, handed
out with Acquire, and returned with Release. The pool never hands out a
connection it does not own, and a connection must be returned exactly once.

Creating a Pool

The primary way of creating a pool is with [New]:

    pool, err := dbpool.New(context.Background(), os.Getenv("DATABASE_URL"))

The connection string can be in URL or keyword/value format. Backing-resource
settings and pool settings can be specified here. In addition, a config struct
can be created by [ParseConfig]:

    config, err := dbpool.ParseConfig("host=localhost user=app pool_max_conns=10")
    if err != nil {
        // ...
    }
    config.Factory = func(ctx context.Context) (dbpool.Connection, error) {
        // open one backing connection
    }

    pool, err := dbpool.NewWithConfig(context.Background(), config)

When no Factory is set the pool dials a plain TCP connection to Host:Port.

A pool opens MinConns connections eagerly before New returns, so a pool that
cannot reach the backing resource fails fast. A background health check
converges the pool back to MinConns after broken connections are destroyed
and optionally reaps connections that have been idle longer than
MaxConnIdleTime.

Shutdown

Close is idempotent. It rejects new acquires, closes idle connections, waits
up to ShutdownGrace for checked-out connections to be returned, and then
forcibly closes whatever is still out. Releasing a connection to a closed
pool discards the connection and reports no error.
*/
package dbpool
