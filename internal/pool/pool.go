// Package pool owns a bounded set of live PostgreSQL connections on top of
// pgxpool, adding strict FIFO admission, explicit healthy/unhealthy release,
// and graceful shutdown with a bounded drain. Multiple pools can coexist;
// there is no ambient global state.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Sentinel errors surfaced by Acquire and Shutdown.
var (
	ErrExhausted      = errors.New("pool: exhausted, waiter queue full")
	ErrAcquireTimeout = errors.New("pool: deadline elapsed while waiting for a connection")
	ErrShuttingDown   = errors.New("pool: shutting down")
)

// Config is the pool's own config type.
type Config struct {
	MaxConns          int
	MinConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// MaxWaiters bounds the FIFO queue; 0 means 4x MaxConns.
	MaxWaiters int

	// ShutdownGrace bounds how long Shutdown waits for outstanding loans;
	// 0 means 30 seconds.
	ShutdownGrace time.Duration

	// AppName is set as application_name on every connection, so
	// maintenance tools can tell this server's own backends apart.
	AppName string

	// AfterConnect runs session-level setup on each new connection.
	AfterConnect func(ctx context.Context, conn *pgx.Conn) error
}

// Conn is a live connection on loan to exactly one in-flight invocation.
type Conn struct {
	pgxConn    *pgxpool.Conn
	acquiredAt time.Time
	released   atomic.Bool
}

// Pgx exposes the underlying pgxpool connection for statement execution.
func (c *Conn) Pgx() *pgxpool.Conn {
	return c.pgxConn
}

// AcquiredAt returns when this loan started.
func (c *Conn) AcquiredAt() time.Time {
	return c.acquiredAt
}

// Pool hands out and reclaims pooled connections. Safe for concurrent use.
type Pool struct {
	pgx    *pgxpool.Pool
	lim    *limiter
	grace  time.Duration
	logger zerolog.Logger
}

// New creates a pool. connString must be non-empty. Panics on invalid
// config (programmer error); returns an error only for runtime failures.
// Connections are established lazily, so New succeeds even when the
// database is unreachable.
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger) (*Pool, error) {
	if connString == "" {
		panic("pool: connString must be non-empty")
	}
	if config.MaxConns <= 0 {
		panic("pool: max_conns must be > 0")
	}
	if config.MinConns < 0 || config.MinConns > config.MaxConns {
		panic("pool: min_conns must be in [0, max_conns]")
	}

	maxWaiters := config.MaxWaiters
	if maxWaiters == 0 {
		maxWaiters = 4 * config.MaxConns
	}
	grace := config.ShutdownGrace
	if grace == 0 {
		grace = 30 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(config.MaxConns)
	poolConfig.MinConns = int32(config.MinConns)
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}
	if config.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = config.HealthCheckPeriod
	}
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	if config.AppName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = config.AppName
	}
	if config.AfterConnect != nil {
		poolConfig.AfterConnect = config.AfterConnect
	}

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Pool{
		pgx:    pgxPool,
		lim:    newLimiter(config.MaxConns, maxWaiters),
		grace:  grace,
		logger: logger,
	}, nil
}

// Acquire blocks until a connection becomes available or ctx expires.
// Waiters are served FIFO. A connection failing pgxpool's liveness probe on
// acquire is discarded and replaced internally, never handed out.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if err := p.lim.acquire(ctx); err != nil {
		return nil, err
	}
	pgxConn, err := p.pgx.Acquire(ctx)
	if err != nil {
		p.lim.release()
		if ctx.Err() != nil {
			return nil, ErrAcquireTimeout
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{pgxConn: pgxConn, acquiredAt: time.Now()}, nil
}

// Release returns a loan. healthy=false destroys the connection instead of
// returning it to the idle set; pgxpool replenishes lazily up to min size.
// Releasing the same Conn twice is a no-op.
func (p *Pool) Release(conn *Conn, healthy bool) {
	if conn == nil || !conn.released.CompareAndSwap(false, true) {
		return
	}
	if !healthy {
		// Closing the underlying connection makes pgxpool destroy it on
		// release rather than pooling it.
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.pgxConn.Conn().Close(closeCtx)
		cancel()
		p.logger.Warn().
			Dur("loan_duration", time.Since(conn.acquiredAt)).
			Msg("destroyed unhealthy connection")
	}
	conn.pgxConn.Release()
	p.lim.release()
}

// Ping verifies database connectivity without consuming a slot for longer
// than the round trip.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pgx.Ping(ctx)
}

// InUse returns the number of connections currently on loan.
func (p *Pool) InUse() int {
	return p.lim.inUse()
}

// Stat exposes pgxpool statistics.
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pgx.Stat()
}

// Shutdown refuses new acquires, fails parked waiters with ErrShuttingDown,
// waits up to the grace period for outstanding loans, then closes every
// connection. Returns an error when loans were still outstanding after the
// grace period (they are closed regardless).
func (p *Pool) Shutdown(ctx context.Context) error {
	p.lim.closeAndDrain()

	graceCtx, cancel := context.WithTimeout(ctx, p.grace)
	defer cancel()
	err := p.lim.waitIdle(graceCtx)
	if err != nil {
		// pgxpool.Close blocks until every loan is returned; with loans
		// still outstanding, finish closing in the background once the
		// stragglers release.
		go p.pgx.Close()
		return fmt.Errorf("pool: %d loans still outstanding after grace period", p.lim.inUse())
	}
	p.pgx.Close()
	return nil
}
