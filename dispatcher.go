package pgops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pgops-mcp/pgops/internal/extproc"
	"github.com/pgops-mcp/pgops/internal/policy"
	"github.com/pgops-mcp/pgops/internal/pool"
)

// Configuration defaults applied by New when the corresponding field is zero.
const (
	defaultMaxConns            = 5
	defaultQueryTimeoutSecs    = 30
	defaultMaxQueryTimeoutSecs = 300
	defaultBackupDir           = "./backups"
	defaultPgDump              = "pg_dump"
	defaultPgRestore           = "pg_restore"
)

// acquireRetryDelay is the pause before the single internal retry after the
// waiter queue refuses an acquire.
const acquireRetryDelay = 100 * time.Millisecond

// Dispatcher routes tool invocations through validation, policy enforcement,
// and pooled execution. One Dispatcher serves one database; create it with
// New, share it across goroutines, and Close it on shutdown.
type Dispatcher struct {
	config   Config
	conn     ConnectionConfig
	registry *Registry
	pool     *pool.Pool
	enforcer *policy.Enforcer
	sideEnv  *SideEnv
	logger   zerolog.Logger
}

// New creates a Dispatcher. Panics on invalid configuration (programmer
// error); returns an error only for runtime failures such as an unparseable
// connection string. Connections are established lazily, so New succeeds
// even when the database is unreachable.
func New(ctx context.Context, conn ConnectionConfig, config Config, logger zerolog.Logger) (*Dispatcher, error) {
	if config.Pool.MaxConns == 0 {
		config.Pool.MaxConns = defaultMaxConns
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = defaultQueryTimeoutSecs
	}
	if config.Query.MaxTimeoutSeconds == 0 {
		config.Query.MaxTimeoutSeconds = defaultMaxQueryTimeoutSecs
	}
	if config.Maintenance.BackupDir == "" {
		config.Maintenance.BackupDir = defaultBackupDir
	}
	if config.Maintenance.PgDumpPath == "" {
		config.Maintenance.PgDumpPath = defaultPgDump
	}
	if config.Maintenance.PgRestorePath == "" {
		config.Maintenance.PgRestorePath = defaultPgRestore
	}

	enforcer := policy.NewEnforcer(policy.Config{
		ReadOnly:       config.ReadOnly,
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		MaxTimeout:     time.Duration(config.Query.MaxTimeoutSeconds) * time.Second,
	})

	poolConfig := pool.Config{
		MaxConns:          config.Pool.MaxConns,
		MinConns:          config.Pool.MinConns,
		MaxConnLifetime:   parseConfigDuration("pool.max_conn_lifetime", config.Pool.MaxConnLifetime),
		MaxConnIdleTime:   parseConfigDuration("pool.max_conn_idle_time", config.Pool.MaxConnIdleTime),
		HealthCheckPeriod: parseConfigDuration("pool.health_check_period", config.Pool.HealthCheckPeriod),
		MaxWaiters:        config.Pool.MaxWaiters,
		ShutdownGrace:     time.Duration(config.Pool.ShutdownGraceSeconds) * time.Second,
		AppName:           "pgops",
	}
	if config.ReadOnly {
		// Belt and suspenders under the class gate: even a statement that
		// slips through policy cannot write on a read-only session.
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET default_transaction_read_only = on")
			return err
		}
	}

	p, err := pool.New(ctx, conn.ConnString(), poolConfig, logger)
	if err != nil {
		return nil, err
	}

	runner := extproc.NewRunner(extproc.Config{
		DefaultTimeout: time.Duration(config.Maintenance.ExternalTimeoutSeconds) * time.Second,
	}, logger)

	return &Dispatcher{
		config:   config,
		conn:     conn,
		registry: newRegistry(conn),
		pool:     p,
		enforcer: enforcer,
		sideEnv: &SideEnv{
			Runner:    runner,
			Conn:      conn,
			BackupDir: config.Maintenance.BackupDir,
			PgDump:    config.Maintenance.PgDumpPath,
			PgRestore: config.Maintenance.PgRestorePath,
		},
		logger: logger,
	}, nil
}

func parseConfigDuration(field, s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: %s: invalid duration %q", field, s))
	}
	if d < 0 {
		panic(fmt.Sprintf("config: %s: duration must be >= 0", field))
	}
	return d
}

// Registry exposes the tool catalogue for transport registration.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// ReadOnly reports whether the dispatcher runs in read-only mode.
func (d *Dispatcher) ReadOnly() bool {
	return d.config.ReadOnly
}

// Ping verifies database connectivity.
func (d *Dispatcher) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// InUse returns the number of connections currently executing statements.
func (d *Dispatcher) InUse() int {
	return d.pool.InUse()
}

// Close drains the pool: in-flight invocations finish within the shutdown
// grace period, new acquires are refused immediately.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.pool.Shutdown(ctx)
}

// Dispatch executes one tool invocation. A non-nil error is always a
// *ToolError. Multi-statement tools run inside a transaction unless the tool
// opted out; on failure the error names the failing statement, so callers
// can reason about partial application.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, rawArgs map[string]any) (*Result, error) {
	start := time.Now()
	logger := d.logger.With().
		Str("tool", tool).
		Str("invocation_id", uuid.NewString()).
		Logger()

	res, terr := d.dispatch(ctx, tool, rawArgs, logger)
	duration := time.Since(start)

	if terr != nil {
		logger.Error().
			Str("error_kind", string(terr.Kind)).
			Str("error", terr.Message).
			Dur("duration", duration).
			Msg("tool invocation failed")
		return nil, terr
	}

	res.Duration = duration
	res.DurationMS = duration.Milliseconds()
	logger.Info().
		Int("rows", res.RowCount).
		Dur("duration", duration).
		Msg("tool invocation completed")
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tool string, rawArgs map[string]any, logger zerolog.Logger) (*Result, *ToolError) {
	def, ok := d.registry.Lookup(tool)
	if !ok {
		return nil, toolErrorf(KindUnknownTool, "unknown tool %q", tool)
	}

	args, terr := validateArgs(def, rawArgs)
	if terr != nil {
		return nil, terr
	}

	if err := d.enforcer.CheckClass(def.Class); err != nil {
		return nil, toolErrorf(KindReadOnly, "tool %s: %s tools are disabled in read-only mode", def.Name, def.Class)
	}

	if def.RawSQLArg != "" {
		if err := d.enforcer.CheckRawSQL(args.String(def.RawSQLArg, ""), def.SelectOnly); err != nil {
			return nil, asPolicyError(def.Name, err)
		}
	}

	if def.SideChannel != nil {
		res, err := def.SideChannel(ctx, d.sideEnv, args)
		if err != nil {
			return nil, asToolError(err, KindStatementFailed)
		}
		return res, nil
	}

	stmts, err := def.Build(args)
	if err != nil {
		return nil, asToolError(err, KindInvalidArguments)
	}
	if logger.GetLevel() <= zerolog.DebugLevel {
		for _, stmt := range stmts {
			logger.Debug().Str("sql", stmt.SQL).Int("params", len(stmt.Params)).Msg("statement built")
		}
	}
	for i, stmt := range stmts {
		if stmt.Raw {
			// Already validated by the PostgreSQL parser in CheckRawSQL;
			// the marker scan would misread JSONB operators (?, ?|, ?&).
			continue
		}
		if err := d.enforcer.CheckStatement(stmt.SQL); err != nil {
			terr := asPolicyError(def.Name, err)
			if len(stmts) > 1 {
				terr.Statement = i + 1
			}
			return nil, terr
		}
	}

	override := time.Duration(args.Int("timeout_seconds", 0)) * time.Second
	execCtx, cancel := d.enforcer.Deadline(ctx, override)
	defer cancel()

	conn, terr := d.acquire(execCtx)
	if terr != nil {
		return nil, terr
	}

	results, terr := d.execute(execCtx, conn, def, stmts)
	d.pool.Release(conn, terr == nil || terr.RecoverableConn())
	if terr != nil {
		return nil, terr
	}

	if def.Normalize != nil {
		res, err := def.Normalize(results)
		if err != nil {
			return nil, asToolError(err, KindInvalidArguments)
		}
		return res, nil
	}
	return rowsResult(results[len(results)-1]), nil
}

// acquire maps pool sentinels onto the error taxonomy. A full waiter queue
// gets one retry after a short pause, since queue pressure is often
// transient at the boundary.
func (d *Dispatcher) acquire(ctx context.Context) (*pool.Conn, *ToolError) {
	conn, err := d.pool.Acquire(ctx)
	if errors.Is(err, pool.ErrExhausted) {
		select {
		case <-ctx.Done():
		case <-time.After(acquireRetryDelay):
			conn, err = d.pool.Acquire(ctx)
		}
	}
	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, pool.ErrExhausted):
		return nil, toolErrorf(KindPoolExhausted, "all connections busy and waiter queue full")
	case errors.Is(err, pool.ErrAcquireTimeout):
		return nil, toolErrorf(KindTimeout, "timed out waiting for a connection")
	case errors.Is(err, pool.ErrShuttingDown):
		return nil, toolErrorf(KindShuttingDown, "server is shutting down")
	default:
		return nil, asToolError(err, KindConnectionLost)
	}
}

// execute runs the statement batch. Multi-statement tools run inside a
// transaction unless the tool opted out (VACUUM cannot run in one); a batch
// that fails mid-way inside a transaction is rolled back as a unit.
func (d *Dispatcher) execute(ctx context.Context, conn *pool.Conn, def *ToolDefinition, stmts []Statement) ([]*StatementResult, *ToolError) {
	if len(stmts) <= 1 || def.NoTransaction {
		return runStatements(ctx, conn.Pgx(), stmts)
	}

	tx, err := conn.Pgx().Begin(ctx)
	if err != nil {
		return nil, classifyExecError(err)
	}
	results, terr := runStatements(ctx, tx, stmts)
	if terr != nil {
		// ctx may already be past its deadline; roll back on a fresh one so
		// the server releases locks promptly.
		rbCtx, rbCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = tx.Rollback(rbCtx)
		rbCancel()
		return nil, terr
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classifyExecError(err)
	}
	return results, nil
}

// asPolicyError maps policy sentinels onto the taxonomy.
func asPolicyError(tool string, err error) *ToolError {
	switch {
	case errors.Is(err, policy.ErrUnsafeStatement):
		return toolErrorf(KindUnsafeStatement, "tool %s: %v", tool, err)
	case errors.Is(err, policy.ErrInvalidSQL):
		return toolErrorf(KindUnsafeStatement, "tool %s: %v", tool, err)
	case errors.Is(err, policy.ErrReadOnly):
		return toolErrorf(KindReadOnly, "tool %s: %v", tool, err)
	default:
		return asToolError(err, KindUnsafeStatement)
	}
}
