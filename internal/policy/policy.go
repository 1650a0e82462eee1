// Package policy enforces per-call safety rules uniformly across all tool
// kinds: read-only gating by policy class, statement deadline binding with a
// process-wide ceiling, and parameter binding discipline on statement-builder
// output and caller-supplied SQL.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Class categorizes a tool for policy purposes. Non-read classes are
// rejected outright when the process-wide read-only flag is set.
type Class string

const (
	ClassRead        Class = "read"
	ClassWrite       Class = "write"
	ClassAdmin       Class = "admin"
	ClassMaintenance Class = "maintenance"
)

// Sentinel errors. Callers map these onto their own error taxonomy with
// errors.Is.
var (
	ErrReadOnly        = errors.New("policy: read-only mode")
	ErrUnsafeStatement = errors.New("policy: unsafe statement")
	ErrInvalidSQL      = errors.New("policy: invalid sql")
)

// Config is the enforcer's own config type.
type Config struct {
	ReadOnly       bool
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration // ceiling for per-call overrides
}

// Enforcer validates tool calls against process-wide policy. Immutable after
// construction; safe for concurrent use.
type Enforcer struct {
	config Config
}

// NewEnforcer creates a new Enforcer. Panics on invalid config.
func NewEnforcer(config Config) *Enforcer {
	if config.DefaultTimeout <= 0 {
		panic("policy: default timeout must be > 0")
	}
	if config.MaxTimeout < config.DefaultTimeout {
		panic("policy: max timeout must be >= default timeout")
	}
	return &Enforcer{config: config}
}

// ReadOnly reports whether global read-only mode is active.
func (e *Enforcer) ReadOnly() bool {
	return e.config.ReadOnly
}

// CheckClass rejects write, admin, and maintenance tools in read-only mode.
// Checked before any connection is acquired.
func (e *Enforcer) CheckClass(class Class) error {
	if e.config.ReadOnly && class != ClassRead {
		return fmt.Errorf("%w: %s tools are disabled", ErrReadOnly, class)
	}
	return nil
}

// Deadline derives the execution context for a statement. override is the
// caller-requested timeout (0 means the configured default); it is clamped
// to the process-wide ceiling.
func (e *Enforcer) Deadline(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	timeout := e.config.DefaultTimeout
	if override > 0 {
		timeout = override
	}
	if timeout > e.config.MaxTimeout {
		timeout = e.config.MaxTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Timeout returns the effective timeout Deadline would apply for override.
func (e *Enforcer) Timeout(override time.Duration) time.Duration {
	timeout := e.config.DefaultTimeout
	if override > 0 {
		timeout = override
	}
	if timeout > e.config.MaxTimeout {
		timeout = e.config.MaxTimeout
	}
	return timeout
}

// CheckStatement rejects statement-builder output that still contains
// unbound substitution markers — printf-style verbs or '?' placeholders
// outside quoted regions. Builders bind every user value as a $n parameter,
// so a leftover marker means a builder bug, not caller input.
func (e *Enforcer) CheckStatement(sql string) error {
	inSingle := false
	inDouble := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '?':
			return fmt.Errorf("%w: unbound '?' placeholder at offset %d", ErrUnsafeStatement, i)
		case c == '%' && i+1 < len(sql):
			switch sql[i+1] {
			case 's', 'd', 'v', 'q':
				return fmt.Errorf("%w: unbound %%%c substitution marker at offset %d", ErrUnsafeStatement, sql[i+1], i)
			}
		}
	}
	return nil
}

// CheckRawSQL validates caller-supplied SQL using PostgreSQL's actual parser:
// it must parse and contain exactly one statement. When selectOnly is set
// the statement must additionally be a read form (SELECT/VALUES, EXPLAIN,
// or SHOW).
func (e *Enforcer) CheckRawSQL(sql string, selectOnly bool) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSQL, err)
	}
	if len(result.Stmts) == 0 {
		return fmt.Errorf("%w: empty query", ErrInvalidSQL)
	}
	if len(result.Stmts) > 1 {
		return fmt.Errorf("%w: multi-statement queries are not allowed (found %d statements)", ErrInvalidSQL, len(result.Stmts))
	}
	if !selectOnly {
		return nil
	}
	switch result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return nil
	case *pg_query.Node_ExplainStmt:
		return nil
	case *pg_query.Node_VariableShowStmt:
		return nil
	default:
		return fmt.Errorf("%w: only SELECT statements are accepted by this tool", ErrInvalidSQL)
	}
}
