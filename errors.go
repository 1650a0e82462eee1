package pgops

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind identifies one entry of the fixed error taxonomy. Every error
// returned by Dispatch is a *ToolError carrying one of these kinds.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindReadOnly         ErrorKind = "read_only_violation"
	KindUnsafeStatement  ErrorKind = "unsafe_statement"
	KindPoolExhausted    ErrorKind = "pool_exhausted"
	KindTimeout          ErrorKind = "timeout"
	KindQueryTimeout     ErrorKind = "query_timeout"
	KindConnectionLost   ErrorKind = "connection_lost"
	KindStatementFailed  ErrorKind = "statement_failed"
	KindShuttingDown     ErrorKind = "pool_shutting_down"
)

// ToolError is the structured error surfaced for a failed invocation.
// For StatementFailed the engine-reported code, message, and detail are
// preserved verbatim. Statement is the 1-based index of the failing
// statement for multi-statement tools (0 when not applicable), so callers
// can reason about partial application.
type ToolError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Statement int       `json:"statement,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func toolErrorf(kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// asToolError passes through an existing *ToolError or wraps err under the
// given fallback kind.
func asToolError(err error, fallback ErrorKind) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Kind: fallback, Message: err.Error()}
}

// SQLSTATE 57014: query_canceled — raised when a statement deadline fires
// and the statement is cancelled server-side.
const sqlstateQueryCanceled = "57014"

// classifyExecError maps a statement execution failure onto the taxonomy.
// Statement-level errors (constraint violations, syntax errors, permission
// denied) leave the connection usable; timeouts and connection-level
// failures do not — RecoverableConn tells the caller which release path to
// take.
func classifyExecError(err error) *ToolError {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		if pgErr.Code == sqlstateQueryCanceled {
			return &ToolError{Kind: KindQueryTimeout, Code: pgErr.Code, Message: "statement cancelled: execution deadline exceeded"}
		}
		detail := pgErr.Detail
		if pgErr.Hint != "" {
			if detail != "" {
				detail += "; "
			}
			detail += "hint: " + pgErr.Hint
		}
		return &ToolError{
			Kind:    KindStatementFailed,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  detail,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Kind: KindQueryTimeout, Message: "statement execution deadline exceeded"}
	case errors.Is(err, context.Canceled):
		return &ToolError{Kind: KindQueryTimeout, Message: "statement cancelled"}
	case pgconn.Timeout(err):
		return &ToolError{Kind: KindQueryTimeout, Message: err.Error()}
	default:
		return &ToolError{Kind: KindConnectionLost, Message: err.Error()}
	}
}

// RecoverableConn reports whether the connection that produced e is still
// usable and may be returned to the idle set.
func (e *ToolError) RecoverableConn() bool {
	return e.Kind == KindStatementFailed
}
