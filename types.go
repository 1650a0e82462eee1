package pgops

import (
	"fmt"
	"time"
)

// Statement is one parameterized statement produced by a tool's builder.
// User-supplied values are always carried in Params and bound through the
// pgx extended query protocol, never concatenated into SQL.
//
// Raw marks SQL carried verbatim from the tool's raw-SQL argument. Raw
// statements are validated with the PostgreSQL parser instead of the
// unbound-marker scan: JSONB operators like ? and ?| are legal there,
// while in builder-assembled text a leftover ? can only be a builder bug.
type Statement struct {
	SQL      string
	Params   []any
	WantRows bool // collect a row set (SELECT or RETURNING)
	Raw      bool
}

// StatementResult is the raw outcome of one executed statement, before
// tool-specific normalization.
type StatementResult struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// Result is the normalized output of one successful invocation. Column
// order is preserved in Columns; Rows is an ordered sequence of
// column→value mappings. Data carries tool-specific extras (backup file
// path, DDL text, connection status fields).
type Result struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
	Message      string           `json:"message,omitempty"`
	Data         map[string]any   `json:"data,omitempty"`
	Duration     time.Duration    `json:"-"`
	DurationMS   int64            `json:"duration_ms"`
}

// rowsResult builds a Result straight from a single statement's outcome.
func rowsResult(sr *StatementResult) *Result {
	return &Result{
		Columns:      sr.Columns,
		Rows:         sr.Rows,
		RowCount:     len(sr.Rows),
		RowsAffected: sr.RowsAffected,
	}
}

// messageResult builds a Result carrying only a human-readable confirmation.
func messageResult(format string, args ...any) *Result {
	return &Result{Message: fmt.Sprintf(format, args...)}
}
