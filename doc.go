// Package pgops exposes a fixed catalogue of PostgreSQL operations to AI
// agents through the Model Context Protocol (MCP).
//
// Twenty-eight tools cover query execution, schema introspection, DDL, DML,
// user/permission management, and maintenance. Every tool call flows through
// the same dispatch pipeline: argument validation against the tool's declared
// schema, policy enforcement (read-only gating, statement deadlines,
// parameter binding discipline), FIFO acquisition of a pooled connection,
// execution, and normalization of the result or error.
//
// SQL injection is prevented structurally: user-supplied values are always
// bound parameters via the pgx extended query protocol, and identifiers
// (table, column, index, schema, role names) are validated against an
// allow-listed character set before they are ever interpolated into
// statement text. Caller-supplied SQL (execute_query, execute_explain) is
// additionally checked with PostgreSQL's actual C parser via pg_query to be
// a single read statement.
//
// # Library Usage
//
//	conn := pgops.ConnectionConfig{Host: "localhost", Port: 5432, DBName: "app", User: "svc"}
//	d, err := pgops.New(ctx, conn, pgops.Config{
//		Pool:     pgops.PoolConfig{MaxConns: 10},
//		ReadOnly: true,
//		Query: pgops.QueryConfig{
//			DefaultTimeoutSeconds: 30,
//			MaxTimeoutSeconds:     300,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close(ctx)
//
//	res, err := d.Dispatch(ctx, "execute_query", map[string]any{
//		"query":  "SELECT * FROM users WHERE id = $1",
//		"params": []any{42},
//	})
//
//	// Or register every catalogued tool on an MCP server
//	pgops.RegisterMCPTools(mcpServer, d)
//
// Errors returned by Dispatch are always *ToolError values carrying a kind
// from the fixed taxonomy (UnknownTool, InvalidArguments, ReadOnlyViolation,
// UnsafeStatement, PoolExhausted, Timeout, QueryTimeout, ConnectionLost,
// StatementFailed); database-reported diagnostics are preserved verbatim.
//
// backup_database and restore_database shell out to pg_dump/pg_restore and
// bypass the pooled-connection path; they still pass through the same
// dispatch, policy, and audit pipeline.
package pgops
