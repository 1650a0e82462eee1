package pgops

import (
	"fmt"

	"github.com/pgops-mcp/pgops/internal/policy"
)

const listDatabasesSQL = `
SELECT datname AS name,
       pg_size_pretty(pg_database_size(datname)) AS size,
       pg_encoding_to_char(encoding) AS encoding
FROM pg_database
WHERE datistemplate = false
ORDER BY datname;
`

const listTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type,
    pg_catalog.pg_get_userbyid(c.relowner) AS owner
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname = $1
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY c.relname;
`

const listColumnsSQL = `
SELECT
    column_name,
    data_type,
    character_maximum_length,
    is_nullable,
    column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position;
`

const tableIndexesSQL = `
SELECT indexname, indexdef
FROM pg_indexes
WHERE schemaname = $1 AND tablename = $2
ORDER BY indexname;
`

const tableConstraintsSQL = `
SELECT
    con.conname AS constraint_name,
    CASE con.contype
        WHEN 'p' THEN 'PRIMARY KEY'
        WHEN 'f' THEN 'FOREIGN KEY'
        WHEN 'u' THEN 'UNIQUE'
        WHEN 'c' THEN 'CHECK'
        WHEN 'x' THEN 'EXCLUSION'
    END AS constraint_type,
    pg_catalog.pg_get_constraintdef(con.oid, true) AS definition
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2
ORDER BY con.conname;
`

const tableSizeSQL = `
SELECT pg_size_pretty(pg_total_relation_size(($1 || '.' || $2)::regclass)) AS total_size;
`

const databaseSizeTablesSQL = `
SELECT
    schemaname,
    tablename,
    pg_size_pretty(pg_total_relation_size((schemaname || '.' || tablename)::regclass)) AS size,
    pg_total_relation_size((schemaname || '.' || tablename)::regclass) AS size_bytes
FROM pg_tables
WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
ORDER BY size_bytes DESC
LIMIT 50;
`

const databaseSizeSQL = `
SELECT pg_size_pretty(pg_database_size(current_database())) AS database_size;
`

const activeConnectionsSQL = `
SELECT
    datname AS database,
    usename AS username,
    application_name,
    client_addr,
    state,
    query,
    query_start
FROM pg_stat_activity
WHERE pid <> pg_backend_pid()
ORDER BY query_start DESC;
`

const testConnectionSQL = `
SELECT version() AS version, current_database() AS database, current_user AS username;
`

// queryTools is the read catalogue: single read statements, results as
// normalized row sets with column order preserved.
func queryTools(conn ConnectionConfig) []*ToolDefinition {
	schemaArg := ArgSpec{Name: "schema", Type: ArgString, Description: "Schema name (defaults to 'public')"}
	timeoutArg := ArgSpec{Name: "timeout_seconds", Type: ArgInt, Description: "Per-call statement timeout override, clamped to the configured ceiling"}

	return []*ToolDefinition{
		{
			Name:        "execute_query",
			Description: "Execute a SELECT query and return results. Values must be passed through params, bound as $1..$n.",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "query", Type: ArgString, Required: true, Description: "SQL SELECT query to execute"},
				{Name: "params", Type: ArgArray, Description: "Positional query parameters bound as $1..$n"},
				timeoutArg,
			},
			RawSQLArg:  "query",
			SelectOnly: true,
			Build: func(args Args) ([]Statement, error) {
				return []Statement{{
					SQL:      args.String("query", ""),
					Params:   args.Array("params"),
					WantRows: true,
					Raw:      true,
				}}, nil
			},
		},
		{
			Name:        "execute_explain",
			Description: "Get the execution plan for a query without running it",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "query", Type: ArgString, Required: true, Description: "SQL query to explain"},
				{Name: "params", Type: ArgArray, Description: "Positional query parameters bound as $1..$n"},
				timeoutArg,
			},
			RawSQLArg: "query",
			Build: func(args Args) ([]Statement, error) {
				return []Statement{{
					SQL:      "EXPLAIN (FORMAT JSON, ANALYZE FALSE) " + args.String("query", ""),
					Params:   args.Array("params"),
					WantRows: true,
					Raw:      true,
				}}, nil
			},
			Normalize: func(batch []*StatementResult) (*Result, error) {
				res := rowsResult(batch[0])
				if len(batch[0].Rows) > 0 {
					res.Data = map[string]any{"plan": batch[0].Rows[0]}
				}
				return res, nil
			},
		},
		{
			Name:        "list_databases",
			Description: "List all databases in the PostgreSQL server",
			Class:       policy.ClassRead,
			Build:       singleRead(listDatabasesSQL),
		},
		{
			Name:        "list_tables",
			Description: "List all tables, views, materialized views, and foreign tables in a schema",
			Class:       policy.ClassRead,
			Args:        []ArgSpec{schemaArg},
			Build: func(args Args) ([]Statement, error) {
				return []Statement{{SQL: listTablesSQL, Params: []any{args.String("schema", "public")}, WantRows: true}}, nil
			},
		},
		{
			Name:        "list_columns",
			Description: "Get column information for a table",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				return []Statement{{
					SQL:      listColumnsSQL,
					Params:   []any{args.String("schema", "public"), args.String("table_name", "")},
					WantRows: true,
				}}, nil
			},
		},
		{
			Name:        "get_table_info",
			Description: "Get detailed information about a table including columns, indexes, constraints, and size",
			Class:       policy.ClassRead,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Required: true, Description: "Table name"},
				schemaArg,
			},
			Build: func(args Args) ([]Statement, error) {
				p := []any{args.String("schema", "public"), args.String("table_name", "")}
				return []Statement{
					{SQL: listColumnsSQL, Params: p, WantRows: true},
					{SQL: tableIndexesSQL, Params: p, WantRows: true},
					{SQL: tableConstraintsSQL, Params: p, WantRows: true},
					{SQL: tableSizeSQL, Params: p, WantRows: true},
				}, nil
			},
			Normalize: func(batch []*StatementResult) (*Result, error) {
				size := any("unknown")
				if len(batch[3].Rows) > 0 {
					size = batch[3].Rows[0]["total_size"]
				}
				res := rowsResult(batch[0])
				res.Data = map[string]any{
					"indexes":     batch[1].Rows,
					"constraints": batch[2].Rows,
					"size":        size,
				}
				return res, nil
			},
		},
		{
			Name:        "get_database_size",
			Description: "Get size information for the database and its largest tables",
			Class:       policy.ClassRead,
			Build: func(args Args) ([]Statement, error) {
				return []Statement{
					{SQL: databaseSizeTablesSQL, WantRows: true},
					{SQL: databaseSizeSQL, WantRows: true},
				}, nil
			},
			Normalize: func(batch []*StatementResult) (*Result, error) {
				res := rowsResult(batch[0])
				dbSize := any("unknown")
				if len(batch[1].Rows) > 0 {
					dbSize = batch[1].Rows[0]["database_size"]
				}
				res.Data = map[string]any{"database_size": dbSize}
				return res, nil
			},
		},
		{
			Name:        "get_active_connections",
			Description: "Get information about active database connections",
			Class:       policy.ClassRead,
			Build:       singleRead(activeConnectionsSQL),
		},
		{
			Name:        "test_connection",
			Description: "Test the database connection",
			Class:       policy.ClassRead,
			Build:       singleRead(testConnectionSQL),
			Normalize: func(batch []*StatementResult) (*Result, error) {
				if len(batch[0].Rows) == 0 {
					return nil, fmt.Errorf("test_connection: empty result")
				}
				row := batch[0].Rows[0]
				return &Result{
					RowCount: 1,
					Data: map[string]any{
						"status":   "connected",
						"version":  row["version"],
						"database": row["database"],
						"user":     row["username"],
						"host":     conn.Host,
						"port":     conn.Port,
					},
				}, nil
			},
		},
	}
}

// singleRead builds a zero-argument read statement.
func singleRead(sql string) func(Args) ([]Statement, error) {
	return func(Args) ([]Statement, error) {
		return []Statement{{SQL: sql, WantRows: true}}, nil
	}
}
