package pgops

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pgops-mcp/pgops/internal/ident"
	"github.com/pgops-mcp/pgops/internal/policy"
)

const killConnectionsSQL = `
SELECT pg_terminate_backend(pid) AS terminated, pid, usename AS username, application_name
FROM pg_stat_activity
WHERE datname = COALESCE($1, current_database())
  AND pid <> pg_backend_pid()
  AND application_name <> current_setting('application_name');
`

// dumpFormats maps the tool-facing format names to pg_dump -F values.
var dumpFormats = map[string]string{
	"custom":    "c",
	"plain":     "p",
	"directory": "d",
	"tar":       "t",
}

func maintenanceTools() []*ToolDefinition {
	return []*ToolDefinition{
		{
			Name:          "vacuum_analyze",
			Description:   "Run VACUUM ANALYZE on a table or the whole database",
			Class:         policy.ClassMaintenance,
			NoTransaction: true,
			Args: []ArgSpec{
				{Name: "table_name", Type: ArgString, Description: "Table to vacuum (omit for the whole database)"},
				{Name: "schema", Type: ArgString, Description: "Schema name (defaults to 'public')"},
				{Name: "full", Type: ArgBool, Description: "Run VACUUM FULL (rewrites the table, takes an exclusive lock)"},
			},
			Build: func(args Args) ([]Statement, error) {
				opts := "ANALYZE"
				if args.Bool("full", false) {
					opts = "FULL, ANALYZE"
				}
				sql := fmt.Sprintf("VACUUM (%s)", opts)
				if table := args.String("table_name", ""); table != "" {
					schema := args.String("schema", "public")
					if err := checkIdents("schema", schema, "table_name", table); err != nil {
						return nil, err
					}
					sql += " " + ident.Qualify(schema, table)
				}
				return []Statement{{SQL: sql}}, nil
			},
			Normalize: func([]*StatementResult) (*Result, error) {
				return messageResult("vacuum completed"), nil
			},
		},
		{
			Name:        "kill_connections",
			Description: "Terminate other connections to a database. The current session and sibling pool connections are never terminated.",
			Class:       policy.ClassMaintenance,
			Args: []ArgSpec{
				{Name: "database", Type: ArgString, Description: "Target database (defaults to the current database)"},
			},
			Build: func(args Args) ([]Statement, error) {
				var db any
				if d := args.String("database", ""); d != "" {
					if err := ident.Check("database", d); err != nil {
						return nil, err
					}
					db = d
				}
				return []Statement{{SQL: killConnectionsSQL, Params: []any{db}, WantRows: true}}, nil
			},
			Normalize: func(batch []*StatementResult) (*Result, error) {
				terminated := 0
				for _, row := range batch[0].Rows {
					if t, ok := row["terminated"].(bool); ok && t {
						terminated++
					}
				}
				res := rowsResult(batch[0])
				res.Message = fmt.Sprintf("terminated %d connection(s)", terminated)
				res.Data = map[string]any{"terminated_count": terminated}
				return res, nil
			},
		},
		{
			Name:        "backup_database",
			Description: "Back up the database using pg_dump",
			Class:       policy.ClassMaintenance,
			Args: []ArgSpec{
				{Name: "output_path", Type: ArgString, Description: "Destination path (defaults to a timestamped file in the configured backup directory)"},
				{Name: "format", Type: ArgString, Description: "Dump format: custom, plain, directory, or tar (defaults to custom)"},
				{Name: "tables", Type: ArgArray, Description: "Restrict the dump to these tables"},
				{Name: "schema_only", Type: ArgBool, Description: "Dump only the schema, no data"},
			},
			SideChannel: runBackup,
		},
		{
			Name:        "restore_database",
			Description: "Restore the database from a pg_restore-compatible dump",
			Class:       policy.ClassMaintenance,
			Args: []ArgSpec{
				{Name: "input_path", Type: ArgString, Required: true, Description: "Path to the dump file or directory"},
				{Name: "clean", Type: ArgBool, Description: "Drop database objects before recreating them"},
			},
			SideChannel: runRestore,
		},
	}
}

// connArgs are the -h/-p/-U/-d flags shared by pg_dump and pg_restore.
func connArgs(conn ConnectionConfig) []string {
	args := []string{}
	if conn.Host != "" {
		args = append(args, "-h", conn.Host)
	}
	if conn.Port > 0 {
		args = append(args, "-p", strconv.Itoa(conn.Port))
	}
	if conn.User != "" {
		args = append(args, "-U", conn.User)
	}
	if conn.DBName != "" {
		args = append(args, "-d", conn.DBName)
	}
	return args
}

func passwordEnv(conn ConnectionConfig) []string {
	if conn.Password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + conn.Password}
}

func runBackup(ctx context.Context, env *SideEnv, args Args) (*Result, error) {
	format := args.String("format", "custom")
	formatFlag, ok := dumpFormats[format]
	if !ok {
		return nil, fmt.Errorf("format must be one of: custom, plain, directory, tar")
	}

	output := args.String("output_path", "")
	if output == "" {
		ext := ".dump"
		switch format {
		case "plain":
			ext = ".sql"
		case "tar":
			ext = ".tar"
		case "directory":
			ext = ""
		}
		name := fmt.Sprintf("%s_%s%s", env.Conn.DBName, time.Now().Format("20060102_150405"), ext)
		output = filepath.Join(env.BackupDir, name)
	}

	cmdArgs := append(connArgs(env.Conn), "-F", formatFlag, "-f", output)
	if args.Bool("schema_only", false) {
		cmdArgs = append(cmdArgs, "--schema-only")
	}
	for i, t := range args.Array("tables") {
		s, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("tables[%d] must be a string", i)
		}
		if err := ident.Check(fmt.Sprintf("tables[%d]", i), s); err != nil {
			return nil, err
		}
		cmdArgs = append(cmdArgs, "-t", s)
	}

	res, err := env.Runner.Run(ctx, env.PgDump, cmdArgs, passwordEnv(env.Conn))
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: "backup completed",
		Data: map[string]any{
			"output_path": output,
			"format":      format,
			"duration_ms": res.Duration.Milliseconds(),
		},
	}, nil
}

func runRestore(ctx context.Context, env *SideEnv, args Args) (*Result, error) {
	input := args.String("input_path", "")

	cmdArgs := connArgs(env.Conn)
	if args.Bool("clean", false) {
		cmdArgs = append(cmdArgs, "--clean", "--if-exists")
	}
	cmdArgs = append(cmdArgs, input)

	res, err := env.Runner.Run(ctx, env.PgRestore, cmdArgs, passwordEnv(env.Conn))
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: "restore completed",
		Data: map[string]any{
			"input_path":  input,
			"duration_ms": res.Duration.Milliseconds(),
		},
	}, nil
}
