package pgops

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgops-mcp/pgops/internal/extproc"
)

func TestVacuumAnalyzeBuild(t *testing.T) {
	stmts := mustBuild(t, "vacuum_analyze", Args{})
	if stmts[0].SQL != "VACUUM (ANALYZE)" {
		t.Errorf("sql = %q", stmts[0].SQL)
	}

	stmts = mustBuild(t, "vacuum_analyze", Args{"table_name": "users", "full": true})
	if stmts[0].SQL != "VACUUM (FULL, ANALYZE) public.users" {
		t.Errorf("sql = %q", stmts[0].SQL)
	}

	if def := mustTool(t, "vacuum_analyze"); !def.NoTransaction {
		t.Error("VACUUM must not run inside a transaction block")
	}

	buildErr(t, "vacuum_analyze", Args{"table_name": "users; DROP TABLE users"})
}

func TestKillConnectionsBuild(t *testing.T) {
	stmts := mustBuild(t, "kill_connections", Args{})
	sql := stmts[0].SQL
	// The server must never terminate itself or its sibling pool
	// connections.
	if !strings.Contains(sql, "pid <> pg_backend_pid()") {
		t.Errorf("sql does not exclude the executing backend:\n%s", sql)
	}
	if !strings.Contains(sql, "application_name <> current_setting('application_name')") {
		t.Errorf("sql does not exclude sibling pool connections:\n%s", sql)
	}
	if stmts[0].Params[0] != nil {
		t.Errorf("default database param = %v, want nil for COALESCE", stmts[0].Params[0])
	}

	stmts = mustBuild(t, "kill_connections", Args{"database": "otherdb"})
	if stmts[0].Params[0] != "otherdb" {
		t.Errorf("params = %v", stmts[0].Params)
	}

	buildErr(t, "kill_connections", Args{"database": "db; DROP DATABASE db"})
}

func TestKillConnectionsNormalize(t *testing.T) {
	def := mustTool(t, "kill_connections")
	res, err := def.Normalize([]*StatementResult{{
		Rows: []map[string]any{
			{"terminated": true, "pid": int32(101)},
			{"terminated": false, "pid": int32(102)},
			{"terminated": true, "pid": int32(103)},
		},
	}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Data["terminated_count"] != 2 {
		t.Errorf("terminated_count = %v, want 2", res.Data["terminated_count"])
	}
}

const testBackupDir = "/tmp/pgops-test-backups"

func testSideEnv() *SideEnv {
	return &SideEnv{
		Runner:    extproc.NewRunner(extproc.Config{DefaultTimeout: 10 * time.Second}, zerolog.Nop()),
		Conn:      ConnectionConfig{Host: "localhost", Port: 5432, DBName: "testdb", User: "app", Password: "pw"},
		BackupDir: testBackupDir,
		PgDump:    "echo",
		PgRestore: "echo",
	}
}

func TestBackupDefaultOutputPath(t *testing.T) {
	res, err := runBackup(context.Background(), testSideEnv(), Args{"format": "plain"})
	if err != nil {
		t.Fatalf("runBackup: %v", err)
	}
	path, _ := res.Data["output_path"].(string)
	if !strings.HasPrefix(path, testBackupDir+"/testdb_") {
		t.Errorf("output path = %q, want under backup dir with database prefix", path)
	}
	if !strings.HasSuffix(path, ".sql") {
		t.Errorf("output path = %q, want .sql for plain format", path)
	}
}

func TestBackupRejectsBadInput(t *testing.T) {
	if _, err := runBackup(context.Background(), testSideEnv(), Args{"format": "zip"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := runBackup(context.Background(), testSideEnv(), Args{
		"tables": []any{"users; DROP TABLE users"},
	}); err == nil {
		t.Error("expected error for table name injection")
	}
}

func TestRestoreRuns(t *testing.T) {
	res, err := runRestore(context.Background(), testSideEnv(), Args{
		"input_path": "/tmp/backup.dump",
		"clean":      true,
	})
	if err != nil {
		t.Fatalf("runRestore: %v", err)
	}
	if res.Data["input_path"] != "/tmp/backup.dump" {
		t.Errorf("data = %v", res.Data)
	}
}
