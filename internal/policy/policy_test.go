package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestEnforcer(readOnly bool) *Enforcer {
	return NewEnforcer(Config{
		ReadOnly:       readOnly,
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     300 * time.Second,
	})
}

func TestNewEnforcerPanicsOnInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"zero default timeout", Config{MaxTimeout: time.Minute}},
		{"max below default", Config{DefaultTimeout: time.Minute, MaxTimeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			NewEnforcer(tt.config)
		})
	}
}

func TestCheckClass(t *testing.T) {
	rw := newTestEnforcer(false)
	ro := newTestEnforcer(true)

	for _, class := range []Class{ClassRead, ClassWrite, ClassAdmin, ClassMaintenance} {
		if err := rw.CheckClass(class); err != nil {
			t.Errorf("read-write mode, class %s: %v", class, err)
		}
	}

	if err := ro.CheckClass(ClassRead); err != nil {
		t.Errorf("read-only mode, read class: %v", err)
	}
	for _, class := range []Class{ClassWrite, ClassAdmin, ClassMaintenance} {
		if err := ro.CheckClass(class); !errors.Is(err, ErrReadOnly) {
			t.Errorf("read-only mode, class %s: got %v, want ErrReadOnly", class, err)
		}
	}
}

func TestTimeoutClamping(t *testing.T) {
	e := newTestEnforcer(false)

	tests := []struct {
		override time.Duration
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{10 * time.Second, 10 * time.Second},
		{300 * time.Second, 300 * time.Second},
		{3600 * time.Second, 300 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Timeout(tt.override); got != tt.want {
			t.Errorf("Timeout(%v) = %v, want %v", tt.override, got, tt.want)
		}
	}
}

func TestDeadlineSetsContextDeadline(t *testing.T) {
	e := newTestEnforcer(false)
	ctx, cancel := e.Deadline(context.Background(), 5*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context has no deadline")
	}
	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > 5*time.Second {
		t.Errorf("deadline %v from now, want within (0, 5s]", remaining)
	}
}

func TestCheckStatement(t *testing.T) {
	e := newTestEnforcer(false)

	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"bound params", "SELECT * FROM users WHERE id = $1 AND name = $2", false},
		{"question mark in string literal", "SELECT * FROM t WHERE q = 'what?'", false},
		{"percent in string literal", "SELECT * FROM t WHERE name LIKE '%son'", false},
		{"quoted identifier with question mark", `SELECT "a?b" FROM t`, false},
		{"modulo operator", "SELECT 10 % 3", false},
		{"unbound question mark", "SELECT * FROM users WHERE id = ?", true},
		{"printf string verb", "SELECT * FROM users WHERE name = '%s'", false},
		{"printf verb outside quotes", "SELECT * FROM users WHERE name = %s", true},
		{"printf int verb", "DELETE FROM t WHERE id = %d", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CheckStatement(tt.sql)
			if tt.wantErr && !errors.Is(err, ErrUnsafeStatement) {
				t.Errorf("CheckStatement(%q) = %v, want ErrUnsafeStatement", tt.sql, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("CheckStatement(%q) = %v, want nil", tt.sql, err)
			}
		})
	}
}

func TestCheckRawSQL(t *testing.T) {
	e := newTestEnforcer(false)

	tests := []struct {
		name       string
		sql        string
		selectOnly bool
		wantErr    bool
	}{
		{"plain select", "SELECT 1", true, false},
		{"select with params", "SELECT * FROM users WHERE id = $1", true, false},
		{"cte select", "WITH x AS (SELECT 1) SELECT * FROM x", true, false},
		{"values", "VALUES (1), (2)", true, false},
		{"explain", "EXPLAIN SELECT 1", true, false},
		{"show", "SHOW server_version", true, false},
		{"insert under select-only", "INSERT INTO t VALUES (1)", true, true},
		{"delete under select-only", "DELETE FROM t", true, true},
		{"insert allowed when unrestricted", "INSERT INTO t VALUES (1)", false, false},
		{"multi-statement", "SELECT 1; SELECT 2", true, true},
		{"piggybacked drop", "SELECT 1; DROP TABLE users", false, true},
		{"syntax error", "SELEC 1", true, true},
		{"empty", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CheckRawSQL(tt.sql, tt.selectOnly)
			if tt.wantErr && !errors.Is(err, ErrInvalidSQL) {
				t.Errorf("CheckRawSQL(%q) = %v, want ErrInvalidSQL", tt.sql, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("CheckRawSQL(%q) = %v, want nil", tt.sql, err)
			}
		})
	}
}
