package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgops-mcp/pgops"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PGOPS_CONFIG_PATH", "PGOPS_API_KEY",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER",
		"POSTGRES_PASSWORD", "POSTGRES_SSLMODE", "POSTGRES_READONLY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PGOPS_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))

	config, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig: %v", err)
	}
	if config.Connection.Host != "localhost" || config.Connection.Port != 5432 {
		t.Errorf("connection defaults = %s:%d", config.Connection.Host, config.Connection.Port)
	}
	if config.Server.Port != defaultServerPort {
		t.Errorf("server port = %d, want %d", config.Server.Port, defaultServerPort)
	}
}

func TestLoadServerConfigFileAndEnvLayering(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"connection": {"host": "db.internal", "port": 5433, "dbname": "app"},
		"server": {"port": 9000},
		"read_only": false
	}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGOPS_CONFIG_PATH", configPath)
	t.Setenv("POSTGRES_HOST", "override.internal")
	t.Setenv("POSTGRES_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_READONLY", "true")

	config, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig: %v", err)
	}
	// Environment wins over the file.
	if config.Connection.Host != "override.internal" {
		t.Errorf("host = %q", config.Connection.Host)
	}
	if config.Connection.Port != 5433 || config.Connection.DBName != "app" {
		t.Errorf("file values lost: %+v", config.Connection)
	}
	if config.Connection.User != "svc" || config.Connection.Password != "pw" {
		t.Errorf("credentials not taken from environment")
	}
	if !config.ReadOnly {
		t.Error("POSTGRES_READONLY=true not applied")
	}
	if config.Server.Port != 9000 {
		t.Errorf("server port = %d", config.Server.Port)
	}
}

func TestLoadServerConfigRejectsMalformedFile(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGOPS_CONFIG_PATH", configPath)

	if _, err := loadServerConfig(); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestCredentialsNeverSerialized(t *testing.T) {
	// User and Password carry `json:"-"`: a config file cannot inject them
	// and a dumped config cannot leak them.
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.json")
	content := `{"connection": {"host": "h", "user": "smuggled", "password": "smuggled"}}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGOPS_CONFIG_PATH", configPath)

	config, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig: %v", err)
	}
	if config.Connection.User == "smuggled" || config.Connection.Password == "smuggled" {
		t.Error("credentials were read from the config file")
	}
}

func TestResolveAPIKey(t *testing.T) {
	clearEnv(t)

	key, generated := resolveAPIKey()
	if !generated {
		t.Error("expected a generated key without PGOPS_API_KEY")
	}
	if len(key) != 64 {
		t.Errorf("generated key length = %d, want 64 hex chars", len(key))
	}

	t.Setenv("PGOPS_API_KEY", "configured-key")
	key, generated = resolveAPIKey()
	if generated || key != "configured-key" {
		t.Errorf("key = %q generated = %v", key, generated)
	}
}

func TestRequireBearer(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := requireBearer("sekret", next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer sekret", http.StatusOK},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic sekret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	logger := setupLogger(pgops.LoggingConfig{Level: "debug"})
	if logger.GetLevel().String() != "debug" {
		t.Errorf("level = %s", logger.GetLevel())
	}
	logger = setupLogger(pgops.LoggingConfig{Level: "error", Format: "text"})
	if logger.GetLevel().String() != "error" {
		t.Errorf("level = %s", logger.GetLevel())
	}
}
