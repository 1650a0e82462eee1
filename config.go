package pgops

import (
	"fmt"
	"strings"
)

// Config is the base configuration used by library mode via New().
// Immutable after startup; referenced by the policy enforcer and the pool
// for the process lifetime.
type Config struct {
	Pool        PoolConfig        `json:"pool"`
	Query       QueryConfig       `json:"query"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	ReadOnly    bool              `json:"read_only"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds database connection parameters. User and Password
// come from the environment, never the config file.
type ConnectionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	User     string `json:"-"`
	Password string `json:"-"`
}

// ConnString builds a keyword/value pgx connection string.
func (c ConnectionConfig) ConnString() string {
	parts := []string{}
	if c.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", c.Host))
	}
	if c.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	if c.DBName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", c.DBName))
	}
	if c.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", c.User))
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", c.SSLMode))
	}
	return strings.Join(parts, " ")
}

// PoolConfig holds connection pool settings. Duration fields use Go
// duration strings ("30m", "1h").
type PoolConfig struct {
	MaxConns             int    `json:"max_conns"`
	MinConns             int    `json:"min_conns"`
	MaxConnLifetime      string `json:"max_conn_lifetime"`
	MaxConnIdleTime      string `json:"max_conn_idle_time"`
	HealthCheckPeriod    string `json:"health_check_period"`
	MaxWaiters           int    `json:"max_waiters"`
	ShutdownGraceSeconds int    `json:"shutdown_grace_seconds"`
}

// QueryConfig holds statement execution settings. DefaultTimeoutSeconds is
// bound to every statement; callers may override per call up to
// MaxTimeoutSeconds.
type QueryConfig struct {
	DefaultTimeoutSeconds int `json:"default_timeout_seconds"`
	MaxTimeoutSeconds     int `json:"max_timeout_seconds"`
}

// MaintenanceConfig holds settings for the external-process side channel.
type MaintenanceConfig struct {
	BackupDir              string `json:"backup_dir"`
	ExternalTimeoutSeconds int    `json:"external_timeout_seconds"`
	PgDumpPath             string `json:"pg_dump_path"`
	PgRestorePath          string `json:"pg_restore_path"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
	AllowedOrigins     string `json:"allowed_origins"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}
