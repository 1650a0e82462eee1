package main

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/pgops-mcp/pgops"
)

const (
	defaultConfigPath = ".pgops/config.json"
	defaultServerPort = 8000
	mcpEndpoint       = "/mcp"
)

func runServe() error {
	ctx := context.Background()

	// .env is a convenience for development; absence is not an error.
	_ = godotenv.Load()

	config, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(config.Logging)

	if config.Connection.Password == "" {
		config.Connection.Password = promptPassword(fmt.Sprintf("Password for %s: ", config.Connection.User))
	}

	d, err := pgops.New(ctx, config.Connection, config.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer d.Close(ctx)

	logger.Info().Msg("testing database connection")
	if err := d.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().
		Bool("read_only", d.ReadOnly()).
		Int("tools", d.Registry().Len()).
		Msg("database connection test successful")

	apiKey, generated := resolveAPIKey()
	if generated {
		logger.Warn().
			Str("api_key", apiKey).
			Msg("PGOPS_API_KEY not set; generated a one-time key — clients must send it as a Bearer token")
	}

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("client connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("pgopsd", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	pgops.RegisterMCPTools(mcpServer, d)

	addr := fmt.Sprintf(":%d", config.Server.Port)
	mux := http.NewServeMux()

	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			panic("pgopsd: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(config.Server.HealthCheckPath, healthHandler(d))
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpEndpoint),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the handler when a custom *http.Server is
	// supplied, so wire the endpoint here, behind the auth check.
	mux.Handle(mcpEndpoint, requireBearer(apiKey, streamableServer))

	logger.Info().Int("port", config.Server.Port).Msg("starting pgopsd server")
	return streamableServer.Start(addr)
}

// healthHandler reports process liveness and database reachability.
func healthHandler(d *pgops.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := d.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":             status,
			"connections_in_use": d.InUse(),
			"read_only":          d.ReadOnly(),
		})
	}
}

// requireBearer rejects requests whose Authorization header does not carry
// the expected Bearer token.
func requireBearer(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid or missing API key"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveAPIKey returns the configured API key, generating a random one when
// the environment does not provide it. The generated flag tells the caller
// to surface the key so clients can connect at all.
func resolveAPIKey() (key string, generated bool) {
	if key := os.Getenv("PGOPS_API_KEY"); key != "" {
		return key, false
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("pgopsd: failed to generate API key: %v", err))
	}
	return hex.EncodeToString(buf), true
}

// loadServerConfig reads the optional JSON config file and layers the
// POSTGRES_* environment on top. Credentials only ever come from the
// environment or the interactive prompt, never the file.
func loadServerConfig() (*pgops.ServerConfig, error) {
	configPath := os.Getenv("PGOPS_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	var config pgops.ServerConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only operation.
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	applyEnv(&config)

	if config.Connection.Host == "" {
		config.Connection.Host = "localhost"
	}
	if config.Connection.Port == 0 {
		config.Connection.Port = 5432
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaultServerPort
	}
	if config.Server.Port < 0 {
		panic("pgopsd: server.port must be > 0")
	}
	return &config, nil
}

func applyEnv(config *pgops.ServerConfig) {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		config.Connection.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Connection.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		config.Connection.DBName = v
	}
	if v := os.Getenv("POSTGRES_SSLMODE"); v != "" {
		config.Connection.SSLMode = v
	}
	config.Connection.User = os.Getenv("POSTGRES_USER")
	config.Connection.Password = os.Getenv("POSTGRES_PASSWORD")
	if v := os.Getenv("POSTGRES_READONLY"); v != "" {
		config.ReadOnly = v == "1" || strings.EqualFold(v, "true")
	}
}

func setupLogger(config pgops.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
