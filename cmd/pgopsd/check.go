package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/pgops-mcp/pgops"
)

// runCheck validates the effective configuration and runs a connection test
// against the database. It exits non-zero on the first failure so it can
// gate deploys.
func runCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = godotenv.Load()

	config, err := loadServerConfig()
	if err != nil {
		return err
	}
	fmt.Printf("config:     ok (host=%s port=%d dbname=%s read_only=%v)\n",
		config.Connection.Host, config.Connection.Port, config.Connection.DBName, config.ReadOnly)

	if config.Connection.User == "" {
		return fmt.Errorf("POSTGRES_USER is not set")
	}
	if config.Connection.Password == "" {
		config.Connection.Password = promptPassword(fmt.Sprintf("Password for %s: ", config.Connection.User))
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	d, err := pgops.New(ctx, config.Connection, config.Config, logger)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	defer d.Close(ctx)

	if err := d.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println("ping:       ok")

	res, err := d.Dispatch(ctx, "test_connection", nil)
	if err != nil {
		return fmt.Errorf("test_connection: %w", err)
	}
	fmt.Printf("connection: ok (version=%v database=%v user=%v)\n",
		res.Data["version"], res.Data["database"], res.Data["user"])
	fmt.Printf("tools:      %d registered\n", d.Registry().Len())
	return nil
}
