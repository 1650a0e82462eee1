// Package extproc runs external maintenance utilities (pg_dump, pg_restore)
// with bounded execution time. Backup and restore cannot run inside a pooled
// transactional connection, so they go through this side channel instead;
// dispatch, policy, and audit still apply upstream.
package extproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Config is the runner's own config type.
type Config struct {
	// DefaultTimeout bounds each run when the caller's context carries no
	// earlier deadline. 0 means 1 hour.
	DefaultTimeout time.Duration
}

// Result captures a completed run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external commands. Safe for concurrent use.
type Runner struct {
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// NewRunner creates a Runner. Panics on negative timeout.
func NewRunner(config Config, logger zerolog.Logger) *Runner {
	if config.DefaultTimeout < 0 {
		panic("extproc: default timeout must be >= 0")
	}
	timeout := config.DefaultTimeout
	if timeout == 0 {
		timeout = time.Hour
	}
	return &Runner{defaultTimeout: timeout, logger: logger}
}

// Run executes name with args. Command and args are passed separately — no
// shell interpretation. extraEnv entries ("KEY=value") are appended to the
// inherited environment, which is how PGPASSWORD reaches pg_dump without
// appearing in the argument list.
func (r *Runner) Run(ctx context.Context, name string, args []string, extraEnv []string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.defaultTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if stderr.Len() > 0 {
			r.logger.Warn().Str("command", name).Str("stderr", stderr.String()).Msg("external command stderr output")
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("external command timed out after %s: %s", duration.Round(time.Millisecond), name)
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("external command failed (%s): %s", name, stderr.String())
		}
		return nil, fmt.Errorf("external command failed (%s): %w", name, err)
	}

	r.logger.Info().
		Str("command", name).
		Dur("duration", duration).
		Msg("external command completed")

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}, nil
}
