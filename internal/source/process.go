package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxDiagnosticBytes caps how much stderr output is logged or reported.
const maxDiagnosticBytes = 2048

// ProcessConfig holds configuration for a ProcessAdapter.
type ProcessConfig struct {
	// Name is the source name, used in errors and logs.
	Name string

	// Command is the program to run.
	Command string

	// Args are passed to the program.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the inherited environment.
	Env []string

	// Decoder parses stdout. Nil keeps the raw document.
	Decoder Decoder

	// Logger receives stderr output as warnings.
	Logger zerolog.Logger
}

// ProcessAdapter obtains a payload by running an external program and
// parsing its standard output.
type ProcessAdapter struct {
	cfg ProcessConfig
}

// NewProcessAdapter creates a new process-invocation adapter.
func NewProcessAdapter(cfg ProcessConfig) *ProcessAdapter {
	return &ProcessAdapter{cfg: cfg}
}

// Fetch runs the program once. Output on stderr is logged as a warning and
// does not fail the fetch when the exit status is zero and stdout parses.
func (a *ProcessAdapter) Fetch(ctx context.Context) (any, error) {
	cmd := exec.CommandContext(ctx, a.cfg.Command, a.cfg.Args...) //nolint:gosec // command comes from operator configuration
	cmd.Dir = a.cfg.Dir
	if len(a.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), a.cfg.Env...)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	diagnostic := truncate(strings.TrimSpace(stderr.String()), maxDiagnosticBytes)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = fmt.Errorf("%w (%v)", runErr, ctxErr)
		}
		if diagnostic != "" {
			runErr = fmt.Errorf("%w: %s", runErr, diagnostic)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, processFailed(a.cfg.Name, fmt.Errorf("exit status %d: %w", exitErr.ExitCode(), runErr))
		}
		return nil, processFailed(a.cfg.Name, runErr)
	}

	if diagnostic != "" {
		a.cfg.Logger.Warn().
			Str("source", a.cfg.Name).
			Str("stderr", diagnostic).
			Msg("source process wrote diagnostics")
	}

	a.cfg.Logger.Debug().
		Str("source", a.cfg.Name).
		Int("stdout_bytes", stdout.Len()).
		Dur("duration", duration).
		Msg("source process completed")

	return decode(a.cfg.Name, stdout.Bytes(), a.cfg.Decoder)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
