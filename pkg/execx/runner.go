// Package execx runs external commands for self21ctl. The container engine's
// extended builder has no stable API surface, so it is driven through its CLI;
// this package is the single place subprocess invocation happens.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/self21/self21ctl/pkg/logging"
)

// Runner executes external commands. The real implementation shells out;
// tests substitute a fake that records invocations.
type Runner interface {
	// Run executes the command with inherited stdout/stderr, blocking until
	// it exits. A non-zero exit status is returned as an error.
	Run(ctx context.Context, dir string, name string, args ...string) error
	// Output executes the command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// LookPath reports whether the named binary is on PATH.
	LookPath(name string) error
}

// ShellRunner is the subprocess-backed Runner.
type ShellRunner struct {
	logger *slog.Logger
}

// NewShellRunner creates a ShellRunner. A nil logger discards command logs.
func NewShellRunner(logger *slog.Logger) *ShellRunner {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ShellRunner{logger: logging.WithComponent(logger, "exec")}
}

func (r *ShellRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	r.logger.Debug("executing", "cmd", quoteArgs(name, args), "dir", dir)

	if err := cmd.Run(); err != nil {
		return wrapRunError(err, name, args)
	}
	return nil
}

func (r *ShellRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("executing", "cmd", quoteArgs(name, args))

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(stderr.String()), err)
		}
		return "", wrapRunError(err, name, args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *ShellRunner) LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}

// wrapRunError attaches the printable command line and, where available, the
// exit status to a subprocess failure.
func wrapRunError(err error, name string, args []string) error {
	full := quoteArgs(name, args)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("command failed (exit=%d): %s: %w", exitErr.ExitCode(), full, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("command canceled: %s: %w", full, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("command timed out: %s: %w", full, err)
	}
	return fmt.Errorf("running %s: %w", full, err)
}

// quoteArgs returns a printable, shell-safe representation of the command.
func quoteArgs(name string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'`$\\*?[]{}()<>|&;") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " ")
}
