// Package xcodebuild builds xcodebuild command lines and runs them locally or
// on a remote build host.
package xcodebuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// stderrTailLimit bounds how much of stderr a TaskError keeps.
const stderrTailLimit = 4096

// DefaultWaitDelay bounds how long Run waits for output pipes after the
// context ends. Helper processes started by xcodebuild inherit stdout and
// would otherwise hold Run open until they exit.
const DefaultWaitDelay = 2 * time.Second

// Runner performs a single xcodebuild invocation and returns its stdout.
// Implementations must honor ctx cancellation and must not retry.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) ([]byte, error)

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Command) ([]byte, error) {
	return f(ctx, cmd)
}

// TaskError reports an invocation that could not be started or exited
// unsuccessfully.
type TaskError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	if e.Err != nil && e.ExitCode == 0 {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg = fmt.Sprintf("%s: %s", msg, tail)
	}
	return msg
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// LocalRunner runs xcodebuild on this machine.
type LocalRunner struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

// NewLocalRunner creates a runner executing in the current directory.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes cmd and returns its stdout. Stderr is kept only for errors.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.ToolPath(), cmd.Argv()...)
	c.WaitDelay = DefaultWaitDelay
	if r.WaitDelay > 0 {
		c.WaitDelay = r.WaitDelay
	}
	if r.Dir != "" {
		c.Dir = r.Dir
	}
	if len(r.Env) > 0 {
		c.Env = append(c.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		// A cancelled context surfaces as a killed process; report the
		// context error so callers can tell a deadline from a tool failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		taskErr := &TaskError{
			Command: cmd.String(),
			Stderr:  tail(stderr.String(), stderrTailLimit),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			taskErr.ExitCode = exitErr.ExitCode()
		}
		return nil, taskErr
	}
	return stdout.Bytes(), nil
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
