package commands

import (
	"errors"
	"os/exec"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitEnvironment = 3
)

// errCheckFailed is returned when policy violations reach the fail-on
// severity.
var errCheckFailed = errors.New("policy check failed")

// exitError pins the exit code of err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// configError marks err as a configuration or usage error.
func configError(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: ExitConfig, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
// Timeouts, a missing xcodebuild and unreachable build hosts are
// environment errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if buildsettings.IsTimeout(err) || errors.Is(err, exec.ErrNotFound) {
		return ExitEnvironment
	}

	var transportErr *ssh.TransportError
	if errors.As(err, &transportErr) && (transportErr.Op == "connect" || transportErr.ExitCode == 127) {
		return ExitEnvironment
	}

	return ExitFailure
}
