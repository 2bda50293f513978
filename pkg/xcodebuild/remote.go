package xcodebuild

import (
	"context"
	"errors"

	"github.com/xcsettings/xcsettings/pkg/transports/ssh"
)

// RemoteExecutor runs an argument vector on another machine.
// *ssh.Client satisfies it.
type RemoteExecutor interface {
	Run(ctx context.Context, argv []string) (stdout []byte, stderr []byte, err error)
}

// RemoteRunner runs xcodebuild on a remote build host.
type RemoteRunner struct {
	exec RemoteExecutor
}

// NewRemoteRunner wraps exec as a Runner.
func NewRemoteRunner(exec RemoteExecutor) *RemoteRunner {
	return &RemoteRunner{exec: exec}
}

// Run executes cmd remotely. Non-zero exits become *TaskError; transport
// failures are wrapped in a *TaskError with ExitCode 0.
func (r *RemoteRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	argv := append([]string{cmd.ToolPath()}, cmd.Argv()...)

	stdout, stderr, err := r.exec.Run(ctx, argv)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		taskErr := &TaskError{
			Command: cmd.String(),
			Stderr:  tail(string(stderr), stderrTailLimit),
			Err:     err,
		}
		var transportErr *ssh.TransportError
		if errors.As(err, &transportErr) {
			taskErr.ExitCode = transportErr.ExitCode
		}
		return nil, taskErr
	}
	return stdout, nil
}
