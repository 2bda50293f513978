// Package ssh runs commands on a remote build host over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// signalGrace is how long a cancelled command gets between SIGTERM and SIGKILL.
const signalGrace = 100 * time.Millisecond

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "run")
	Op string

	// Err is the underlying error
	Err error

	// ExitCode is the remote exit status when the command ran and failed.
	ExitCode int

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// Client holds one SSH connection to a build host and runs commands on it.
// It is safe for concurrent use; each command gets its own session.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewClient validates config and returns an unconnected client.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("host", config.Address()).Logger(),
	}, nil
}

// Connect dials the remote host unless a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connectLocked(ctx)
	return err
}

func (c *Client) connectLocked(ctx context.Context) (*ssh.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	c.logger.Debug().Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		// The dial goroutine may still succeed; close what it produces.
		go func() {
			select {
			case client := <-connChan:
				_ = client.Close()
			case <-errChan:
			}
		}()
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connChan:
		c.client = client
		c.logger.Info().Msg("SSH connection established")
		return client, nil
	}
}

// Close closes the connection. A closed client reconnects on the next Run.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Run executes argv on the remote host, connecting first if needed, and
// returns the captured stdout and stderr. Arguments are shell-quoted and
// run from Config.WorkDir when set. Cancelling ctx signals the remote
// process and returns ctx.Err().
func (c *Client) Run(ctx context.Context, argv []string) (stdout []byte, stderr []byte, err error) {
	if len(argv) == 0 {
		return nil, nil, &TransportError{Op: "run", Err: errors.New("empty command")}
	}

	c.mu.Lock()
	client, err := c.connectLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		// Most likely a dropped connection; force a redial next time.
		c.mu.Lock()
		if c.client == client {
			_ = c.client.Close()
			c.client = nil
		}
		c.mu.Unlock()
		return nil, nil, &TransportError{
			Op:          "run",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	command := ShellJoin(argv)
	if c.config.WorkDir != "" {
		command = "cd " + ShellQuote(c.config.WorkDir) + " && " + command
	}

	start := time.Now()
	c.logger.Debug().Str("command", command).Msg("running remote command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(command)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(signalGrace)
		_ = session.Signal(ssh.SIGKILL)
		return nil, nil, ctx.Err()
	case execErr = <-doneChan:
	}

	c.logger.Debug().
		Int("stdout_len", stdoutBuf.Len()).
		Int("stderr_len", stderrBuf.Len()).
		Dur("duration", time.Since(start)).
		Err(execErr).
		Msg("remote command completed")

	if execErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(execErr, &exitErr) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), &TransportError{
				Op:       "run",
				Err:      fmt.Errorf("command exited with code %d", exitErr.ExitStatus()),
				ExitCode: exitErr.ExitStatus(),
			}
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), &TransportError{Op: "run", Err: execErr, IsTemporary: true}
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellJoin quotes each argument and joins them with spaces.
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = ShellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
