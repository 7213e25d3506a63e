package ssh

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/types"
)

// Runner is the remote execution channel every orchestration step speaks
// over. Implementations stream command output line by line as it arrives;
// buffered output has hidden fatal errors behind silent hangs before.
type Runner interface {
	// Run executes a command, streaming its output. The command's wall clock
	// is bounded; on timeout the step fails rather than hanging.
	Run(ctx context.Context, command string) error
	// Output executes a command and returns its stdout.
	Output(ctx context.Context, command string) (string, error)
	// WriteFile atomically replaces path with content via a same-directory
	// temp file and rename, so a connection drop never leaves a partial file.
	WriteFile(ctx context.Context, path, content string) error
	Host() string
}

// SSHClient runs commands on the single managed host.
type SSHClient struct {
	client  *ssh.Client
	host    string
	timeout time.Duration
	out     io.Writer
}

// NewSSHClient dials the managed host using the operator's key. Dial failures
// come back as RemoteUnreachableError: the whole run fails before any remote
// mutation.
func NewSSHClient(remote config.RemoteHost, out io.Writer) (*SSHClient, error) {
	keyPath := remote.KeyPath

	if strings.HasPrefix(keyPath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		keyPath = filepath.Join(homeDir, keyPath[1:])
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		if passphrase := os.Getenv("HOSTINGCTL_KEY_PASSPHRASE"); passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
	}

	cfg := &ssh.ClientConfig{
		User: remote.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", remote.Host, remote.Port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, &types.RemoteUnreachableError{Host: remote.Host, Err: err}
	}

	if out == nil {
		out = os.Stdout
	}

	return &SSHClient{
		client:  client,
		host:    remote.Host,
		timeout: remote.CommandTimeout.Std(),
		out:     out,
	}, nil
}

func (s *SSHClient) Host() string { return s.host }

func (s *SSHClient) Run(ctx context.Context, command string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.client.NewSession()
	if err != nil {
		return &types.RemoteUnreachableError{Host: s.host, Err: err}
	}
	defer session.Close()

	var stderrTail tailBuffer
	session.Stdout = s.out
	session.Stderr = io.MultiWriter(s.out, &stderrTail)

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("remote command failed: %w (stderr: %s)", err, stderrTail.String())
		}
		return nil
	case <-ctx.Done():
		// The remote side may still complete after this; the caller treats a
		// timed-out step as unknown outcome and re-verifies via health check.
		session.Close()
		return fmt.Errorf("remote command timed out after %s: %w", s.timeout, ctx.Err())
	}
}

func (s *SSHClient) Output(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.client.NewSession()
	if err != nil {
		return "", &types.RemoteUnreachableError{Host: s.host, Err: err}
	}
	defer session.Close()

	var stdout bytes.Buffer
	var stderrTail tailBuffer
	session.Stdout = &stdout
	session.Stderr = &stderrTail

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("remote command failed: %w (stderr: %s)", err, stderrTail.String())
		}
		return stdout.String(), nil
	case <-ctx.Done():
		session.Close()
		return stdout.String(), fmt.Errorf("remote command timed out after %s: %w", s.timeout, ctx.Err())
	}
}

// WriteFile ships content base64-encoded to dodge shell quoting, writes it to
// a temp file in the target directory and renames into place. Rename on the
// same filesystem is atomic, so readers never observe a half-written file.
func (s *SSHClient) WriteFile(ctx context.Context, path, content string) error {
	if err := s.Run(ctx, writeFileCommand(path, content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeFileCommand builds the remote pipeline behind WriteFile. Unit files
// carry credentials in Environment lines, so the mode is root-only.
func writeFileCommand(path, content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	tmp := path + ".hostingctl.tmp"

	return fmt.Sprintf(
		"echo '%s' | base64 -d | sudo tee %s > /dev/null && sudo chmod 600 %s && sudo mv -f %s %s",
		encoded, tmp, tmp, tmp, path,
	)
}

func (s *SSHClient) Close() error {
	return s.client.Close()
}

// tailBuffer keeps the last chunk of stderr for failure excerpts.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 512

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
