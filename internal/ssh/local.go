package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/remoteds/hostingctl/internal/config"
)

// LocalRunner executes commands on the machine hostingctl itself runs on.
// It exists for deploys driven from the managed host, where an SSH hop back
// to localhost would only add a credential dependency.
type LocalRunner struct {
	timeout time.Duration
	out     io.Writer
}

func NewLocalRunner(timeout config.Duration, out io.Writer) *LocalRunner {
	if out == nil {
		out = os.Stdout
	}
	return &LocalRunner{timeout: timeout.Std(), out: out}
}

func (l *LocalRunner) Host() string { return "localhost" }

func (l *LocalRunner) Run(ctx context.Context, command string) error {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	var stderrTail tailBuffer
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Stdout = l.out
	cmd.Stderr = io.MultiWriter(l.out, &stderrTail)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("local command timed out after %s: %w", l.timeout, ctx.Err())
		}
		return fmt.Errorf("local command failed: %w (stderr: %s)", err, stderrTail.String())
	}
	return nil
}

func (l *LocalRunner) Output(ctx context.Context, command string) (string, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	var stdout bytes.Buffer
	var stderrTail tailBuffer
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderrTail

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), fmt.Errorf("local command timed out after %s: %w", l.timeout, ctx.Err())
		}
		return stdout.String(), fmt.Errorf("local command failed: %w (stderr: %s)", err, stderrTail.String())
	}
	return stdout.String(), nil
}

// WriteFile goes through the same sudo tee pipeline as the SSH client, so
// file ownership and mode match regardless of how the host is reached.
func (l *LocalRunner) WriteFile(ctx context.Context, path, content string) error {
	if err := l.Run(ctx, writeFileCommand(path, content)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (l *LocalRunner) Close() error { return nil }

func (l *LocalRunner) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}
