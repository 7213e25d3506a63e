package ui

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// RemoteOutput streams remote command output as it arrives, one prefixed
// line at a time. Nothing is buffered past a newline: a fatal remote error
// must be visible before the process exits, even when invoked
// non-interactively.
type RemoteOutput struct {
	mu      sync.Mutex
	host    string
	gray    *color.Color
	out     io.Writer
	partial bytes.Buffer
}

func NewRemoteOutput(host string) *RemoteOutput {
	return &RemoteOutput{
		host: host,
		gray: color.New(color.FgHiBlack),
		out:  os.Stdout,
	}
}

// Write satisfies io.Writer for SSH session stdout/stderr. Chunks are split
// on newlines; an unterminated tail is held until the next chunk completes
// the line.
func (r *RemoteOutput) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)
	for {
		line, err := r.partial.ReadString('\n')
		if err != nil {
			// Partial line; put it back and wait for more.
			r.partial.WriteString(line)
			break
		}
		r.writeLine(line[:len(line)-1])
	}

	return len(p), nil
}

// Flush emits any held partial line. Called when a command finishes so the
// last line of a crashing process is never swallowed.
func (r *RemoteOutput) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.partial.Len() > 0 {
		r.writeLine(r.partial.String())
		r.partial.Reset()
	}
}

func (r *RemoteOutput) writeLine(line string) {
	timestamp := time.Now().Format("15:04:05")
	r.gray.Fprintln(r.out, fmt.Sprintf("[%s] %s: %s", timestamp, r.host, line))
}
