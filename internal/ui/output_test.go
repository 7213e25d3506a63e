package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutput() (*RemoteOutput, *bytes.Buffer) {
	color.NoColor = true
	buf := &bytes.Buffer{}
	r := NewRemoteOutput("apps.example.com")
	r.out = buf
	return r, buf
}

func TestRemoteOutputEmitsCompleteLines(t *testing.T) {
	r, buf := newTestOutput()

	_, err := r.Write([]byte("first line\nsecond line\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "apps.example.com: first line")
	assert.Contains(t, lines[1], "apps.example.com: second line")
}

func TestRemoteOutputHoldsPartialLines(t *testing.T) {
	r, buf := newTestOutput()

	r.Write([]byte("migrating"))
	assert.Empty(t, buf.String(), "an unterminated line is held until complete")

	r.Write([]byte(" 20240101_create_users\n"))
	assert.Contains(t, buf.String(), "migrating 20240101_create_users")
}

func TestRemoteOutputFlushEmitsTail(t *testing.T) {
	r, buf := newTestOutput()

	r.Write([]byte("Killed"))
	r.Flush()

	assert.Contains(t, buf.String(), "apps.example.com: Killed")

	// Flushing twice must not duplicate the line.
	before := buf.String()
	r.Flush()
	assert.Equal(t, before, buf.String())
}
