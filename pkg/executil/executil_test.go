package executil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	dir := t.TempDir()
	res, err := ExecRunner{}.Run(context.Background(), dir, "sh", "-c", "pwd; echo warn >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, string(res.Stdout), dir)
	assert.Equal(t, "warn\n", string(res.Stderr))
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom", exitErr.Output)
	assert.Contains(t, err.Error(), "sh -c")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), t.TempDir(), "lockstep-definitely-missing")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 127, exitErr.ExitCode)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "a\nb", Tail("a\nb\n", 5))

	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	got := Tail(strings.Join(lines, "\n"), 20)
	assert.True(t, strings.HasPrefix(got, "...(truncated)...\nline 10\n"))
	assert.True(t, strings.HasSuffix(got, "line 29"))
}
