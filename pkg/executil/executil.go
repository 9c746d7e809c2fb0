// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executil runs external commands on behalf of ecosystem adapters.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// tailLines is how much captured output an ExitError keeps.
const tailLines = 20

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner abstracts process execution so adapters can be tested without
// spawning registry tooling.
type Runner interface {
	// Run executes name with args in dir. A non-zero exit is returned as
	// *ExitError alongside the captured Result.
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)

	// LookPath reports where an executable lives on PATH.
	LookPath(name string) (string, error)
}

// ExitError describes a command that ran and exited non-zero (or could not
// be started at all).
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
	cause    error
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: exit %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit %d: %s", e.Command, e.ExitCode, e.Output)
}

func (e *ExitError) Unwrap() error { return e.cause }

// ExecRunner runs commands on the local host.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	var execErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.As(err, &execErr):
		res.ExitCode = 127
	}

	output := res.Stderr
	if len(bytes.TrimSpace(output)) == 0 {
		output = res.Stdout
	}
	return res, &ExitError{
		Command:  strings.TrimSpace(name + " " + strings.Join(args, " ")),
		ExitCode: res.ExitCode,
		Output:   Tail(string(output), tailLines),
		cause:    err,
	}
}

// Tail keeps the last n lines of output, marking the cut.
func Tail(output string, n int) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) <= n {
		return output
	}
	return "...(truncated)...\n" + strings.Join(lines[len(lines)-n:], "\n")
}
