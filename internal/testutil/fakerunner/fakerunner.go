// Package fakerunner records commands instead of executing them.
package fakerunner

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bartekus/lockstep/pkg/executil"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the command line without the directory.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner is an executil.Runner that never spawns processes.
type Runner struct {
	mu    sync.Mutex
	Calls []Call

	// Missing lists executables LookPath reports as absent.
	Missing map[string]bool

	// Fail decides whether a call exits non-zero. Nil means every call
	// succeeds.
	Fail func(Call) bool

	// Output is returned as stdout for every successful call.
	Output string
}

var _ executil.Runner = (*Runner)(nil)

func (r *Runner) Run(_ context.Context, dir, name string, args ...string) (executil.Result, error) {
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.Calls = append(r.Calls, c)
	r.mu.Unlock()

	if r.Fail != nil && r.Fail(c) {
		return executil.Result{ExitCode: 1}, &executil.ExitError{Command: c.String(), ExitCode: 1, Output: "simulated failure"}
	}
	return executil.Result{Stdout: []byte(r.Output)}, nil
}

func (r *Runner) LookPath(name string) (string, error) {
	if r.Missing[name] {
		return "", errors.New(name + ": executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

// Commands returns the recorded command lines in order.
func (r *Runner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		out = append(out, c.String())
	}
	return out
}
