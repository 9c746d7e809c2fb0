// SPDX-License-Identifier: AGPL-3.0-or-later

// Package projectroot locates the repository a command operates on.
package projectroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no enclosing git repository exists.
var ErrNotFound = errors.New("not inside a git repository")

// Find walks up from start to the nearest directory containing .git
// (a directory, or a file for worktrees and submodules).
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: %s", ErrNotFound, start)
		}
		dir = parent
	}
}
