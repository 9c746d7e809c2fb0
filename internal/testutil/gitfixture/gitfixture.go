// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitfixture builds throwaway git repositories for tests.
package gitfixture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a git repository under t.TempDir().
type Repo struct {
	t    testing.TB
	Dir  string
	Repo *git.Repository
	when time.Time
}

// New initializes an empty repository in a temp dir.
func New(t testing.TB) *Repo {
	t.Helper()
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	return &Repo{t: t, Dir: dir, Repo: r, when: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Commit writes files (path -> content) and commits them with msg.
// Commit times are strictly increasing so log order is deterministic.
func (tr *Repo) Commit(msg string, files map[string]string) string {
	tr.t.Helper()
	wt, err := tr.Repo.Worktree()
	if err != nil {
		tr.t.Fatalf("worktree: %v", err)
	}
	for path, content := range files {
		full := filepath.Join(tr.Dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			tr.t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			tr.t.Fatalf("write %s: %v", path, err)
		}
		if _, err := wt.Add(path); err != nil {
			tr.t.Fatalf("add %s: %v", path, err)
		}
	}
	tr.when = tr.when.Add(time.Minute)
	sig := &object.Signature{Name: "Test User", Email: "test@example.com", When: tr.when}
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		tr.t.Fatalf("commit %q: %v", msg, err)
	}
	return hash.String()
}

// Move renames a tracked file and commits the move with msg.
func (tr *Repo) Move(msg, from, to string) string {
	tr.t.Helper()
	wt, err := tr.Repo.Worktree()
	if err != nil {
		tr.t.Fatalf("worktree: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(tr.Dir, filepath.FromSlash(to))), 0o755); err != nil {
		tr.t.Fatalf("mkdir: %v", err)
	}
	if _, err := wt.Move(from, to); err != nil {
		tr.t.Fatalf("move %s: %v", from, err)
	}
	return tr.Commit(msg, nil)
}

// Tag creates a lightweight tag at HEAD.
func (tr *Repo) Tag(name string) {
	tr.t.Helper()
	head, err := tr.Repo.Head()
	if err != nil {
		tr.t.Fatalf("head: %v", err)
	}
	if _, err := tr.Repo.CreateTag(name, head.Hash(), nil); err != nil {
		tr.t.Fatalf("tag %s: %v", name, err)
	}
}
