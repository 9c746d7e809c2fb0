// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fakehistory is an in-memory gitrepo.History for tests.
package fakehistory

import (
	"context"
	"fmt"

	"github.com/bartekus/lockstep/internal/gitrepo"
)

// Commit is a fixture entry: message plus touched files.
type Commit struct {
	Hash    string
	Message string
	Files   []string
}

// History serves commits given oldest first, the way a test reads them.
type History struct {
	commits []Commit
	TagList []string
	Shallow bool

	// CommitsCalls records the limit of every Commits call.
	CommitsCalls []int
}

// New builds a history from oldest-first commits. Missing hashes are filled
// with c0001, c0002, ...
func New(commits ...Commit) *History {
	h := &History{}
	for i, c := range commits {
		if c.Hash == "" {
			c.Hash = fmt.Sprintf("c%04d", i+1)
		}
		h.commits = append(h.commits, c)
	}
	return h
}

// Messages builds a history from oldest-first commit messages that touch
// no files.
func Messages(msgs ...string) *History {
	commits := make([]Commit, 0, len(msgs))
	for _, m := range msgs {
		commits = append(commits, Commit{Message: m})
	}
	return New(commits...)
}

func (h *History) Commits(_ context.Context, limit int) ([]gitrepo.Commit, error) {
	h.CommitsCalls = append(h.CommitsCalls, limit)
	var out []gitrepo.Commit
	for i := len(h.commits) - 1; i >= 0; i-- {
		out = append(out, gitrepo.Commit{Hash: h.commits[i].Hash, Message: h.commits[i].Message})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (h *History) Tags(context.Context) ([]string, error) {
	return h.TagList, nil
}

func (h *History) ChangedFiles(_ context.Context, hash string) ([]string, error) {
	for _, c := range h.commits {
		if c.Hash == hash {
			return c.Files, nil
		}
	}
	return nil, fmt.Errorf("unknown commit %s", hash)
}

func (h *History) IsShallow(context.Context) (bool, error) {
	return h.Shallow, nil
}
