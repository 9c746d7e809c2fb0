// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitrepo provides read access to repository history.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Commit is a single history entry.
type Commit struct {
	Hash    string
	Message string
}

// FirstLine returns the commit title.
func (c Commit) FirstLine() string {
	line, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(line)
}

// History is the read interface the release pipeline needs from version
// control.
type History interface {
	// Commits lists commits reachable from HEAD, newest first. A limit <= 0
	// returns the whole history.
	Commits(ctx context.Context, limit int) ([]Commit, error)

	// Tags lists tag names.
	Tags(ctx context.Context) ([]string, error)

	// ChangedFiles lists the slash-separated paths a commit touched
	// relative to its first parent.
	ChangedFiles(ctx context.Context, hash string) ([]string, error)

	// IsShallow reports whether the checkout lacks part of its history.
	IsShallow(ctx context.Context) (bool, error)
}

// Repo implements History on top of go-git.
type Repo struct {
	repo *git.Repository
}

// Open opens the repository containing path.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", path, err)
	}
	return &Repo{repo: r}, nil
}

// New wraps an already opened repository.
func New(r *git.Repository) *Repo {
	return &Repo{repo: r}
}

func (r *Repo) Commits(ctx context.Context, limit int) ([]Commit, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var out []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = append(out, Commit{Hash: c.Hash.String(), Message: c.Message})
		if limit > 0 && len(out) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking log: %w", err)
	}
	return out, nil
}

func (r *Repo) Tags(ctx context.Context) ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer iter.Close()

	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tags = append(tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking tags: %w", err)
	}
	return tags, nil
}

func (r *Repo) ChangedFiles(ctx context.Context, hash string) ([]string, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree of %s: %w", hash, err)
	}
	parent := &object.Tree{}
	if c.NumParents() > 0 {
		p, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("loading parent of %s: %w", hash, err)
		}
		if parent, err = p.Tree(); err != nil {
			return nil, fmt.Errorf("loading tree of %s: %w", p.Hash, err)
		}
	}

	// Tree-level diff only; file contents are never read. Without rename
	// detection a move shows up as a delete plus an insert, so both paths
	// are reported.
	changes, err := object.DiffTreeContext(ctx, parent, tree)
	if err != nil {
		return nil, fmt.Errorf("diffing commit %s: %w", hash, err)
	}
	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		switch {
		case ch.From.Name == "":
			files = append(files, ch.To.Name)
		case ch.To.Name == "" || ch.To.Name == ch.From.Name:
			files = append(files, ch.From.Name)
		default:
			files = append(files, ch.From.Name, ch.To.Name)
		}
	}
	return files, nil
}

func (r *Repo) IsShallow(ctx context.Context) (bool, error) {
	hashes, err := r.repo.Storer.Shallow()
	if err != nil {
		return false, fmt.Errorf("reading shallow file: %w", err)
	}
	return len(hashes) > 0, nil
}
