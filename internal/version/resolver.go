// SPDX-License-Identifier: AGPL-3.0-or-later

package version

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/gitrepo"
)

// DefaultSearchDepths are the history windows tried before the full history.
var DefaultSearchDepths = []int{100, 1000}

// Marker is the most recent release-announcement commit.
type Marker struct {
	Commit  gitrepo.Commit
	Version string
	// Index is the marker's position in the newest-first window it was
	// found in; everything before it is unreleased.
	Index int
}

// SearchMarker looks for the most recent release marker in progressively
// deeper windows of history, ending with the full history. It returns the
// last window read (newest first) and the marker, or a nil marker when the
// history has none. Each window is a fresh read, so the worst case is one
// full-history walk plus the shallower windows before it.
func SearchMarker(ctx context.Context, h gitrepo.History, depths []int) ([]gitrepo.Commit, *Marker, error) {
	log := zerolog.Ctx(ctx)

	for _, depth := range windows(depths) {
		commits, err := h.Commits(ctx, depth)
		if err != nil {
			return nil, nil, fmt.Errorf("reading history (depth %d): %w", depth, err)
		}
		for i, c := range commits {
			if v, ok := ParseMarker(c.FirstLine()); ok {
				log.Debug().Str("commit", c.Hash).Str("version", v).Int("depth", depth).Msg("release marker found")
				return commits, &Marker{Commit: c, Version: v, Index: i}, nil
			}
		}
		if depth <= 0 || len(commits) < depth {
			log.Debug().Int("commits", len(commits)).Msg("history exhausted without release marker")
			return commits, nil, nil
		}
		log.Debug().Int("depth", depth).Msg("no release marker in window, widening search")
	}
	return nil, nil, nil
}

// windows returns the positive depths in ascending order followed by 0
// (the full history).
func windows(depths []int) []int {
	out := make([]int, 0, len(depths)+1)
	for _, d := range depths {
		if d > 0 {
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return append(out, 0)
}

// Resolver determines the current version from history alone.
type Resolver struct {
	History      gitrepo.History
	SearchDepths []int
}

// Resolve returns the version announced by the most recent release marker,
// else the greatest strict semver tag, else Zero. Only read failures are
// reported as errors.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	depths := r.SearchDepths
	if depths == nil {
		depths = DefaultSearchDepths
	}

	_, marker, err := SearchMarker(ctx, r.History, depths)
	if err != nil {
		return "", err
	}
	if marker != nil {
		return marker.Version, nil
	}

	tags, err := r.History.Tags(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tags: %w", err)
	}
	if v, ok := Greatest(tags, ""); ok {
		zerolog.Ctx(ctx).Debug().Str("version", v).Msg("version resolved from tags")
		return v, nil
	}
	return Zero, nil
}
