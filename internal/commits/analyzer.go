// SPDX-License-Identifier: AGPL-3.0-or-later

package commits

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/gitrepo"
	"github.com/bartekus/lockstep/internal/version"
)

// ShallowHistoryError is returned when the checkout is missing history.
type ShallowHistoryError struct{}

func (ShallowHistoryError) Error() string {
	return "repository has shallow history; fetch the full history first (git fetch --unshallow, or actions/checkout with fetch-depth: 0)"
}

// Analyzer turns history since the last release into classified,
// attributed commits.
type Analyzer struct {
	History      gitrepo.History
	SearchDepths []int
	// MaxCommits caps how many commits are read when no release marker
	// exists. Zero reads the entire history.
	MaxCommits int
}

// Analyze returns every commit strictly newer than the most recent release
// marker (or all history when there is none), oldest first.
func (a *Analyzer) Analyze(ctx context.Context, pkgs []ecosystem.Package) ([]ClassifiedCommit, error) {
	log := zerolog.Ctx(ctx)

	shallow, err := a.History.IsShallow(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking history depth: %w", err)
	}
	if shallow {
		return nil, &ShallowHistoryError{}
	}

	depths := a.SearchDepths
	if depths == nil {
		depths = version.DefaultSearchDepths
	}
	window, marker, err := version.SearchMarker(ctx, a.History, depths)
	if err != nil {
		return nil, err
	}

	pending := window
	if marker != nil {
		pending = window[:marker.Index]
	} else if a.MaxCommits > 0 && len(pending) > a.MaxCommits {
		log.Warn().Int("cap", a.MaxCommits).Int("commits", len(pending)).Msg("no release marker found; truncating history to configured cap")
		pending = pending[:a.MaxCommits]
	}

	out := make([]ClassifiedCommit, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		c := pending[i]
		files, err := a.History.ChangedFiles(ctx, c.Hash)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s: %w", c.Hash, err)
		}
		cc := Classify(c.Hash, c.Message)
		cc.ChangedFiles = files
		cc.AffectedPackageNames = Attribute(files, pkgs)
		out = append(out, cc)
	}

	log.Debug().Int("commits", len(out)).Bool("marker", marker != nil).Msg("commits analyzed")
	return out, nil
}

// Attribute returns the sorted, de-duplicated names of the packages that
// contain at least one of files.
func Attribute(files []string, pkgs []ecosystem.Package) []string {
	seen := make(map[string]bool)
	for _, p := range pkgs {
		if seen[p.Name] {
			continue
		}
		if Touches(p, files) {
			seen[p.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Touches reports whether any of files belongs to pkg. A root package owns
// every commit unconditionally, checked before any prefix comparison.
func Touches(pkg ecosystem.Package, files []string) bool {
	if pkg.IsRoot() {
		return true
	}
	for _, f := range files {
		if pkg.Contains(f) {
			return true
		}
	}
	return false
}
