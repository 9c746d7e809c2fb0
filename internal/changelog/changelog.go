// SPDX-License-Identifier: AGPL-3.0-or-later

// Package changelog renders per-package markdown changelogs and merges new
// release sections above existing history.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/commits"
	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/projection"
)

// DefaultFile is the changelog file name inside each package directory.
const DefaultFile = "CHANGELOG.md"

const heading = "# Changelog"

// Group is one rendered section of a release entry.
type Group struct {
	Title string
	Types []string
}

// Groups lists the sections in render order. Breaking changes are pulled
// out first regardless of type; commits matching no group land in Other.
var Groups = []Group{
	{Title: "Features", Types: []string{"feat"}},
	{Title: "Bug Fixes", Types: []string{"fix"}},
	{Title: "Performance", Types: []string{"perf"}},
	{Title: "Tests", Types: []string{"test"}},
	{Title: "Documentation", Types: []string{"docs"}},
	{Title: "Refactoring", Types: []string{"refactor"}},
	{Title: "Chores", Types: []string{"chore"}},
	{Title: "Style", Types: []string{"style"}},
	{Title: "Build", Types: []string{"build"}},
	{Title: "CI", Types: []string{"ci"}},
}

const (
	breakingTitle = "Breaking Changes"
	otherTitle    = "Other"
)

// File is one changelog ready to be written.
type File struct {
	Path    string
	Content string
	Commits int
}

// Generator produces changelog files for a release.
type Generator struct {
	// File is the changelog name relative to each package directory.
	File string
	Now  func() time.Time
}

// Render computes the new content of every changelog affected by cs without
// touching disk. Packages sharing a directory share one file; directories
// no commit touched are omitted.
func (g *Generator) Render(root, version string, cs []commits.ClassifiedCommit, pkgs []ecosystem.Package) ([]File, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	name := g.File
	if name == "" {
		name = DefaultFile
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	date := now().UTC()

	var files []File
	seen := make(map[string]bool)
	for _, p := range pkgs {
		if seen[p.Path] {
			continue
		}
		seen[p.Path] = true

		owners := samePath(pkgs, p.Path)
		var mine []commits.ClassifiedCommit
		for _, c := range cs {
			for _, o := range owners {
				if commits.Touches(o, c.ChangedFiles) {
					mine = append(mine, c)
					break
				}
			}
		}
		if len(mine) == 0 {
			continue
		}

		path := filepath.Join(root, filepath.FromSlash(p.Path), name)
		existing, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, File{
			Path:    path,
			Content: Merge(string(existing), RenderSection(version, date, mine)),
			Commits: len(mine),
		})
	}
	return files, nil
}

// Generate renders and atomically writes every affected changelog.
func (g *Generator) Generate(ctx context.Context, root, version string, cs []commits.ClassifiedCommit, pkgs []ecosystem.Package) ([]File, error) {
	files, err := g.Render(root, version, cs, pkgs)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := projection.AtomicWrite(f.Path, []byte(f.Content)); err != nil {
			return nil, err
		}
		zerolog.Ctx(ctx).Debug().Str("file", f.Path).Int("commits", f.Commits).Msg("changelog written")
	}
	return files, nil
}

func samePath(pkgs []ecosystem.Package, path string) []ecosystem.Package {
	var out []ecosystem.Package
	for _, p := range pkgs {
		if p.Path == path {
			out = append(out, p)
		}
	}
	return out
}

// RenderSection renders one release entry. cs must be non-empty.
func RenderSection(version string, date time.Time, cs []commits.ClassifiedCommit) string {
	buckets := make(map[string][]commits.ClassifiedCommit)
	for _, c := range cs {
		buckets[groupOf(c)] = append(buckets[groupOf(c)], c)
	}

	var b strings.Builder
	b.WriteString(projection.RenderHeader(2, fmt.Sprintf("%s (%s)", version, date.Format("2006-01-02"))))

	titles := []string{breakingTitle}
	for _, g := range Groups {
		titles = append(titles, g.Title)
	}
	titles = append(titles, otherTitle)

	for _, title := range titles {
		entries := buckets[title]
		if len(entries) == 0 {
			continue
		}
		b.WriteString(projection.RenderHeader(3, title))
		items := make([]string, 0, len(entries))
		for _, c := range entries {
			items = append(items, entry(c))
		}
		b.WriteString(projection.RenderList(items))
		b.WriteString("\n")
	}
	return b.String()
}

func groupOf(c commits.ClassifiedCommit) string {
	if c.IsBreaking {
		return breakingTitle
	}
	for _, g := range Groups {
		for _, t := range g.Types {
			if c.Type == t {
				return g.Title
			}
		}
	}
	return otherTitle
}

func entry(c commits.ClassifiedCommit) string {
	text := c.Text()
	if c.Scope != "" {
		text = "**" + c.Scope + ":** " + text
	}
	return text + " (" + c.ShortHash() + ")"
}

// Merge places section directly below the top-level heading of existing,
// adding the heading when there is none. Everything after the heading is
// kept byte for byte.
func Merge(existing, section string) string {
	if strings.TrimSpace(existing) == "" {
		return heading + "\n\n" + section
	}

	lead := len(existing) - len(strings.TrimLeft(existing, "\r\n"))
	rest := existing[lead:]
	if !strings.HasPrefix(rest, "# ") {
		return heading + "\n\n" + section + existing
	}

	line, body, _ := strings.Cut(rest, "\n")
	body = strings.TrimLeft(body, "\r\n")
	return strings.TrimRight(line, "\r") + "\n\n" + section + body
}
