// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gomod adapts Go modules and go.work workspaces. Go modules are
// versioned by git tags alone, so writing and publishing are no-ops.
package gomod

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/mod/modfile"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/version"
)

// TagLister supplies the repository's tags for per-module versions.
type TagLister interface {
	Tags(ctx context.Context) ([]string, error)
}

// Adapter implements ecosystem.Adapter for go.mod and go.work.
type Adapter struct {
	// Tags may be nil, in which case every module reports version.Zero.
	Tags TagLister
}

// New returns an adapter reading module versions from tags.
func New(tags TagLister) *Adapter {
	return &Adapter{Tags: tags}
}

var _ ecosystem.Adapter = (*Adapter)(nil)

func (a *Adapter) Kind() ecosystem.Kind { return ecosystem.KindGo }

func (a *Adapter) Detect(root string) bool {
	for _, name := range []string{"go.work", "go.mod"} {
		if info, err := os.Stat(filepath.Join(root, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// moduleDirs returns the slash-separated module directories: the go.work
// use directives when a workspace file exists, else the root module.
func moduleDirs(root string) ([]string, error) {
	workPath := filepath.Join(root, "go.work")
	data, err := os.ReadFile(workPath)
	if os.IsNotExist(err) {
		return []string{ecosystem.RootPath}, nil
	}
	if err != nil {
		return nil, err
	}
	wf, err := modfile.ParseWork(workPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", workPath, err)
	}
	dirs := make([]string, 0, len(wf.Use))
	for _, u := range wf.Use {
		dirs = append(dirs, ecosystem.CleanPath(u.Path))
	}
	return dirs, nil
}

func (a *Adapter) DiscoverPackages(ctx context.Context, root string) ([]ecosystem.Package, error) {
	dirs, err := moduleDirs(root)
	if err != nil {
		return nil, err
	}

	var tags []string
	if a.Tags != nil {
		if tags, err = a.Tags.Tags(ctx); err != nil {
			return nil, fmt.Errorf("listing tags: %w", err)
		}
	}

	pkgs := make([]ecosystem.Package, 0, len(dirs))
	for _, dir := range dirs {
		modPath := filepath.Join(root, filepath.FromSlash(dir), "go.mod")
		data, err := os.ReadFile(modPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", modPath, err)
		}
		name := modfile.ModulePath(data)
		if name == "" {
			return nil, fmt.Errorf("%s has no module directive", modPath)
		}

		prefix := ""
		if dir != ecosystem.RootPath {
			prefix = path.Clean(dir) + "/"
		}
		v, ok := version.Greatest(tags, prefix)
		if !ok {
			v = version.Zero
		}
		pkgs = append(pkgs, ecosystem.Package{Name: name, Version: v, Path: dir, Kind: ecosystem.KindGo})
	}
	zerolog.Ctx(ctx).Debug().Int("modules", len(pkgs)).Msg("go modules discovered")
	return pkgs, nil
}

// WriteVersions does nothing: a Go module's version is its tag.
func (a *Adapter) WriteVersions(context.Context, string, string, []ecosystem.Package) error {
	return nil
}

func (a *Adapter) IsPrivate(string) (bool, error) { return false, nil }

func (a *Adapter) CheckPublishPrerequisites(context.Context, string) ecosystem.Prerequisites {
	return ecosystem.Ready()
}

// Publish does nothing: pushing the release tag publishes a module.
func (a *Adapter) Publish(context.Context, string, string, []ecosystem.Package) []ecosystem.PublishOutcome {
	return nil
}
