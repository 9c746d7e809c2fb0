// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cargo adapts Rust crate workspaces to the release pipeline.
package cargo

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/scanner"
	"github.com/bartekus/lockstep/internal/version"
	"github.com/bartekus/lockstep/pkg/executil"
)

const (
	manifestName = "Cargo.toml"

	// DefaultRegistry is crates.io.
	DefaultRegistry = "https://crates.io"
)

// Adapter implements ecosystem.Adapter for Cargo manifests.
type Adapter struct {
	Runner   executil.Runner
	Registry string
	Client   *http.Client
	Getenv   func(string) string
}

// New returns an adapter that shells out through runner.
func New(runner executil.Runner) *Adapter {
	return &Adapter{Runner: runner}
}

var (
	_ ecosystem.Adapter          = (*Adapter)(nil)
	_ ecosystem.DependencyLister = (*Adapter)(nil)
	_ ecosystem.RegistryProber   = (*Adapter)(nil)
)

type manifest struct {
	Package   *packageSection   `toml:"package"`
	Workspace *workspaceSection `toml:"workspace"`

	Dependencies      map[string]any           `toml:"dependencies"`
	BuildDependencies map[string]any           `toml:"build-dependencies"`
	DevDependencies   map[string]any           `toml:"dev-dependencies"`
	Target            map[string]targetSection `toml:"target"`
}

type packageSection struct {
	Name string `toml:"name"`
	// Version is a string or {workspace = true}.
	Version any `toml:"version"`
	// Publish is a bool or a registry allow-list.
	Publish any `toml:"publish"`
}

type workspaceSection struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
	Package struct {
		Version string `toml:"version"`
	} `toml:"package"`
}

type targetSection struct {
	Dependencies      map[string]any `toml:"dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
}

func readManifest(dir string) (manifest, error) {
	var m manifest
	path := filepath.Join(dir, manifestName)
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

func (a *Adapter) Kind() ecosystem.Kind { return ecosystem.KindCargo }

func (a *Adapter) Detect(root string) bool {
	info, err := os.Stat(filepath.Join(root, manifestName))
	return err == nil && !info.IsDir()
}

func (a *Adapter) DiscoverPackages(ctx context.Context, root string) ([]ecosystem.Package, error) {
	rootManifest, err := readManifest(root)
	if err != nil {
		return nil, err
	}

	var pkgs []ecosystem.Package
	if rootManifest.Package != nil {
		p, err := toPackage(ecosystem.RootPath, rootManifest, rootManifest.Workspace)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}

	ws := rootManifest.Workspace
	if ws == nil {
		if len(pkgs) == 0 {
			return nil, fmt.Errorf("%s has neither [package] nor [workspace]", filepath.Join(root, manifestName))
		}
		return pkgs, nil
	}

	dirs, err := scanner.ExpandMembers(root, ws.Members, manifestName, scanner.FilterOptions{
		ExcludeDirs: scanner.DefaultExcludeDirs(),
		Exclude:     ws.Exclude,
	})
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if dir == ecosystem.RootPath {
			continue
		}
		m, err := readManifest(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			return nil, err
		}
		if m.Package == nil {
			continue
		}
		p, err := toPackage(dir, m, ws)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}

	zerolog.Ctx(ctx).Debug().Int("packages", len(pkgs)).Strs("members", ws.Members).Msg("cargo workspace discovered")
	return pkgs, nil
}

func toPackage(dir string, m manifest, ws *workspaceSection) (ecosystem.Package, error) {
	p := ecosystem.Package{
		Name: m.Package.Name,
		Path: ecosystem.CleanPath(dir),
		Kind: ecosystem.KindCargo,
	}
	switch v := m.Package.Version.(type) {
	case nil:
		p.Version = version.Zero
	case string:
		p.Version = v
	case map[string]any:
		if inherit, _ := v["workspace"].(bool); !inherit {
			return p, fmt.Errorf("crate %s: unsupported version table", p.Name)
		}
		if ws == nil || ws.Package.Version == "" {
			return p, fmt.Errorf("crate %s inherits its version but [workspace.package] has none", p.Name)
		}
		p.Version = ws.Package.Version
	default:
		return p, fmt.Errorf("crate %s: unsupported version value %v", p.Name, v)
	}
	return p, nil
}

func (a *Adapter) IsPrivate(dir string) (bool, error) {
	m, err := readManifest(dir)
	if err != nil {
		return false, err
	}
	if m.Package == nil {
		return true, nil
	}
	switch v := m.Package.Publish.(type) {
	case bool:
		return !v, nil
	case []any:
		return len(v) == 0, nil
	}
	return false, nil
}

// dependencyName is the crate a dependency entry refers to, honoring
// package renames.
func dependencyName(key string, spec any) string {
	if t, ok := spec.(map[string]any); ok {
		if name, ok := t["package"].(string); ok && name != "" {
			return name
		}
	}
	return key
}

func (a *Adapter) InternalDependencies(root string, pkgs []ecosystem.Package) (map[string][]string, error) {
	internal := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		internal[p.Name] = true
	}

	out := make(map[string][]string, len(pkgs))
	for _, p := range pkgs {
		m, err := readManifest(filepath.Join(root, filepath.FromSlash(p.Path)))
		if err != nil {
			return nil, err
		}
		tables := []map[string]any{m.Dependencies, m.BuildDependencies}
		for _, t := range m.Target {
			tables = append(tables, t.Dependencies, t.BuildDependencies)
		}

		seen := make(map[string]bool)
		for _, table := range tables {
			for key, spec := range table {
				if name := dependencyName(key, spec); internal[name] && name != p.Name {
					seen[name] = true
				}
			}
		}
		deps := make([]string, 0, len(seen))
		for d := range seen {
			deps = append(deps, d)
		}
		sort.Strings(deps)
		out[p.Name] = deps
	}
	return out, nil
}

func (a *Adapter) getenv(key string) string {
	if a.Getenv != nil {
		return a.Getenv(key)
	}
	return os.Getenv(key)
}
