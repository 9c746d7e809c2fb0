// SPDX-License-Identifier: AGPL-3.0-or-later

// Package npm adapts JavaScript package.json workspaces (npm, yarn and
// pnpm layouts) to the release pipeline.
package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/projection"
	"github.com/bartekus/lockstep/internal/scanner"
	"github.com/bartekus/lockstep/internal/version"
	"github.com/bartekus/lockstep/pkg/executil"
)

const (
	manifestName  = "package.json"
	pnpmWorkspace = "pnpm-workspace.yaml"

	// DefaultRegistry is the public npm registry.
	DefaultRegistry = "https://registry.npmjs.org"
)

// dependencyFields are rewritten on release. The publish graph reads all
// but devDependencies.
var dependencyFields = []string{"dependencies", "devDependencies", "peerDependencies", "optionalDependencies"}

var publishDependencyFields = []string{"dependencies", "peerDependencies", "optionalDependencies"}

// Adapter implements ecosystem.Adapter for package.json manifests.
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

func (a *Adapter) Kind() ecosystem.Kind { return ecosystem.KindNPM }

func (a *Adapter) Detect(root string) bool {
	info, err := os.Stat(filepath.Join(root, manifestName))
	return err == nil && !info.IsDir()
}

type manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Private      any               `json:"private"`
	Workspaces   workspaces        `json:"workspaces"`
	Dependencies map[string]string `json:"dependencies"`
	Peer         map[string]string `json:"peerDependencies"`
	Optional     map[string]string `json:"optionalDependencies"`
	Dev          map[string]string `json:"devDependencies"`
}

func (m manifest) field(name string) map[string]string {
	switch name {
	case "dependencies":
		return m.Dependencies
	case "peerDependencies":
		return m.Peer
	case "optionalDependencies":
		return m.Optional
	case "devDependencies":
		return m.Dev
	}
	return nil
}

// workspaces accepts both the array form and the {"packages": [...]} form.
type workspaces []string

func (w *workspaces) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("workspaces must be an array or an object with packages: %w", err)
	}
	*w = obj.Packages
	return nil
}

func readManifest(dir string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return m, err
	}
	if err := decodeManifest(data, &m); err != nil {
		return m, fmt.Errorf("parsing %s: %w", filepath.Join(dir, manifestName), err)
	}
	return m, nil
}

// decodeManifest tolerates a leading byte order mark, as npm does.
func decodeManifest(data []byte, m *manifest) error {
	_, doc := splitBOM(data)
	return json.Unmarshal(doc, m)
}

// memberPatterns returns the workspace globs, preferring package.json over
// pnpm-workspace.yaml.
func memberPatterns(root string, m manifest) ([]string, error) {
	if len(m.Workspaces) > 0 {
		return m.Workspaces, nil
	}
	data, err := os.ReadFile(filepath.Join(root, pnpmWorkspace))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ws struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pnpmWorkspace, err)
	}
	return ws.Packages, nil
}

func (a *Adapter) DiscoverPackages(ctx context.Context, root string) ([]ecosystem.Package, error) {
	rootManifest, err := readManifest(root)
	if err != nil {
		return nil, err
	}
	patterns, err := memberPatterns(root, rootManifest)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return []ecosystem.Package{toPackage(root, ecosystem.RootPath, rootManifest)}, nil
	}

	dirs, err := scanner.ExpandMembers(root, patterns, manifestName, scanner.FilterOptions{
		ExcludeDirs: scanner.DefaultExcludeDirs(),
	})
	if err != nil {
		return nil, err
	}

	pkgs := make([]ecosystem.Package, 0, len(dirs))
	for _, dir := range dirs {
		m, err := readManifest(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, toPackage(root, dir, m))
	}
	zerolog.Ctx(ctx).Debug().Int("packages", len(pkgs)).Strs("patterns", patterns).Msg("npm workspace discovered")
	return pkgs, nil
}

func toPackage(root, dir string, m manifest) ecosystem.Package {
	name := m.Name
	if name == "" {
		name = filepath.Base(filepath.Join(root, filepath.FromSlash(dir)))
	}
	v := m.Version
	if v == "" {
		v = version.Zero
	}
	return ecosystem.Package{Name: name, Version: v, Path: ecosystem.CleanPath(dir), Kind: ecosystem.KindNPM}
}

func (a *Adapter) IsPrivate(dir string) (bool, error) {
	m, err := readManifest(dir)
	if err != nil {
		return false, err
	}
	return m.Private == true, nil
}

// rangePrefix splits a dependency spec into its range operator and version.
var rangePrefix = regexp.MustCompile(`^(\^|~|>=|<=|>|<|=)?\s*(.*)$`)

// nextSpec rewrites spec to point at version, keeping its operator. Specs
// using a protocol or a non-version range are left as they are.
func nextSpec(spec, v string) (string, bool) {
	for _, proto := range []string{"workspace:", "file:", "link:", "npm:", "git", "http"} {
		if strings.HasPrefix(spec, proto) {
			return spec, false
		}
	}
	m := rangePrefix.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil || !version.Valid(m[2]) {
		return spec, false
	}
	return m[1] + v, true
}

func (a *Adapter) WriteVersions(ctx context.Context, root, v string, pkgs []ecosystem.Package) error {
	internal := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		internal[p.Name] = true
	}

	for _, p := range pkgs {
		dir := filepath.Join(root, filepath.FromSlash(p.Path))
		path := filepath.Join(dir, manifestName)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var m manifest
		if err := decodeManifest(data, &m); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		values := map[keyPath]string{{"version"}: v}
		for _, field := range dependencyFields {
			for dep, spec := range m.field(field) {
				if !internal[dep] {
					continue
				}
				if next, ok := nextSpec(spec, v); ok {
					values[keyPath{field, dep}] = next
				}
			}
		}

		out, err := setStrings(data, values)
		if err != nil {
			return fmt.Errorf("editing %s: %w", path, err)
		}
		if !hasString(data, keyPath{"version"}) {
			if out, err = insertAfter(out, keyPath{"name"}, "version", v); err != nil {
				return fmt.Errorf("adding version to %s: %w", path, err)
			}
		}
		if err := projection.AtomicWrite(path, out); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Debug().Str("package", p.Name).Str("version", v).Msg("package.json updated")
	}
	return nil
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
		seen := make(map[string]bool)
		for _, field := range publishDependencyFields {
			for dep := range m.field(field) {
				if internal[dep] && dep != p.Name {
					seen[dep] = true
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

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (a *Adapter) getenv(key string) string {
	if a.Getenv != nil {
		return a.Getenv(key)
	}
	return os.Getenv(key)
}
