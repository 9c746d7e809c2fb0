// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ecosystem defines the capability set every package ecosystem
// implements so one release pipeline can drive heterogeneous package systems.
package ecosystem

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Kind tags an ecosystem.
type Kind string

const (
	KindNPM   Kind = "npm"
	KindCargo Kind = "cargo"
	KindGo    Kind = "go"
)

// TagOnly reports whether the ecosystem is versioned purely by git tags and
// therefore never writes manifests or publishes.
func (k Kind) TagOnly() bool {
	return k == KindGo
}

// RootPath is Package.Path for a package living at the repository root.
const RootPath = "."

// ErrNoEcosystem is returned when no adapter recognizes the repository.
var ErrNoEcosystem = errors.New("no supported ecosystem detected at repository root")

// Package is a publishable unit discovered in the repository. Identity is
// (Kind, Path); Name is for display and changelog grouping only.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Path is slash-separated and relative to the repository root.
	Path string `json:"path"`
	Kind Kind   `json:"ecosystem"`
}

// ID is the package identity as a single string.
func (p Package) ID() string {
	return string(p.Kind) + ":" + p.Path
}

// IsRoot reports whether the package lives at the repository root.
func (p Package) IsRoot() bool {
	return p.Path == RootPath || p.Path == ""
}

// CleanPath normalizes a relative directory into Package.Path form.
func CleanPath(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = path.Clean(strings.TrimPrefix(rel, "./"))
	if rel == "" || rel == "/" {
		return RootPath
	}
	return rel
}

// Prerequisites is the result of a publish readiness check.
type Prerequisites struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Ready is a satisfied prerequisite check.
func Ready() Prerequisites { return Prerequisites{Ready: true} }

// NotReady is an unmet prerequisite with a human-readable reason.
func NotReady(format string, args ...any) Prerequisites {
	return Prerequisites{Reason: fmt.Sprintf(format, args...)}
}

// PublishOutcome is the result of publishing one package.
type PublishOutcome struct {
	PackageName string `json:"package"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(name string) PublishOutcome {
	return PublishOutcome{PackageName: name, Success: true}
}

// Failed builds a failed outcome from err.
func Failed(name string, err error) PublishOutcome {
	return PublishOutcome{PackageName: name, Error: err.Error()}
}

// Adapter is the capability set of one ecosystem. Adapters hold no run
// state and may be invoked independently.
type Adapter interface {
	Kind() Kind

	// Detect reports whether the ecosystem's marker manifest exists at root.
	Detect(root string) bool

	// DiscoverPackages lists the ecosystem's packages with concrete
	// versions. Without a workspace declaration the root is the only
	// package.
	DiscoverPackages(ctx context.Context, root string) ([]Package, error)

	// WriteVersions sets version in each package manifest, leaving every
	// other byte untouched.
	WriteVersions(ctx context.Context, root, version string, pkgs []Package) error

	// IsPrivate reports whether the package at dir must never be published.
	IsPrivate(dir string) (bool, error)

	CheckPublishPrerequisites(ctx context.Context, root string) Prerequisites

	// Publish publishes pkgs in the given order, stopping at the first
	// failure.
	Publish(ctx context.Context, root, version string, pkgs []Package) []PublishOutcome
}

// DependencyLister is implemented by adapters whose packages can depend on
// each other. The result maps a package name to the names of the internal
// packages it needs at publish time; development-only and external
// dependencies are left out.
type DependencyLister interface {
	InternalDependencies(root string, pkgs []Package) (map[string][]string, error)
}

// RegistryProber is implemented by adapters that can ask their registry
// whether a version is already served.
type RegistryProber interface {
	Published(ctx context.Context, pkg Package, version string) (bool, error)
}

// Detect returns the adapters that recognize root, in the order given.
func Detect(root string, adapters []Adapter) ([]Adapter, error) {
	var active []Adapter
	for _, a := range adapters {
		if a.Detect(root) {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrNoEcosystem, root)
	}
	return active, nil
}

// Discover runs discovery for every active adapter and concatenates the
// results.
func Discover(ctx context.Context, root string, active []Adapter) ([]Package, error) {
	var all []Package
	for _, a := range active {
		pkgs, err := a.DiscoverPackages(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("discovering %s packages: %w", a.Kind(), err)
		}
		all = append(all, pkgs...)
	}
	return all, nil
}

// OfKind filters pkgs to one ecosystem, keeping order.
func OfKind(pkgs []Package, kind Kind) []Package {
	var out []Package
	for _, p := range pkgs {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether the slash-separated file lies inside the package
// directory. The root package contains every file; otherwise matching is
// per path segment, so "pkg/a" does not contain "pkg/ab/x".
func (p Package) Contains(file string) bool {
	if p.IsRoot() {
		return true
	}
	file = strings.TrimPrefix(file, "./")
	return file == p.Path || strings.HasPrefix(file, p.Path+"/")
}
