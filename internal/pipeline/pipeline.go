// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline runs the release stages against one repository: plan
// (resolve, analyze, bump), prepare (manifests, changelogs, release notes)
// and publish.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/bump"
	"github.com/bartekus/lockstep/internal/changelog"
	"github.com/bartekus/lockstep/internal/commits"
	"github.com/bartekus/lockstep/internal/config"
	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/ecosystem/cargo"
	"github.com/bartekus/lockstep/internal/ecosystem/gomod"
	"github.com/bartekus/lockstep/internal/ecosystem/npm"
	"github.com/bartekus/lockstep/internal/gitrepo"
	"github.com/bartekus/lockstep/internal/notes"
	"github.com/bartekus/lockstep/internal/publish"
	"github.com/bartekus/lockstep/internal/version"
	"github.com/bartekus/lockstep/pkg/executil"
)

// Pipeline holds everything a release run needs for one repository.
type Pipeline struct {
	Root    string
	Config  config.Config
	History gitrepo.History
	// Adapters are the candidate ecosystems, in detection order.
	Adapters []ecosystem.Adapter
	Now      func() time.Time
}

// New wires the built-in adapters for root. Publishing shells out through
// runner.
func New(root string, cfg config.Config, history gitrepo.History, runner executil.Runner) *Pipeline {
	return &Pipeline{
		Root:     root,
		Config:   cfg,
		History:  history,
		Adapters: DefaultAdapters(cfg, history, runner),
	}
}

// DefaultAdapters returns the npm, cargo and go adapters configured from
// cfg.
func DefaultAdapters(cfg config.Config, tags gomod.TagLister, runner executil.Runner) []ecosystem.Adapter {
	js := npm.New(runner)
	js.Registry = cfg.Publish.NPMRegistry
	rs := cargo.New(runner)
	rs.Registry = cfg.Publish.CratesRegistry
	return []ecosystem.Adapter{js, rs, gomod.New(tags)}
}

// Plan is the outcome of the read-only stages.
type Plan struct {
	Current    string                     `json:"current"`
	Next       string                     `json:"next"`
	Bump       bump.Bump                  `json:"bump"`
	Ecosystems []ecosystem.Kind           `json:"ecosystems"`
	Packages   []ecosystem.Package        `json:"packages"`
	Commits    []commits.ClassifiedCommit `json:"commits"`

	active []ecosystem.Adapter
}

// Releasable reports whether any commit asks for a new version.
func (p *Plan) Releasable() bool {
	return p.Bump != bump.None
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) candidates() []ecosystem.Adapter {
	kinds := p.Config.Kinds()
	if len(kinds) == 0 {
		return p.Adapters
	}
	var out []ecosystem.Adapter
	for _, a := range p.Adapters {
		if slices.Contains(kinds, a.Kind()) {
			out = append(out, a)
		}
	}
	return out
}

func (p *Pipeline) discover(ctx context.Context) ([]ecosystem.Adapter, []ecosystem.Package, error) {
	active, err := ecosystem.Detect(p.Root, p.candidates())
	if err != nil {
		return nil, nil, err
	}
	pkgs, err := ecosystem.Discover(ctx, p.Root, active)
	if err != nil {
		return nil, nil, err
	}
	return active, pkgs, nil
}

// Current resolves the version of the last release.
func (p *Pipeline) Current(ctx context.Context) (string, error) {
	r := &version.Resolver{History: p.History, SearchDepths: p.Config.History.SearchDepths}
	v, err := r.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving current version: %w", err)
	}
	return v, nil
}

// Plan detects ecosystems, discovers packages and computes the next version
// without writing anything.
func (p *Pipeline) Plan(ctx context.Context) (*Plan, error) {
	log := zerolog.Ctx(ctx)

	active, pkgs, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	current, err := p.Current(ctx)
	if err != nil {
		return nil, err
	}

	a := &commits.Analyzer{
		History:      p.History,
		SearchDepths: p.Config.History.SearchDepths,
		MaxCommits:   p.Config.History.MaxCommits,
	}
	cs, err := a.Analyze(ctx, pkgs)
	if err != nil {
		return nil, err
	}

	b := bump.Calculate(cs)
	next, err := bump.Next(current, b)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Current:  current,
		Next:     next,
		Bump:     b,
		Packages: pkgs,
		Commits:  cs,
		active:   active,
	}
	for _, ad := range active {
		plan.Ecosystems = append(plan.Ecosystems, ad.Kind())
	}
	log.Info().
		Str("current", current).
		Str("next", next).
		Str("bump", string(b)).
		Int("packages", len(pkgs)).
		Int("commits", len(cs)).
		Msg("release planned")
	return plan, nil
}

// Prepared is what a prepare run produced.
type Prepared struct {
	Plan       *Plan            `json:"plan"`
	Changelogs []changelog.File `json:"-"`
	Notes      string           `json:"notes"`
	// CommitTitle is the release marker title for the release commit.
	CommitTitle string `json:"commit_title,omitempty"`
	DryRun      bool   `json:"dry_run"`
}

// Files lists the changelog paths prepare wrote, or would write.
func (p *Prepared) Files() []string {
	out := make([]string, 0, len(p.Changelogs))
	for _, f := range p.Changelogs {
		out = append(out, f.Path)
	}
	return out
}

// Prepare plans the release and, unless nothing is releasable, writes the
// next version into every manifest and prepends changelog sections. All
// changelogs are rendered before the first write. With dryRun nothing
// touches disk.
func (p *Pipeline) Prepare(ctx context.Context, dryRun bool) (*Prepared, error) {
	log := zerolog.Ctx(ctx)

	plan, err := p.Plan(ctx)
	if err != nil {
		return nil, err
	}
	out := &Prepared{Plan: plan, DryRun: dryRun}
	if !plan.Releasable() {
		log.Info().Str("version", plan.Current).Msg("no releasable commits; nothing to prepare")
		return out, nil
	}

	gen := &changelog.Generator{File: p.Config.Changelog.File, Now: p.now}
	files, err := gen.Render(p.Root, plan.Next, plan.Commits, plan.Packages)
	if err != nil {
		return nil, err
	}
	out.Changelogs = files
	out.Notes = notes.Render(plan.Commits, p.Config.Notes)
	out.CommitTitle = version.MarkerMessage(plan.Next)

	if dryRun {
		log.Info().Str("version", plan.Next).Int("changelogs", len(files)).Msg("dry run; no files written")
		return out, nil
	}

	for _, a := range plan.active {
		if err := a.WriteVersions(ctx, p.Root, plan.Next, ecosystem.OfKind(plan.Packages, a.Kind())); err != nil {
			return nil, fmt.Errorf("writing %s versions: %w", a.Kind(), err)
		}
	}
	if _, err := gen.Generate(ctx, p.Root, plan.Next, plan.Commits, plan.Packages); err != nil {
		return nil, err
	}

	log.Info().Str("version", plan.Next).Int("changelogs", len(files)).Msg("release prepared")
	return out, nil
}

// Notes renders the release description for the pending commits.
func (p *Pipeline) Notes(ctx context.Context) (string, error) {
	plan, err := p.Plan(ctx)
	if err != nil {
		return "", err
	}
	return notes.Render(plan.Commits, p.Config.Notes), nil
}

// Publish publishes every detected ecosystem at the current version.
// metrics may be nil.
func (p *Pipeline) Publish(ctx context.Context, store *publish.StateStore, metrics *publish.Metrics) (publish.Report, error) {
	active, pkgs, err := p.discover(ctx)
	if err != nil {
		return publish.Report{}, err
	}
	v, err := p.Current(ctx)
	if err != nil {
		return publish.Report{}, err
	}

	o := &publish.Orchestrator{
		Propagation: p.Config.Publish.Propagation,
		Store:       store,
		Metrics:     metrics,
		Now:         p.Now,
	}
	return o.Run(ctx, p.Root, v, active, pkgs)
}
