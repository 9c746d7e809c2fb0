// SPDX-License-Identifier: AGPL-3.0-or-later

// Package publish sequences package publication across ecosystems:
// dependency order within an ecosystem, registry propagation waits between
// dependent publishes, and fail-fast isolation per ecosystem.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// ErrPublishFailed is returned when at least one ecosystem failed.
var ErrPublishFailed = errors.New("publish failed")

// Orchestrator publishes every active ecosystem's packages for one version.
type Orchestrator struct {
	Propagation Propagation
	// Store persists run reports when set.
	Store   *StateStore
	Metrics *Metrics
	Now     func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run publishes pkgs (all ecosystems, discovery order) with the adapters
// in active. Ecosystems are independent: a skip or failure in one never
// stops the others. The returned report is complete even when the error
// wraps ErrPublishFailed.
func (o *Orchestrator) Run(ctx context.Context, root, version string, active []ecosystem.Adapter, pkgs []ecosystem.Package) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		Version:   version,
		StartedAt: o.now().UTC(),
	}
	log := zerolog.Ctx(ctx).With().Str("run_id", report.RunID).Str("version", version).Logger()
	ctx = log.WithContext(ctx)

	for _, a := range active {
		res := o.publishEcosystem(ctx, root, version, a, ecosystem.OfKind(pkgs, a.Kind()))
		switch res.Status {
		case StatusSkipped:
			o.Metrics.recordSkip(res.Ecosystem)
			log.Info().Str("ecosystem", string(res.Ecosystem)).Str("reason", res.Reason).Msg("ecosystem skipped")
		case StatusFailed:
			report.Failed = append(report.Failed, res.Ecosystem)
			log.Error().Str("ecosystem", string(res.Ecosystem)).Str("reason", res.Reason).Msg("ecosystem failed")
		default:
			log.Info().Str("ecosystem", string(res.Ecosystem)).Int("packages", len(res.Outcomes)).Msg("ecosystem published")
		}
		report.Ecosystems = append(report.Ecosystems, res)

		if o.Store != nil {
			if err := o.Store.WriteEcosystem(res); err != nil {
				return report, fmt.Errorf("writing result for %s: %w", res.Ecosystem, err)
			}
		}
	}

	report.FinishedAt = o.now().UTC()
	report.Status = "pass"
	if !report.OK() {
		report.Status = "fail"
	}
	o.Metrics.recordRun(report.OK())

	if o.Store != nil {
		if err := o.Store.WriteLastRun(report); err != nil {
			return report, fmt.Errorf("writing last run: %w", err)
		}
	}

	if !report.OK() {
		return report, fmt.Errorf("%w: %v", ErrPublishFailed, report.Failed)
	}
	return report, nil
}

func (o *Orchestrator) publishEcosystem(ctx context.Context, root, version string, a ecosystem.Adapter, pkgs []ecosystem.Package) EcosystemResult {
	kind := a.Kind()
	res := EcosystemResult{Ecosystem: kind}
	skip := func(format string, args ...any) EcosystemResult {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf(format, args...)
		return res
	}

	if kind.TagOnly() {
		return skip("%s modules are published by pushing the release tag", kind)
	}
	if pre := a.CheckPublishPrerequisites(ctx, root); !pre.Ready {
		return skip("prerequisites not met: %s", pre.Reason)
	}

	var public []ecosystem.Package
	for _, p := range pkgs {
		private, err := a.IsPrivate(filepath.Join(root, filepath.FromSlash(p.Path)))
		if err != nil {
			res.Status = StatusFailed
			res.Reason = fmt.Sprintf("checking whether %s is private: %v", p.Name, err)
			return res
		}
		if private {
			zerolog.Ctx(ctx).Debug().Str("package", p.Name).Msg("private package skipped")
			continue
		}
		public = append(public, p)
	}
	if len(public) == 0 {
		return skip("no publishable packages (all %d private)", len(pkgs))
	}

	ordered := public
	var deps map[string][]string
	if lister, ok := a.(ecosystem.DependencyLister); ok {
		var err error
		if deps, err = lister.InternalDependencies(root, public); err != nil {
			res.Status = StatusFailed
			res.Reason = fmt.Sprintf("reading internal dependencies: %v", err)
			return res
		}
		var cyclic bool
		if ordered, cyclic = Order(public, deps); cyclic {
			zerolog.Ctx(ctx).Warn().Str("ecosystem", string(kind)).Msg("dependency cycle detected; remaining packages keep discovery order")
		}
	}
	for _, p := range ordered {
		res.Order = append(res.Order, p.Name)
	}

	prober, canProbe := a.(ecosystem.RegistryProber)
	wait := canProbe && hasEdges(public, deps)

	for i, p := range ordered {
		if i > 0 && wait {
			prev := ordered[i-1]
			start := time.Now()
			err := WaitForPropagation(ctx, prober, prev, version, o.propagation())
			o.Metrics.recordWait(kind, time.Since(start), err)
			if err != nil {
				out := ecosystem.Failed(p.Name, err)
				res.Outcomes = append(res.Outcomes, out)
				o.Metrics.recordOutcome(kind, out)
				res.Status = StatusFailed
				res.Reason = fmt.Sprintf("%s: %v", p.Name, err)
				return res
			}
		}

		outs := a.Publish(ctx, root, version, []ecosystem.Package{p})
		if len(outs) == 0 {
			outs = []ecosystem.PublishOutcome{ecosystem.Failed(p.Name, errors.New("adapter reported no outcome"))}
		}
		for _, out := range outs {
			res.Outcomes = append(res.Outcomes, out)
			o.Metrics.recordOutcome(kind, out)
			if !out.Success {
				res.Status = StatusFailed
				res.Reason = fmt.Sprintf("%s: %s", out.PackageName, strings.TrimSpace(out.Error))
				return res
			}
		}
	}

	res.Status = StatusPublished
	return res
}

func (o *Orchestrator) propagation() Propagation {
	p := o.Propagation
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPropagation.InitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = max(DefaultPropagation.MaxDelay, p.InitialDelay)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPropagation.Timeout
	}
	return p
}
