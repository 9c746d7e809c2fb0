package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// fakeAdapter implements Adapter, DependencyLister and RegistryProber.
type fakeAdapter struct {
	kind    ecosystem.Kind
	pre     ecosystem.Prerequisites
	private map[string]bool
	deps    map[string][]string
	fail    map[string]bool

	// visibleAfter is how many probes a package needs before it shows up;
	// negative means never.
	visibleAfter map[string]int

	mu        sync.Mutex
	published []string
	probes    map[string]int
}

func newFake(kind ecosystem.Kind) *fakeAdapter {
	return &fakeAdapter{kind: kind, pre: ecosystem.Ready(), probes: map[string]int{}}
}

func (f *fakeAdapter) Kind() ecosystem.Kind { return f.kind }
func (f *fakeAdapter) Detect(string) bool  { return true }

func (f *fakeAdapter) DiscoverPackages(context.Context, string) ([]ecosystem.Package, error) {
	return nil, nil
}

func (f *fakeAdapter) WriteVersions(context.Context, string, string, []ecosystem.Package) error {
	return nil
}

func (f *fakeAdapter) IsPrivate(dir string) (bool, error) {
	return f.private[filepath.Base(dir)], nil
}

func (f *fakeAdapter) CheckPublishPrerequisites(context.Context, string) ecosystem.Prerequisites {
	return f.pre
}

func (f *fakeAdapter) Publish(_ context.Context, _, _ string, pkgs []ecosystem.Package) []ecosystem.PublishOutcome {
	var out []ecosystem.PublishOutcome
	for _, p := range pkgs {
		f.mu.Lock()
		f.published = append(f.published, p.Name)
		f.mu.Unlock()
		if f.fail[p.Name] {
			out = append(out, ecosystem.Failed(p.Name, errors.New("E403 forbidden")))
			break
		}
		out = append(out, ecosystem.Succeeded(p.Name))
	}
	return out
}

func (f *fakeAdapter) InternalDependencies(string, []ecosystem.Package) (map[string][]string, error) {
	return f.deps, nil
}

func (f *fakeAdapter) Published(_ context.Context, pkg ecosystem.Package, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes[pkg.Name]++
	need, ok := f.visibleAfter[pkg.Name]
	if !ok {
		return true, nil
	}
	return need >= 0 && f.probes[pkg.Name] >= need, nil
}

func pkgs(kind ecosystem.Kind, names ...string) []ecosystem.Package {
	out := make([]ecosystem.Package, 0, len(names))
	for _, n := range names {
		out = append(out, ecosystem.Package{Name: n, Path: "packages/" + n, Version: "1.0.0", Kind: kind})
	}
	return out
}

func names(ps []ecosystem.Package) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

var fastPropagation = Propagation{InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Timeout: 200 * time.Millisecond}

func TestOrder_Diamond(t *testing.T) {
	deps := map[string][]string{
		"app":   {"left", "right", "lodash"},
		"left":  {"base"},
		"right": {"base"},
	}
	ordered, cyclic := Order(pkgs(ecosystem.KindNPM, "app", "right", "left", "base"), deps)
	assert.False(t, cyclic)
	assert.Equal(t, []string{"base", "right", "left", "app"}, names(ordered))
}

func TestOrder_IndependentKeepsDiscoveryOrder(t *testing.T) {
	ordered, cyclic := Order(pkgs(ecosystem.KindCargo, "c", "a", "b"), nil)
	assert.False(t, cyclic)
	assert.Equal(t, []string{"c", "a", "b"}, names(ordered))
}

func TestOrder_CycleFallsBackToDiscoveryOrder(t *testing.T) {
	deps := map[string][]string{
		"x": {"y"},
		"y": {"x"},
		"w": {"z"},
	}
	ordered, cyclic := Order(pkgs(ecosystem.KindNPM, "w", "x", "y", "z"), deps)
	assert.True(t, cyclic)
	assert.Equal(t, []string{"z", "w", "x", "y"}, names(ordered))
}

func TestWaitForPropagation(t *testing.T) {
	f := newFake(ecosystem.KindNPM)
	f.visibleAfter = map[string]int{"core": 3, "ghost": -1}

	err := WaitForPropagation(context.Background(), f, ecosystem.Package{Name: "core"}, "1.0.0", fastPropagation)
	require.NoError(t, err)
	assert.Equal(t, 3, f.probes["core"])

	err = WaitForPropagation(context.Background(), f, ecosystem.Package{Name: "ghost"}, "1.0.0",
		Propagation{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: 20 * time.Millisecond})
	require.ErrorIs(t, err, ErrPropagationTimeout)
	assert.Contains(t, err.Error(), "ghost@1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WaitForPropagation(ctx, f, ecosystem.Package{Name: "ghost"}, "1.0.0", fastPropagation)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_MixedEcosystems(t *testing.T) {
	npm := newFake(ecosystem.KindNPM)
	npm.deps = map[string][]string{"cli": {"core"}, "web": {"core"}}
	npm.fail = map[string]bool{"cli": true}

	cargo := newFake(ecosystem.KindCargo)
	cargo.private = map[string]bool{"testkit": true}

	gomod := newFake(ecosystem.KindGo)

	all := append(append(pkgs(ecosystem.KindNPM, "web", "cli", "core"), pkgs(ecosystem.KindCargo, "engine", "testkit")...),
		pkgs(ecosystem.KindGo, "api")...)

	dir := t.TempDir()
	metrics := NewMetrics()
	o := &Orchestrator{Propagation: fastPropagation, Store: NewStateStore(dir), Metrics: metrics}

	report, err := o.Run(context.Background(), t.TempDir(), "1.1.0", []ecosystem.Adapter{npm, cargo, gomod}, all)
	require.ErrorIs(t, err, ErrPublishFailed)
	assert.False(t, report.OK())
	assert.Equal(t, "fail", report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []ecosystem.Kind{ecosystem.KindNPM}, report.Failed)

	require.Len(t, report.Ecosystems, 3)

	npmRes := report.Ecosystems[0]
	assert.Equal(t, StatusFailed, npmRes.Status)
	assert.Equal(t, []string{"core", "web", "cli"}, npmRes.Order)
	assert.Equal(t, []string{"core", "web", "cli"}, npm.published)
	assert.Contains(t, npmRes.Reason, "cli: E403 forbidden")

	cargoRes := report.Ecosystems[1]
	assert.Equal(t, StatusPublished, cargoRes.Status, "a failure in one ecosystem does not stop another")
	assert.Equal(t, []string{"engine"}, cargo.published)

	goRes := report.Ecosystems[2]
	assert.Equal(t, StatusSkipped, goRes.Status)
	assert.NotEmpty(t, goRes.Reason)
	assert.Empty(t, gomod.published)

	last, err := o.Store.ReadLastRun()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)
	eco, err := o.Store.ReadEcosystem(ecosystem.KindCargo)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, eco.Status)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.published.WithLabelValues("npm"))+testutil.ToFloat64(metrics.published.WithLabelValues("cargo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failed.WithLabelValues("npm")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.lastRun))

	textfile := filepath.Join(dir, "lockstep.prom")
	require.NoError(t, metrics.WriteTextfile(textfile))
	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lockstep_publish_packages_published_total")
}

func TestRun_SkipsWithReasons(t *testing.T) {
	unready := newFake(ecosystem.KindNPM)
	unready.pre = ecosystem.NotReady("npm not found on PATH")

	allPrivate := newFake(ecosystem.KindCargo)
	allPrivate.private = map[string]bool{"internal": true}

	all := append(pkgs(ecosystem.KindNPM, "a"), pkgs(ecosystem.KindCargo, "internal")...)
	report, err := (&Orchestrator{}).Run(context.Background(), t.TempDir(), "2.0.0", []ecosystem.Adapter{unready, allPrivate}, all)
	require.NoError(t, err, "skips are not failures")
	assert.True(t, report.OK())

	assert.Equal(t, StatusSkipped, report.Ecosystems[0].Status)
	assert.Contains(t, report.Ecosystems[0].Reason, "npm not found on PATH")
	assert.Equal(t, StatusSkipped, report.Ecosystems[1].Status)
	assert.Contains(t, report.Ecosystems[1].Reason, "private")
	assert.Empty(t, unready.published)
	assert.Empty(t, allPrivate.published)
}

func TestRun_PropagationTimeoutFailsDependent(t *testing.T) {
	npm := newFake(ecosystem.KindNPM)
	npm.deps = map[string][]string{"cli": {"core"}}
	npm.visibleAfter = map[string]int{"core": -1}

	o := &Orchestrator{Propagation: Propagation{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: 20 * time.Millisecond}}
	report, err := o.Run(context.Background(), t.TempDir(), "1.0.1", []ecosystem.Adapter{npm}, pkgs(ecosystem.KindNPM, "cli", "core"))
	require.ErrorIs(t, err, ErrPublishFailed)

	res := report.Ecosystems[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{"core"}, npm.published, "dependent is never attempted")
	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Success)
	assert.Equal(t, "cli", res.Outcomes[1].PackageName)
	assert.Contains(t, res.Outcomes[1].Error, ErrPropagationTimeout.Error())
}

func TestRun_NoEdgesMeansNoWait(t *testing.T) {
	npm := newFake(ecosystem.KindNPM)
	npm.visibleAfter = map[string]int{"a": -1, "b": -1}

	report, err := (&Orchestrator{Propagation: fastPropagation}).Run(context.Background(), t.TempDir(), "1.0.0",
		[]ecosystem.Adapter{npm}, pkgs(ecosystem.KindNPM, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, report.Ecosystems[0].Status)
	assert.Empty(t, npm.probes)
}
