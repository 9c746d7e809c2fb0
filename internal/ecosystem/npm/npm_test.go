package npm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/testutil/fakerunner"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func workspace(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
  "name": "monorepo",
  "private": true,
  "workspaces": ["packages/*", "!packages/scratch"]
}
`)
	writeFile(t, root, "packages/core/package.json", `{
  "name": "@acme/core",
  "version": "1.0.0"
}
`)
	writeFile(t, root, "packages/cli/package.json", `{
    "name": "@acme/cli",
    "version": "1.0.0",
    "bin": {"acme": "bin/acme.js"},
    "dependencies": {
        "@acme/core": "^1.0.0",
        "left-pad": "^1.3.0"
    },
    "devDependencies": {"@acme/testkit": "workspace:*"}
}
`)
	writeFile(t, root, "packages/testkit/package.json", `{"name":"@acme/testkit","version":"1.0.0","private":true,"peerDependencies":{"@acme/core":"~1.0.0"}}`)
	writeFile(t, root, "packages/scratch/package.json", `{"name":"scratch"}`)
	writeFile(t, root, "node_modules/dep/package.json", `{"name":"dep"}`)
	return root
}

func TestDetect(t *testing.T) {
	a := New(&fakerunner.Runner{})
	assert.True(t, a.Detect(workspace(t)))
	assert.False(t, a.Detect(t.TempDir()))
}

func TestDiscoverPackages_Workspace(t *testing.T) {
	root := workspace(t)
	pkgs, err := New(&fakerunner.Runner{}).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, pkgs, 3)
	assert.Equal(t, ecosystem.Package{Name: "@acme/cli", Version: "1.0.0", Path: "packages/cli", Kind: ecosystem.KindNPM}, pkgs[0])
	assert.Equal(t, "@acme/core", pkgs[1].Name)
	assert.Equal(t, "packages/testkit", pkgs[2].Path)
}

func TestDiscoverPackages_WorkspacesObjectAndPnpm(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"r","workspaces":{"packages":["libs/*"]}}`)
	writeFile(t, root, "libs/a/package.json", `{"name":"a","version":"0.3.0"}`)
	pkgs, err := New(nil).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "libs/a", pkgs[0].Path)

	root = t.TempDir()
	writeFile(t, root, "package.json", `{"name":"r"}`)
	writeFile(t, root, "pnpm-workspace.yaml", "packages:\n  - 'apps/*'\n")
	writeFile(t, root, "apps/web/package.json", `{"name":"web"}`)
	pkgs, err = New(nil).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "web", pkgs[0].Name)
	assert.Equal(t, "0.0.0", pkgs[0].Version)
}

func TestDiscoverPackages_SinglePackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"solo","version":"2.1.0"}`)
	pkgs, err := New(nil).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.True(t, pkgs[0].IsRoot())
	assert.Equal(t, "2.1.0", pkgs[0].Version)
}

func TestWriteVersions_PreservesFormatting(t *testing.T) {
	root := workspace(t)
	a := New(nil)
	pkgs, err := a.DiscoverPackages(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, a.WriteVersions(context.Background(), root, "1.1.0", pkgs))

	assert.Equal(t, `{
    "name": "@acme/cli",
    "version": "1.1.0",
    "bin": {"acme": "bin/acme.js"},
    "dependencies": {
        "@acme/core": "^1.1.0",
        "left-pad": "^1.3.0"
    },
    "devDependencies": {"@acme/testkit": "workspace:*"}
}
`, readFile(t, root, "packages/cli/package.json"))
	assert.Equal(t, `{"name":"@acme/testkit","version":"1.1.0","private":true,"peerDependencies":{"@acme/core":"~1.1.0"}}`,
		readFile(t, root, "packages/testkit/package.json"))
}

func TestWriteVersions_AddsMissingVersion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", "{\n  \"name\": \"solo\",\n  \"main\": \"index.js\"\n}\n")
	a := New(nil)
	pkgs, err := a.DiscoverPackages(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, a.WriteVersions(context.Background(), root, "0.1.0", pkgs))
	assert.Equal(t, "{\n  \"name\": \"solo\",\n  \"version\": \"0.1.0\",\n  \"main\": \"index.js\"\n}\n", readFile(t, root, "package.json"))
}

func TestWriteVersions_ByteOrderMark(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", "\ufeff{\n  \"name\": \"solo\",\n  \"version\": \"1.0.0\"\n}\n")
	a := New(nil)
	pkgs, err := a.DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "solo", pkgs[0].Name)

	require.NoError(t, a.WriteVersions(context.Background(), root, "1.1.0", pkgs))
	assert.Equal(t, "\ufeff{\n  \"name\": \"solo\",\n  \"version\": \"1.1.0\"\n}\n", readFile(t, root, "package.json"))
}

func TestNextSpec(t *testing.T) {
	tests := []struct {
		spec, want string
		changed    bool
	}{
		{"^1.0.0", "^2.0.0", true},
		{"~1.0.0", "~2.0.0", true},
		{">=1.0.0", ">=2.0.0", true},
		{"1.0.0", "2.0.0", true},
		{"workspace:^", "workspace:^", false},
		{"file:../core", "file:../core", false},
		{"link:../core", "link:../core", false},
		{"latest", "latest", false},
		{"1.x", "1.x", false},
	}
	for _, tt := range tests {
		got, changed := nextSpec(tt.spec, "2.0.0")
		assert.Equal(t, tt.want, got, tt.spec)
		assert.Equal(t, tt.changed, changed, tt.spec)
	}
}

func TestIsPrivate(t *testing.T) {
	root := workspace(t)
	a := New(nil)

	private, err := a.IsPrivate(filepath.Join(root, "packages", "testkit"))
	require.NoError(t, err)
	assert.True(t, private)

	private, err = a.IsPrivate(filepath.Join(root, "packages", "core"))
	require.NoError(t, err)
	assert.False(t, private)
}

func TestInternalDependencies(t *testing.T) {
	root := workspace(t)
	a := New(nil)
	pkgs, err := a.DiscoverPackages(context.Background(), root)
	require.NoError(t, err)

	deps, err := a.InternalDependencies(root, pkgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"@acme/core"}, deps["@acme/cli"], "devDependencies and external deps are ignored")
	assert.Empty(t, deps["@acme/core"])
	assert.Equal(t, []string{"@acme/core"}, deps["@acme/testkit"])
}

func TestCheckPublishPrerequisites(t *testing.T) {
	root := workspace(t)
	env := map[string]string{}
	r := &fakerunner.Runner{}
	a := &Adapter{Runner: r, Getenv: func(k string) string { return env[k] }}

	r.Missing = map[string]bool{"npm": true}
	p := a.CheckPublishPrerequisites(context.Background(), root)
	assert.False(t, p.Ready)
	assert.Contains(t, p.Reason, "npm not found")

	r.Missing = nil
	r.Fail = func(c fakerunner.Call) bool { return c.String() == "npm whoami" }
	p = a.CheckPublishPrerequisites(context.Background(), root)
	assert.False(t, p.Ready)
	assert.Contains(t, p.Reason, "NPM_TOKEN")

	env["NODE_AUTH_TOKEN"] = "t"
	assert.True(t, a.CheckPublishPrerequisites(context.Background(), root).Ready)
}

func TestPublish_FailFast(t *testing.T) {
	root := workspace(t)
	r := &fakerunner.Runner{Fail: func(c fakerunner.Call) bool {
		return filepath.Base(c.Dir) == "core"
	}}
	a := New(r)
	pkgs := []ecosystem.Package{
		{Name: "@acme/core", Path: "packages/core", Kind: ecosystem.KindNPM},
		{Name: "@acme/cli", Path: "packages/cli", Kind: ecosystem.KindNPM},
	}

	outcomes := a.Publish(context.Background(), root, "1.1.0", pkgs)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Contains(t, outcomes[0].Error, "simulated failure")
	assert.Equal(t, []string{"npm publish --access public"}, r.Commands())
}

func TestPublish_Pnpm(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"name":"solo","version":"1.0.0"}`)
	writeFile(t, root, "pnpm-workspace.yaml", "packages: []\n")
	r := &fakerunner.Runner{}

	outcomes := New(r).Publish(context.Background(), root, "1.0.0", []ecosystem.Package{{Name: "solo", Path: "."}})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, []string{"pnpm publish --access public --no-git-checks"}, r.Commands())
}

func TestPublished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/@acme%2Fcore/1.1.0":
			w.WriteHeader(http.StatusOK)
		case "/@acme%2Fcore/9.9.9":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	a := &Adapter{Registry: srv.URL, Getenv: func(string) string { return "" }}
	pkg := ecosystem.Package{Name: "@acme/core"}

	ok, err := a.Published(context.Background(), pkg, "1.1.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Published(context.Background(), pkg, "9.9.9")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Published(context.Background(), ecosystem.Package{Name: "other"}, "1.0.0")
	require.Error(t, err)
}
