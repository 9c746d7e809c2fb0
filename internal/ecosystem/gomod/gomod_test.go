package gomod_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/ecosystem/gomod"
	"github.com/bartekus/lockstep/internal/testutil/fakehistory"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestDetect(t *testing.T) {
	a := gomod.New(nil)
	root := t.TempDir()
	assert.False(t, a.Detect(root))
	writeFile(t, root, "go.work", "go 1.22\n")
	assert.True(t, a.Detect(root))
}

func TestDiscoverPackages_SingleModule(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/solo\n\ngo 1.22\n")

	h := fakehistory.Messages("feat: one")
	h.TagList = []string{"v1.2.0", "v1.10.0", "tools/v9.0.0", "nightly"}

	pkgs, err := gomod.New(h).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, ecosystem.Package{Name: "example.com/solo", Version: "1.10.0", Path: ".", Kind: ecosystem.KindGo}, pkgs[0])
}

func TestDiscoverPackages_Workspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.work", "go 1.22\n\nuse (\n\t./api\n\t./tools\n)\n")
	writeFile(t, root, "api/go.mod", "module example.com/api\n")
	writeFile(t, root, "tools/go.mod", "module example.com/tools\n")

	h := fakehistory.Messages("feat: one")
	h.TagList = []string{"v3.0.0", "api/v0.2.0", "api/v0.10.0"}

	pkgs, err := gomod.New(h).DiscoverPackages(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "api", pkgs[0].Path)
	assert.Equal(t, "0.10.0", pkgs[0].Version)
	assert.Equal(t, "example.com/tools", pkgs[1].Name)
	assert.Equal(t, "0.0.0", pkgs[1].Version)
}

func TestTagOnlyOperations(t *testing.T) {
	a := gomod.New(nil)
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/solo\n")

	pkgs, err := a.DiscoverPackages(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, a.WriteVersions(context.Background(), root, "1.0.0", pkgs))
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "module example.com/solo\n", string(data))

	assert.Empty(t, a.Publish(context.Background(), root, "1.0.0", pkgs))
	assert.True(t, a.CheckPublishPrerequisites(context.Background(), root).Ready)
	private, err := a.IsPrivate(root)
	require.NoError(t, err)
	assert.False(t, private)
	assert.True(t, a.Kind().TagOnly())
}
