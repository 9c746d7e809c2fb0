// SPDX-License-Identifier: AGPL-3.0-or-later

package npm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// client picks pnpm for pnpm workspaces and npm otherwise.
func client(root string) string {
	if _, err := os.Stat(filepath.Join(root, pnpmWorkspace)); err == nil {
		return "pnpm"
	}
	return "npm"
}

func (a *Adapter) CheckPublishPrerequisites(ctx context.Context, root string) ecosystem.Prerequisites {
	bin := client(root)
	if _, err := a.Runner.LookPath(bin); err != nil {
		return ecosystem.NotReady("%s not found on PATH", bin)
	}
	if a.getenv("NPM_TOKEN") != "" || a.getenv("NODE_AUTH_TOKEN") != "" {
		return ecosystem.Ready()
	}
	if _, err := a.Runner.Run(ctx, root, "npm", "whoami"); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("npm whoami failed")
		return ecosystem.NotReady("no npm credentials: set NPM_TOKEN or NODE_AUTH_TOKEN, or run npm login")
	}
	return ecosystem.Ready()
}

func (a *Adapter) Publish(ctx context.Context, root, v string, pkgs []ecosystem.Package) []ecosystem.PublishOutcome {
	log := zerolog.Ctx(ctx)
	bin := client(root)
	args := []string{"publish", "--access", "public"}
	if bin == "pnpm" {
		args = append(args, "--no-git-checks")
	}

	outcomes := make([]ecosystem.PublishOutcome, 0, len(pkgs))
	for _, p := range pkgs {
		dir := filepath.Join(root, filepath.FromSlash(p.Path))
		log.Info().Str("package", p.Name).Str("version", v).Str("client", bin).Msg("publishing")
		if _, err := a.Runner.Run(ctx, dir, bin, args...); err != nil {
			log.Error().Err(err).Str("package", p.Name).Msg("publish failed")
			outcomes = append(outcomes, ecosystem.Failed(p.Name, err))
			break
		}
		outcomes = append(outcomes, ecosystem.Succeeded(p.Name))
	}
	return outcomes
}

// Published asks the registry for the exact version document of pkg.
func (a *Adapter) Published(ctx context.Context, pkg ecosystem.Package, v string) (bool, error) {
	registry := a.Registry
	if registry == "" {
		registry = DefaultRegistry
	}
	u := strings.TrimSuffix(registry, "/") + "/" + url.PathEscape(pkg.Name) + "/" + url.PathEscape(v)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if token := a.getenv("NPM_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client().Do(req)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probing %s: unexpected status %s", u, resp.Status)
	}
}
