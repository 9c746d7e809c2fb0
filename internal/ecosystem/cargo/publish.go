// SPDX-License-Identifier: AGPL-3.0-or-later

package cargo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bartekus/lockstep/internal/ecosystem"
)

// userAgent identifies probes; crates.io rejects anonymous clients.
const userAgent = "lockstep-release (https://github.com/bartekus/lockstep)"

func (a *Adapter) cargoHome() string {
	if h := a.getenv("CARGO_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cargo")
}

func (a *Adapter) CheckPublishPrerequisites(ctx context.Context, root string) ecosystem.Prerequisites {
	if _, err := a.Runner.LookPath("cargo"); err != nil {
		return ecosystem.NotReady("cargo not found on PATH")
	}
	if a.getenv("CARGO_REGISTRY_TOKEN") != "" {
		return ecosystem.Ready()
	}
	if home := a.cargoHome(); home != "" {
		for _, name := range []string{"credentials.toml", "credentials"} {
			if _, err := os.Stat(filepath.Join(home, name)); err == nil {
				zerolog.Ctx(ctx).Debug().Str("file", filepath.Join(home, name)).Msg("using cargo credentials file")
				return ecosystem.Ready()
			}
		}
	}
	return ecosystem.NotReady("no crates.io credentials: set CARGO_REGISTRY_TOKEN or run cargo login")
}

func (a *Adapter) Publish(ctx context.Context, root, v string, pkgs []ecosystem.Package) []ecosystem.PublishOutcome {
	log := zerolog.Ctx(ctx)
	outcomes := make([]ecosystem.PublishOutcome, 0, len(pkgs))
	for _, p := range pkgs {
		dir := filepath.Join(root, filepath.FromSlash(p.Path))
		log.Info().Str("crate", p.Name).Str("version", v).Msg("publishing")
		if _, err := a.Runner.Run(ctx, dir, "cargo", "publish"); err != nil {
			log.Error().Err(err).Str("crate", p.Name).Msg("publish failed")
			outcomes = append(outcomes, ecosystem.Failed(p.Name, err))
			break
		}
		outcomes = append(outcomes, ecosystem.Succeeded(p.Name))
	}
	return outcomes
}

// Published asks the registry API whether the crate version exists.
func (a *Adapter) Published(ctx context.Context, pkg ecosystem.Package, v string) (bool, error) {
	registry := a.Registry
	if registry == "" {
		registry = DefaultRegistry
	}
	u := strings.TrimSuffix(registry, "/") + "/api/v1/crates/" + url.PathEscape(pkg.Name) + "/" + url.PathEscape(v)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
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
