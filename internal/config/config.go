// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads .lockstep.yaml from the repository root.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bartekus/lockstep/internal/changelog"
	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/notes"
	"github.com/bartekus/lockstep/internal/publish"
	"github.com/bartekus/lockstep/internal/version"
)

// FileName is the configuration file looked up at the repository root.
const FileName = ".lockstep.yaml"

const (
	EnvEcosystems         = "LOCKSTEP_ECOSYSTEMS"
	EnvNPMRegistry        = "LOCKSTEP_NPM_REGISTRY"
	EnvCratesRegistry     = "LOCKSTEP_CRATES_REGISTRY"
	EnvPropagationTimeout = "LOCKSTEP_PROPAGATION_TIMEOUT"
)

// Config models .lockstep.yaml.
type Config struct {
	// Ecosystems restricts detection to the listed kinds. Empty means every
	// ecosystem found at the root.
	Ecosystems []string        `yaml:"ecosystems" validate:"dive,oneof=npm cargo go"`
	Changelog  ChangelogConfig `yaml:"changelog"`
	History    HistoryConfig   `yaml:"history"`
	Publish    PublishConfig   `yaml:"publish"`
	Notes      notes.Limits    `yaml:"notes"`
}

type ChangelogConfig struct {
	File string `yaml:"file" validate:"required"`
}

type HistoryConfig struct {
	SearchDepths []int `yaml:"search_depths" validate:"dive,gt=0"`
	// MaxCommits caps history reads when no release marker exists.
	MaxCommits int `yaml:"max_commits" validate:"gte=0"`
}

type PublishConfig struct {
	Propagation    publish.Propagation `yaml:"propagation"`
	NPMRegistry    string              `yaml:"npm_registry" validate:"omitempty,url"`
	CratesRegistry string              `yaml:"crates_registry" validate:"omitempty,url"`
	StateDir       string              `yaml:"state_dir" validate:"required"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Changelog: ChangelogConfig{File: changelog.DefaultFile},
		History: HistoryConfig{
			SearchDepths: append([]int(nil), version.DefaultSearchDepths...),
		},
		Publish: PublishConfig{
			Propagation: publish.DefaultPropagation,
			StateDir:    publish.DefaultStateDir,
		},
		Notes: notes.DefaultLimits,
	}
}

// Load reads the configuration for the repository at root. An explicit
// path must exist; the default root/.lockstep.yaml may be absent.
// Environment overrides are applied before validation.
func Load(root, path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer func() { _ = f.Close() }()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvEcosystems)); v != "" {
		c.Ecosystems = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Ecosystems = append(c.Ecosystems, strings.ToLower(k))
			}
		}
	}
	if v := strings.TrimSpace(getenv(EnvNPMRegistry)); v != "" {
		c.Publish.NPMRegistry = v
	}
	if v := strings.TrimSpace(getenv(EnvCratesRegistry)); v != "" {
		c.Publish.CratesRegistry = v
	}
	if v := strings.TrimSpace(getenv(EnvPropagationTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvPropagationTimeout, err)
		}
		c.Publish.Propagation.Timeout = d
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the rules that span fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}

	seen := make(map[string]bool, len(c.Ecosystems))
	for _, k := range c.Ecosystems {
		if seen[k] {
			return fmt.Errorf("config: ecosystems: %q listed twice", k)
		}
		seen[k] = true
	}
	if filepath.IsAbs(c.Changelog.File) || strings.ContainsAny(c.Changelog.File, `/\`) {
		return fmt.Errorf("config: changelog.file: must be a file name, got %q", c.Changelog.File)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "oneof":
		return fmt.Sprintf("%s: %v is not one of [%s]", field, fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%s: %q is not a URL", field, fe.Value())
	default:
		return fmt.Sprintf("%s: must be %s %s", field, fe.Tag(), fe.Param())
	}
}

// Kinds returns the configured ecosystem filter.
func (c Config) Kinds() []ecosystem.Kind {
	out := make([]ecosystem.Kind, 0, len(c.Ecosystems))
	for _, k := range c.Ecosystems {
		out = append(out, ecosystem.Kind(k))
	}
	return out
}

// StatePath resolves the publish state directory against root.
func (c Config) StatePath(root string) string {
	if filepath.IsAbs(c.Publish.StateDir) {
		return c.Publish.StateDir
	}
	return filepath.Join(root, filepath.FromSlash(c.Publish.StateDir))
}
