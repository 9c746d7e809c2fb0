// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Lockstep - release automation for multi-ecosystem monorepos.
It derives the next version from conventional commits, writes it into every
npm, Cargo and Go package, renders changelogs and publishes in dependency order.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package commands contains the Cobra commands of the lockstep CLI.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bartekus/lockstep/cmd/lockstep/internal/clierr"
	"github.com/bartekus/lockstep/internal/commits"
	"github.com/bartekus/lockstep/internal/config"
	"github.com/bartekus/lockstep/internal/ecosystem"
	"github.com/bartekus/lockstep/internal/gitrepo"
	"github.com/bartekus/lockstep/internal/logging"
	"github.com/bartekus/lockstep/internal/pipeline"
	"github.com/bartekus/lockstep/internal/projectroot"
	"github.com/bartekus/lockstep/internal/publish"
	"github.com/bartekus/lockstep/pkg/executil"
)

// Version is stamped at build time.
var Version = "0.0.0-dev"

type globalOptions struct {
	root    string
	config  string
	verbose bool
}

// session is the per-invocation view of the repository.
type session struct {
	root     string
	cfg      config.Config
	pipeline *pipeline.Pipeline
}

func (g *globalOptions) open() (*session, error) {
	start := g.root
	if start == "" {
		start = "."
	}
	root, err := projectroot.Find(start)
	if err != nil {
		return nil, clierr.Wrapf(clierr.Precondition, err, "locating repository from %s", start)
	}
	cfg, err := config.Load(root, g.config)
	if err != nil {
		return nil, clierr.Wrap(clierr.Precondition, "", err)
	}
	repo, err := gitrepo.Open(root)
	if err != nil {
		return nil, clierr.Wrapf(clierr.Precondition, err, "opening repository %s", root)
	}
	return &session{
		root:     root,
		cfg:      cfg,
		pipeline: pipeline.New(root, cfg, repo, executil.ExecRunner{}),
	}, nil
}

// exitError assigns an exit code to pipeline errors.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var shallow *commits.ShallowHistoryError
	switch {
	case errors.Is(err, ecosystem.ErrNoEcosystem), errors.As(err, &shallow):
		return clierr.Wrap(clierr.Precondition, "", err)
	case errors.Is(err, publish.ErrPublishFailed):
		return clierr.Wrap(clierr.Publish, "", err)
	default:
		return err
	}
}

// NewRootCmd constructs the lockstep root Cobra command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "lockstep",
		Short:         "Lockstep - one version for every package in a monorepo",
		Long:          "Lockstep plans, prepares and publishes releases of npm, Cargo and Go workspaces that share a single version.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(logging.Options{Out: cmd.ErrOrStderr(), Verbose: opts.verbose})
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "repository root (default: the enclosing git repository)")
	cmd.PersistentFlags().StringVar(&opts.config, "config", "", "config file (default: <root>/"+config.FileName+")")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of lockstep",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "lockstep version %s\n", Version)
		},
	})

	cmd.AddCommand(newCurrentCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newPrepareCommand(opts))
	cmd.AddCommand(newNotesCommand(opts))
	cmd.AddCommand(newPublishCommand(opts))

	return cmd
}
