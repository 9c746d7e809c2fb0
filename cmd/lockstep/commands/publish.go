// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bartekus/lockstep/internal/publish"
)

type publishOptions struct {
	stateDir    string
	metricsFile string
}

func (o *publishOptions) store(s *session) *publish.StateStore {
	dir := o.stateDir
	switch {
	case dir == "":
		dir = s.cfg.StatePath(s.root)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(s.root, dir)
	}
	return publish.NewStateStore(dir)
}

func newPublishCommand(opts *globalOptions) *cobra.Command {
	popts := &publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish every package at the current version",
		Long: `Publish each detected ecosystem's packages in dependency order, waiting for
the registry to serve a package before publishing its dependents. A failure
stops its own ecosystem only. Results are kept in the state directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}

			var metrics *publish.Metrics
			if popts.metricsFile != "" {
				metrics = publish.NewMetrics()
			}

			report, runErr := s.pipeline.Publish(cmd.Context(), popts.store(s), metrics)
			if metrics != nil && len(report.Ecosystems) > 0 {
				if err := metrics.WriteTextfile(popts.metricsFile); err != nil {
					return fmt.Errorf("writing metrics: %w", err)
				}
			}
			if len(report.Ecosystems) > 0 {
				writeReport(cmd.OutOrStdout(), &report)
			}
			return exitError(runErr)
		},
	}
	cmd.PersistentFlags().StringVar(&popts.stateDir, "state-dir", "", "directory for publish run state (default: publish.state_dir)")
	cmd.Flags().StringVar(&popts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")

	cmd.AddCommand(newPublishReportCommand(opts, popts))
	cmd.AddCommand(newPublishResetCommand(opts, popts))
	return cmd
}

func writeReport(w io.Writer, r *publish.Report) {
	_, _ = fmt.Fprintf(w, "Run %s: %s %s\n", r.RunID, r.Version, r.Status)
	for _, e := range r.Ecosystems {
		_, _ = fmt.Fprintf(w, "  %-6s %s", e.Ecosystem, e.Status)
		if e.Reason != "" {
			_, _ = fmt.Fprintf(w, " (%s)", e.Reason)
		}
		_, _ = fmt.Fprintln(w)
		for _, o := range e.Outcomes {
			mark := "ok"
			if !o.Success {
				mark = "FAILED"
			}
			_, _ = fmt.Fprintf(w, "    %s %s\n", mark, o.PackageName)
		}
	}
}

func newPublishReportCommand(opts *globalOptions, popts *publishOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the last publish run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			last, err := popts.store(s).ReadLastRun()
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), last)
			}
			if last == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No publish runs recorded.")
				return nil
			}
			writeReport(cmd.OutOrStdout(), last)
			if len(last.Failed) > 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Failed:")
				for _, k := range last.Failed {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", k)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}

func newPublishResetCommand(opts *globalOptions, popts *publishOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear publish run state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			return popts.store(s).Reset()
		},
	}
}
