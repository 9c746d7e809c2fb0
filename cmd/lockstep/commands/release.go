// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bartekus/lockstep/internal/pipeline"
	"github.com/bartekus/lockstep/internal/projection"
)

func newCurrentCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the version of the last release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			v, err := s.pipeline.Current(cmd.Context())
			if err != nil {
				return exitError(err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newPlanCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the next version and the commits behind it",
		Long:  "Resolve the current version, classify commits since the last release and compute the next version. Nothing is written.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			plan, err := s.pipeline.Plan(cmd.Context())
			if err != nil {
				return exitError(err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			writePlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the plan as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePlan(w io.Writer, plan *pipeline.Plan) {
	kinds := make([]string, 0, len(plan.Ecosystems))
	for _, k := range plan.Ecosystems {
		kinds = append(kinds, string(k))
	}
	_, _ = fmt.Fprintf(w, "Current: %s\n", plan.Current)
	_, _ = fmt.Fprintf(w, "Next:    %s (%s)\n", plan.Next, plan.Bump)
	_, _ = fmt.Fprintf(w, "Ecosystems: %s\n\n", strings.Join(kinds, ", "))

	rows := make([][]string, 0, len(plan.Packages))
	for _, p := range plan.Packages {
		rows = append(rows, []string{p.Name, string(p.Kind), p.Path, p.Version})
	}
	_, _ = io.WriteString(w, projection.RenderTable([]string{"Package", "Ecosystem", "Path", "Version"}, rows))

	if len(plan.Commits) == 0 {
		_, _ = fmt.Fprintln(w, "\nNo commits since the last release.")
		return
	}
	_, _ = fmt.Fprintf(w, "\nCommits (%d):\n", len(plan.Commits))
	for _, c := range plan.Commits {
		label := c.Type
		if label == "" {
			label = "-"
		}
		if c.IsBreaking {
			label += "!"
		}
		_, _ = fmt.Fprintf(w, "  %s %-9s %s\n", c.ShortHash(), label, c.Text())
	}
}

func newPrepareCommand(opts *globalOptions) *cobra.Command {
	var (
		dryRun   bool
		notesOut string
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Write the next version into every manifest and update changelogs",
		Long: `Write the next version into every package manifest and prepend a section to
each affected changelog. Committing, tagging and pushing are left to the caller;
the release commit title is printed last.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			out, err := s.pipeline.Prepare(cmd.Context(), dryRun)
			if err != nil {
				return exitError(err)
			}

			w := cmd.OutOrStdout()
			if !out.Plan.Releasable() {
				_, _ = fmt.Fprintf(w, "Nothing to release; staying at %s.\n", out.Plan.Current)
				return nil
			}

			verb := "Updated"
			if dryRun {
				verb = "Would update"
			}
			_, _ = fmt.Fprintf(w, "%s %d packages to %s (%s)\n", verb, len(out.Plan.Packages), out.Plan.Next, out.Plan.Bump)
			for _, f := range out.Files() {
				rel, err := filepath.Rel(s.root, f)
				if err != nil {
					rel = f
				}
				_, _ = fmt.Fprintf(w, "  %s\n", filepath.ToSlash(rel))
			}

			if notesOut != "" && !dryRun {
				if err := projection.AtomicWrite(notesOut, []byte(out.Notes)); err != nil {
					return fmt.Errorf("writing release notes: %w", err)
				}
			}
			_, _ = fmt.Fprintf(w, "Release commit: %s\n", out.CommitTitle)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and report without writing files")
	cmd.Flags().StringVar(&notesOut, "notes-out", "", "also write the release description to this file")
	return cmd
}

func newNotesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notes",
		Short: "Print the release description for pending commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			text, err := s.pipeline.Notes(cmd.Context())
			if err != nil {
				return exitError(err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
}
