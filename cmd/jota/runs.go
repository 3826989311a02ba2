package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/tui"
)

func runsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(runsListCmd(opts), runsShowCmd(opts), runsDeleteCmd(opts), runsPruneCmd(opts))
	return cmd
}

func runsListCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			runs, err := rt.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no runs yet")
				return err
			}
			t := table.New().Headers("RUN", "STATUS", "STEPS", "CREATED", "OBJECTIVE")
			for _, r := range runs {
				t.Row(r.RunID, r.Status, fmt.Sprint(r.StepsRun), r.CreatedAt, r.Objective)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func runsShowCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its steps and narration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			ctx := cmd.Context()
			var r tui.Report
			if r.Run, err = rt.Store.GetRun(ctx, args[0]); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return err
			}
			if r.Steps, err = rt.Store.ListSteps(ctx, args[0]); err != nil {
				return err
			}
			if r.Narrations, err = rt.Store.ListNarrations(ctx, args[0]); err != nil {
				return err
			}

			md := r.Markdown()
			if !raw {
				if md, err = tui.Render(md, 100); err != nil {
					return err
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), md)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

func runsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			return rt.Store.DeleteRun(cmd.Context(), args[0])
		},
	}
}

func runsPruneCmd(opts *rootOptions) *cobra.Command {
	var policy db.RetentionPolicy
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old finished runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days")
			}
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			res, err := rt.Store.PruneRuns(cmd.Context(), policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d runs (kept %d)", mode, res.Deleted, res.Kept)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d run(s)\n", mode, res.Deleted, res.Considered)
			return err
		},
	}
	cmd.Flags().IntVar(&policy.KeepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&policy.KeepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
