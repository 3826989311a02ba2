package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/metalagman/jota/internal/db"
)

func activitiesCmd(opts *rootOptions) *cobra.Command {
	var filter db.ActivityFilter
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List saved activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			list, err := rt.Store.ListActivities(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no activities saved")
				return err
			}
			t := table.New().Headers("TITLE", "KIND", "THEME", "GRADE", "OWNER", "RUN")
			for _, a := range list {
				t.Row(a.Title, a.Kind, a.Theme, a.Grade, a.Owner, shortID(a.RunID))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.Flags().StringVar(&filter.Owner, "owner", "", "only activities of this teacher")
	cmd.Flags().StringVar(&filter.Theme, "tema", "", "only activities on this theme")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum activities to list")
	return cmd
}
