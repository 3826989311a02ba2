package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func capabilitiesCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List the capabilities the planner can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			caps := rt.Registry.List()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}
			t := table.New().Headers("NAME", "KIND", "IDEMPOTENT", "DISPLAY")
			for _, c := range caps {
				t.Row(c.Name, string(c.Kind), fmt.Sprint(c.Idempotent), c.DisplayName)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
