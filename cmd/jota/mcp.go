package main

import (
	"github.com/spf13/cobra"

	"github.com/metalagman/jota/internal/mcpserver"
)

func mcpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve jota as an MCP tool server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			return mcpserver.ServeStdio(cmd.Context(), mcpserver.New(rt.Orchestrator, version))
		},
	}
}
