package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/metalagman/jota/internal/config"
	"github.com/metalagman/jota/internal/logging"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "jota",
		Short:         "jota turns a teacher's goal into a narrated, replanned sequence of capability calls",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			logging.Setup(cmd.ErrOrStderr(), logging.FormatConsole, opts.debug)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "config file path")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		initCmd(opts),
		runCmd(opts),
		capabilitiesCmd(opts),
		runsCmd(opts),
		activitiesCmd(opts),
		serveCmd(opts),
		mcpCmd(opts),
	)
	return cmd
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
