package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalagman/jota/internal/app"
	"github.com/metalagman/jota/internal/config"
	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/logging"
	"github.com/metalagman/jota/internal/orchestrator"
)

// completerOverride replaces every LLM client when set. Tests use it.
var completerOverride llm.Completer

// loadConfig reads the config file. A missing file at the default path
// falls back to built-in defaults; a missing explicit path is an error.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	path := opts.configPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if cmd.Flags().Changed("config") {
			return config.Config{}, fmt.Errorf("config file %s does not exist (run `jota init`)", path)
		}
		path = ""
	}
	cfg, err := config.Load(viper.New(), path)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Log.Format == logging.FormatJSON {
		logging.Setup(cmd.ErrOrStderr(), logging.FormatJSON, opts.debug)
	}
	return cfg, nil
}

func openRuntime(ctx context.Context, cmd *cobra.Command, opts *rootOptions, observers ...orchestrator.Observer) (*app.Runtime, func() error, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	return app.Build(ctx, cfg, app.Options{Completer: completerOverride, Observers: observers})
}
