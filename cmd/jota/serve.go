package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/metalagman/jota/internal/api"
	"github.com/metalagman/jota/internal/app"
	"github.com/metalagman/jota/internal/config"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	options := []fx.Option{
		fx.NopLogger,
		fx.Supply(cfg),
		app.Module,
		fx.Provide(
			func(rt *app.Runtime) *api.Manager { return api.NewManager(rt.Orchestrator) },
			func(rt *app.Runtime, runs *api.Manager) *echo.Echo {
				return api.New(api.Deps{
					Runs:         runs,
					Store:        rt.Store,
					Capabilities: rt.Registry,
					Metrics:      rt.Metrics.Handler(),
				})
			},
		),
		fx.Invoke(registerServer),
	}
	if completerOverride != nil {
		options = append(options, fx.Decorate(func(app.Completers) app.Completers {
			return app.SameCompleter(completerOverride)
		}))
	}

	fxApp := fx.New(options...)
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return fxApp.Stop(stopCtx)
}

func registerServer(lc fx.Lifecycle, cfg config.Config, rt *app.Runtime, e *echo.Echo, runs *api.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The server owns the database; anything still running was
			// left behind by a previous process.
			ids, err := rt.Store.ReconcileInterrupted(ctx)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				log.Warn().Strs("run_ids", ids).Msg("marked interrupted runs as failed")
			}
			go func() {
				log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
				if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := runs.Shutdown(ctx)
			return errors.Join(err, e.Shutdown(ctx))
		},
	})
}
