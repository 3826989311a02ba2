// Package app wires configuration, storage, LLM clients and the
// orchestrator into one runtime shared by the CLI, HTTP and MCP surfaces.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"github.com/metalagman/jota/internal/activities"
	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/config"
	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/executor"
	"github.com/metalagman/jota/internal/journal"
	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/metrics"
	"github.com/metalagman/jota/internal/narrator"
	"github.com/metalagman/jota/internal/orchestrator"
	"github.com/metalagman/jota/internal/planner"
	"github.com/metalagman/jota/internal/replanner"
)

// Completers holds one LLM client per role.
type Completers struct {
	Planner   llm.Completer
	Narrator  llm.Completer
	Replanner llm.Completer
	Generator llm.Completer
}

// Runtime is everything a surface needs to start and inspect runs.
type Runtime struct {
	Config       config.Config
	Store        *db.Store
	Registry     *capability.Registry
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Metrics
}

// Options customize Build.
type Options struct {
	// Completer, when set, serves every LLM role. Tests use it to avoid
	// network clients.
	Completer llm.Completer
	// Observers are added after the journal and metrics observers.
	Observers []orchestrator.Observer
}

// NewCompleters creates the per-role clients from cfg.
func NewCompleters(ctx context.Context, cfg config.Config) (Completers, error) {
	var out Completers
	for _, role := range []struct {
		name string
		dst  *llm.Completer
	}{
		{config.RolePlanner, &out.Planner},
		{config.RoleNarrator, &out.Narrator},
		{config.RoleReplanner, &out.Replanner},
		{config.RoleGenerator, &out.Generator},
	} {
		c, err := llm.New(ctx, cfg.LLMFor(role.name), nil)
		if err != nil {
			return Completers{}, fmt.Errorf("llm client for %s: %w", role.name, err)
		}
		*role.dst = c
	}
	return out, nil
}

// SameCompleter uses c for every role.
func SameCompleter(c llm.Completer) Completers {
	return Completers{Planner: c, Narrator: c, Replanner: c, Generator: c}
}

// OpenStore opens the configured database.
func OpenStore(cfg config.Config) (*sql.DB, *db.Store, error) {
	conn, err := db.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return conn, db.NewStore(conn), nil
}

// NewRegistry registers the activity capabilities.
func NewRegistry(cfg config.Config, store *db.Store, llms Completers) (*capability.Registry, error) {
	catalog, err := activities.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	reg, err := capability.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := activities.Register(reg, activities.Deps{
		Catalog:   catalog,
		Store:     store,
		Generator: activities.NewGenerator(llms.Generator),
	}); err != nil {
		return nil, err
	}
	return reg, nil
}

// NewOrchestrator builds the orchestrator with the journal and metrics
// observers attached.
func NewOrchestrator(
	cfg config.Config,
	reg *capability.Registry,
	llms Completers,
	store *db.Store,
	m *metrics.Metrics,
	extra ...orchestrator.Observer,
) (*orchestrator.Orchestrator, error) {
	observers := append([]orchestrator.Observer{journal.New(store), m}, extra...)
	return orchestrator.New(orchestrator.Deps{
		Registry:  reg,
		Planner:   planner.New(llms.Planner, cfg.Timeouts.Planner, planner.DefaultMaxSteps),
		Executor:  executor.New(reg, cfg.Timeouts.Capability),
		Narrator:  narrator.New(llms.Narrator, cfg.Timeouts.Narrator),
		Replanner: replanner.New(llms.Replanner, cfg.Timeouts.Replanner),
		Observers: observers,
	}, orchestrator.Options{
		MaxSteps:   cfg.Budgets.MaxSteps,
		MaxReplans: maxReplans(cfg.Budgets.MaxReplans),
	})
}

// maxReplans maps the config value, where zero disables replanning, to the
// orchestrator option, where zero selects the default.
func maxReplans(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// Build assembles a Runtime outside of fx. The returned close function
// releases the database.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Runtime, func() error, error) {
	llms := SameCompleter(opts.Completer)
	if opts.Completer == nil {
		var err error
		if llms, err = NewCompleters(ctx, cfg); err != nil {
			return nil, nil, err
		}
	}

	conn, store, err := OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	rt, err := assemble(cfg, store, llms, opts.Observers)
	if err != nil {
		return nil, nil, errors.Join(err, conn.Close())
	}
	return rt, conn.Close, nil
}

func assemble(cfg config.Config, store *db.Store, llms Completers, extra []orchestrator.Observer) (*Runtime, error) {
	reg, err := NewRegistry(cfg, store, llms)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	orch, err := NewOrchestrator(cfg, reg, llms, store, m, extra...)
	if err != nil {
		return nil, err
	}
	return &Runtime{Config: cfg, Store: store, Registry: reg, Orchestrator: orch, Metrics: m}, nil
}

// Module provides a *Runtime to an fx application. The config must be
// supplied by the caller; the database closes on stop.
var Module = fx.Module("jota",
	fx.Provide(
		func(lc fx.Lifecycle, cfg config.Config) (*db.Store, error) {
			conn, store, err := OpenStore(cfg)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{OnStop: func(context.Context) error {
				log.Debug().Str("path", cfg.Storage.Path).Msg("closing database")
				return conn.Close()
			}})
			return store, nil
		},
		func(cfg config.Config) (Completers, error) {
			return NewCompleters(context.Background(), cfg)
		},
		func(cfg config.Config, store *db.Store, llms Completers) (*Runtime, error) {
			return assemble(cfg, store, llms, nil)
		},
	),
)
