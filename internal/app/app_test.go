package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/config"
	"github.com/metalagman/jota/internal/llm/llmtest"
	"github.com/metalagman/jota/internal/orchestrator"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "jota.db")
	return cfg
}

func TestMaxReplans(t *testing.T) {
	t.Parallel()
	assert.Equal(t, -1, maxReplans(0))
	assert.Equal(t, 3, maxReplans(3))
}

func TestBuild_RunsAgainstScriptedModel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	script := llmtest.NewScript().
		On("planner", llmtest.Text(`{"etapas": [
			{"titulo": "Buscar", "capabilities": [{"nome": "pesquisar_atividades_disponiveis", "parametros": {"tema": "frações"}}]},
			{"titulo": "Analisar", "capabilities": [{"nome": "analisar_contexto"}]}
		]}`)).
		On("narrator", llmtest.Text("Feito.")).
		On("replanner", llmtest.Text(`{"needs_replan": false}`))

	rt, closeFn, err := Build(ctx, testConfig(t), Options{Completer: script})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	assert.Len(t, rt.Registry.List(), 11)

	exec, err := rt.Orchestrator.Run(ctx, "pesquise frações", orchestrator.RunOptions{RunID: "run-app"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateCompleted, exec.State)

	run, err := rt.Store.GetRun(ctx, "run-app")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.StepsRun)
}

func TestBuild_ZeroReplanBudgetSkipsReplanner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	script := llmtest.NewScript().
		On("planner", llmtest.Text(`{"etapas": [
			{"titulo": "Buscar", "capabilities": [{"nome": "pesquisar_atividades_disponiveis", "parametros": {"tema": "frações"}}]},
			{"titulo": "Analisar", "capabilities": [{"nome": "analisar_contexto"}]}
		]}`)).
		On("narrator", llmtest.Text("Feito."))
	cfg := testConfig(t)
	cfg.Budgets.MaxReplans = 0

	rt, closeFn, err := Build(ctx, cfg, Options{Completer: script})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	_, err = rt.Orchestrator.Run(ctx, "pesquise frações", orchestrator.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, script.Count("replanner"))
}
