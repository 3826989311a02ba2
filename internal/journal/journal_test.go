package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/capability/capabilitytest"
	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/executor"
	"github.com/metalagman/jota/internal/narrator"
	"github.com/metalagman/jota/internal/orchestrator"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/replanner"
)

func openStore(t *testing.T) *db.Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "jota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return db.NewStore(conn)
}

type stubPlanner []plan.Step

func (p stubPlanner) Plan(context.Context, string, []capability.Capability) (plan.Plan, error) {
	return plan.Plan{Steps: plan.CloneSteps(p)}, nil
}

type stubNarrator struct{}

func (stubNarrator) Describe(_ context.Context, req narrator.Request) narrator.Result {
	return narrator.Result{Text: narrator.Fallback(req), Fallback: true}
}

type stubReplanner struct{}

func (stubReplanner) Evaluate(context.Context, replanner.Request) (plan.Decision, error) {
	return plan.Decision{Reason: "seguir"}, nil
}

func step(title, capability string) plan.Step {
	return plan.Step{Title: title, Invocations: []plan.Invocation{{Capability: capability, Parameters: map[string]any{}}}}
}

func newOrchestrator(t *testing.T, store *db.Store, overrides map[string]capability.ExecuteFunc) *orchestrator.Orchestrator {
	t.Helper()
	reg, _ := capabilitytest.Registry(t, overrides)
	orch, err := orchestrator.New(orchestrator.Deps{
		Registry: reg,
		Planner: stubPlanner{
			step("Buscar", "pesquisar_atividades_disponiveis"),
			step("Criar", "criar_atividade"),
			step("Salvar", "salvar_atividades_bd"),
		},
		Executor:  executor.New(reg, 0),
		Narrator:  stubNarrator{},
		Replanner: stubReplanner{},
		Observers: []orchestrator.Observer{New(store)},
	}, orchestrator.Options{})
	require.NoError(t, err)
	return orch
}

func TestJournal_RecordsCompletedRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	orch := newOrchestrator(t, store, nil)

	_, err := orch.Run(ctx, "crie uma atividade", orchestrator.RunOptions{RunID: "run-1", Owner: "prof"})
	require.NoError(t, err)

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, run.Status)
	assert.Equal(t, "prof", run.Owner)
	assert.Equal(t, 3, run.StepsRun)
	assert.Equal(t, 3, run.CurrentStepIndex)
	assert.NotEmpty(t, run.FinishedAt)

	steps, err := store.ListSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "Salvar", steps[2].Title)
	assert.Contains(t, steps[2].StepJSON, "salvar_atividades_bd")

	narrations, err := store.ListNarrations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, narrations, 3)
	assert.True(t, narrations[0].Fallback)

	events, err := store.ListEvents(ctx, "run-1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "run_started", events[0].Type)
	assert.Equal(t, "plan_created", events[1].Type)
	assert.Equal(t, "run_finished", events[len(events)-1].Type)
}

func TestJournal_RecordsFailureAndRetryAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	fail := true
	orch := newOrchestrator(t, store, map[string]capability.ExecuteFunc{
		"criar_atividade": func(context.Context, capability.Invocation) (capability.Result, error) {
			if fail {
				return capability.Result{}, errors.New("quota")
			}
			return capability.Result{Summary: "criada"}, nil
		},
	})

	exec, err := orch.Run(ctx, "crie uma atividade", orchestrator.RunOptions{RunID: "run-2"})
	require.Error(t, err)

	run, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "quota")

	fail = false
	_, err = orch.Retry(ctx, exec)
	require.NoError(t, err)

	run, err = store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, db.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.Retries)
	assert.Empty(t, run.Error)

	steps, err := store.ListSteps(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, 1, steps[1].StepIndex)
	assert.Equal(t, 1, steps[1].Attempt)
	assert.Equal(t, db.StatusFailed, steps[1].Status)
	assert.Equal(t, 2, steps[2].Attempt)
	assert.Equal(t, db.StatusCompleted, steps[2].Status)
}

func TestJournal_CancelledRun(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	orch := newOrchestrator(t, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := orch.Run(ctx, "crie", orchestrator.RunOptions{RunID: "run-3"})
	require.ErrorIs(t, err, context.Canceled)

	status, err := store.GetRunStatus(context.Background(), "run-3")
	require.NoError(t, err)
	assert.Equal(t, db.StatusCancelled, status)
}

func TestJournal_ForgetsProgressOfTerminalRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)
	j := New(store)

	for _, tc := range []struct {
		id    string
		state orchestrator.State
	}{
		{id: "run-ok", state: orchestrator.StateCompleted},
		{id: "run-cancelled", state: orchestrator.StateCancelled},
		{id: "run-failed", state: orchestrator.StateFailed},
	} {
		require.NoError(t, j.Observe(ctx, orchestrator.Event{Type: orchestrator.EventRunStarted, RunID: tc.id, Objective: "crie"}))
		require.NoError(t, j.Observe(ctx, orchestrator.Event{Type: orchestrator.EventRunFinished, RunID: tc.id, State: tc.state}))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Len(t, j.runs, 1)
	assert.Contains(t, j.runs, "run-failed")
}
