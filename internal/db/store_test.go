package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "nested", "jota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func TestStore_RunJournalLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", "crie 3 atividades", "prof"))
	require.NoError(t, s.CommitStep(ctx, StepRecord{
		RunID:     "run-1",
		StepIndex: 0,
		Title:     "Buscar",
		Status:    "completed",
		StartedAt: "2026-01-01T00:00:00Z",
		EndedAt:   "2026-01-01T00:00:01Z",
		StepJSON:  `{"title":"Buscar"}`,
	}, []Event{{Type: "step_finished", Message: "Buscar"}}, Update{CurrentStepIndex: 1, StepsRun: 1, Status: StatusRunning}))
	require.NoError(t, s.AddNarration(ctx, NarrationRecord{RunID: "run-1", StepIndex: 0, StepTitle: "Buscar", Text: "Encontrei 2.", Fallback: true}))
	require.NoError(t, s.UpdateRun(ctx, "run-1", Update{CurrentStepIndex: 1, StepsRun: 1, Status: StatusCompleted, Finished: true},
		&Event{Type: "run_finished", Message: "completed"}))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, "prof", run.Owner)
	assert.Equal(t, 1, run.StepsRun)
	assert.NotEmpty(t, run.FinishedAt)

	events, err := s.ListEvents(ctx, "run-1")
	require.NoError(t, err)
	var types []string
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"run_started", "step_finished", "narration", "run_finished"}, types)

	narrations, err := s.ListNarrations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, narrations, 1)
	assert.True(t, narrations[0].Fallback)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestStore_CommitStepNumbersAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.CreateRun(ctx, "run-1", "x", ""))

	for _, status := range []string{"failed", "completed"} {
		require.NoError(t, s.CommitStep(ctx, StepRecord{RunID: "run-1", StepIndex: 2, Title: "Criar", Status: status, StepJSON: "{}"},
			nil, Update{Status: StatusRunning}))
	}
	steps, err := s.ListSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Attempt)
	assert.Equal(t, "failed", steps[0].Status)
	assert.Equal(t, 2, steps[1].Attempt)
}

func TestStore_MissingRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetRun(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	status, err := s.GetRunStatus(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, status)

	require.ErrorIs(t, s.UpdateRun(ctx, "nope", Update{Status: StatusFailed}, nil), ErrNotFound)
	require.ErrorIs(t, s.DeleteRun(ctx, "nope"), ErrNotFound)
}

func TestStore_DeleteRunCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.CreateRun(ctx, "run-1", "x", ""))
	require.NoError(t, s.AddNarration(ctx, NarrationRecord{RunID: "run-1", Text: "oi"}))

	require.NoError(t, s.DeleteRun(ctx, "run-1"))
	events, err := s.ListEvents(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_UpsertActivitiesIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	batch := []Activity{
		{IdempotencyKey: "run-1/3/0#0", RunID: "run-1", Owner: "prof", Title: "Frações na pizza", Theme: "frações", Content: "v1"},
		{IdempotencyKey: "run-1/3/0#1", RunID: "run-1", Owner: "prof", Title: "Reta numérica", Theme: "frações", Content: "v1"},
	}
	n, err := s.UpsertActivities(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	batch[0].Content = "v2"
	_, err = s.UpsertActivities(ctx, batch)
	require.NoError(t, err)

	count, err := s.CountActivities(ctx, "prof")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := s.ListActivities(ctx, ActivityFilter{Owner: "prof", Theme: "PIZZA"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Content)

	other, err := s.ListActivities(ctx, ActivityFilter{Owner: "outra"})
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = s.UpsertActivities(ctx, []Activity{{Title: "sem chave"}})
	require.Error(t, err)
}
