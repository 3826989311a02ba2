package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReconcileInterruptedMarksRunningRunsFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.CreateRun(ctx, "stuck", "crie atividades", ""))
	require.NoError(t, s.CreateRun(ctx, "done", "crie atividades", ""))
	require.NoError(t, s.UpdateRun(ctx, "done", Update{Status: StatusCompleted, Finished: true}, nil))

	ids, err := s.ReconcileInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck"}, ids)

	run, err := s.GetRun(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, InterruptedError, run.Error)
	assert.NotEmpty(t, run.FinishedAt)

	events, err := s.ListEvents(ctx, "stuck")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "reconciled_run", events[len(events)-1].Type)

	done, err := s.GetRun(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// A second pass finds nothing left to repair.
	ids, err = s.ReconcileInterrupted(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
