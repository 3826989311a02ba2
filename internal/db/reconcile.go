package db

import (
	"context"
	"database/sql"
	"fmt"
)

// InterruptedError is recorded on runs that were still running when their
// process went away.
const InterruptedError = "interrupted: process stopped before the run finished"

// ReconcileInterrupted marks every run still in the running status as failed
// and records a reconciled_run event for each. Call it only when no other
// process can be driving runs against this database.
func (s *Store) ReconcileInterrupted(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.inTx(ctx, "reconcile runs", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT run_id FROM runs WHERE status=? ORDER BY created_at`, StatusRunning)
		if err != nil {
			return fmt.Errorf("list running runs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan run: %w", err)
			}
			ids = append(ids, id)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate runs: %w", err)
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, error=?, finished_at=? WHERE run_id=?`,
				StatusFailed, InterruptedError, s.timestamp(), id); err != nil {
				return fmt.Errorf("mark run %s: %w", id, err)
			}
			if err := s.insertEvent(ctx, tx, id, Event{
				Type:    "reconciled_run",
				Message: "run was still running at startup; marked failed during recovery",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
