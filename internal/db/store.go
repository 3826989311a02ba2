package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses stored in the runs table mirror the orchestrator states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Store provides persistence for runs, steps and their journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store for run/step persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID            string `json:"run_id"`
	CreatedAt        string `json:"created_at"`
	Objective        string `json:"objective"`
	Owner            string `json:"owner,omitempty"`
	Status           string `json:"status"`
	CurrentStepIndex int    `json:"current_step_index"`
	StepsRun         int    `json:"steps_run"`
	Replans          int    `json:"replans"`
	Retries          int    `json:"retries"`
	Error            string `json:"error,omitempty"`
	FinishedAt       string `json:"finished_at,omitempty"`
}

// StepRecord represents a committed step attempt.
type StepRecord struct {
	RunID     string `json:"run_id"`
	StepIndex int    `json:"step_index"`
	Attempt   int    `json:"attempt"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
	StepJSON  string `json:"step_json"`
	Error     string `json:"error,omitempty"`
}

// NarrationRecord is one stored narration.
type NarrationRecord struct {
	RunID     string `json:"run_id"`
	StepIndex int    `json:"step_index"`
	StepTitle string `json:"step_title"`
	Text      string `json:"text"`
	Fallback  bool   `json:"fallback"`
	CreatedAt string `json:"created_at"`
}

// Update contains updates for a run record.
type Update struct {
	CurrentStepIndex int
	StepsRun         int
	Replans          int
	Retries          int
	Status           string
	Error            string
	Finished         bool
}

// Event represents a timeline event for a run.
type Event struct {
	Seq      int    `json:"seq"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	DataJSON string `json:"data_json,omitempty"`
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// CreateRun inserts the run record and a run_started event.
func (s *Store) CreateRun(ctx context.Context, runID, objective, owner string) error {
	return s.inTx(ctx, "create run", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, objective, owner, status)
			VALUES(?, ?, ?, ?, ?)`,
			runID, s.timestamp(), objective, owner, StatusRunning); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return s.insertEvent(ctx, tx, runID, Event{Type: "run_started", Message: "run started"})
	})
}

// UpdateRun applies a run update and optional event without inserting a step.
func (s *Store) UpdateRun(ctx context.Context, runID string, update Update, event *Event) error {
	return s.inTx(ctx, "update run", func(tx *sql.Tx) error {
		if event != nil {
			if err := s.insertEvent(ctx, tx, runID, *event); err != nil {
				return err
			}
		}
		return s.updateRun(ctx, tx, runID, update)
	})
}

// CommitStep inserts the step attempt, events, and updates the run in one
// transaction. Attempt numbers are assigned per step index.
func (s *Store) CommitStep(ctx context.Context, step StepRecord, events []Event, update Update) error {
	return s.inTx(ctx, "commit step", func(tx *sql.Tx) error {
		var attempt int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt), 0) FROM steps WHERE run_id=? AND step_index=?`,
			step.RunID, step.StepIndex)
		if err := row.Scan(&attempt); err != nil {
			return fmt.Errorf("read step attempt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO steps(run_id, step_index, attempt, title, status, started_at, ended_at, step_json, error)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.RunID, step.StepIndex, attempt+1, step.Title, step.Status, step.StartedAt, step.EndedAt,
			step.StepJSON, nullableString(step.Error)); err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
		for _, ev := range events {
			if err := s.insertEvent(ctx, tx, step.RunID, ev); err != nil {
				return err
			}
		}
		return s.updateRun(ctx, tx, step.RunID, update)
	})
}

// AddNarration stores a narration and its event.
func (s *Store) AddNarration(ctx context.Context, n NarrationRecord) error {
	return s.inTx(ctx, "add narration", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO narrations(run_id, step_index, step_title, text, fallback, created_at)
			VALUES(?, ?, ?, ?, ?, ?)`,
			n.RunID, n.StepIndex, n.StepTitle, n.Text, n.Fallback, s.timestamp()); err != nil {
			return fmt.Errorf("insert narration: %w", err)
		}
		return s.insertEvent(ctx, tx, n.RunID, Event{Type: "narration", Message: n.Text})
	})
}

// AppendEvent adds an event to the run timeline.
func (s *Store) AppendEvent(ctx context.Context, runID string, ev Event) error {
	return s.inTx(ctx, "append event", func(tx *sql.Tx) error {
		return s.insertEvent(ctx, tx, runID, ev)
	})
}

func (s *Store) inTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin %s: %w", what, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", what, err)
	}
	return nil
}

func (s *Store) updateRun(ctx context.Context, tx *sql.Tx, runID string, update Update) error {
	var finishedAt any
	if update.Finished {
		finishedAt = s.timestamp()
	}
	res, err := tx.ExecContext(ctx, `UPDATE runs SET current_step_index=?, steps_run=?, replans=?, retries=?, status=?, error=?, finished_at=?
		WHERE run_id=?`,
		update.CurrentStepIndex, update.StepsRun, update.Replans, update.Retries, update.Status,
		nullableString(update.Error), finishedAt, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, runID string, ev Event) error {
	seq, err := s.nextSeq(ctx, tx, runID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq, s.timestamp(), ev.Type, ev.Message, nullableString(ev.DataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, tx *sql.Tx, runID string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

const runColumns = `run_id, created_at, objective, owner, status, current_step_index, steps_run, replans, retries,
	COALESCE(error, ''), COALESCE(finished_at, '')`

func scanRun(row interface{ Scan(...any) error }) (RunRecord, error) {
	var r RunRecord
	err := row.Scan(&r.RunID, &r.CreatedAt, &r.Objective, &r.Owner, &r.Status, &r.CurrentStepIndex,
		&r.StepsRun, &r.Replans, &r.Retries, &r.Error, &r.FinishedAt)
	return r, err
}

// GetRun returns the run with id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	r, err := s.GetRun(ctx, runID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return r.Status, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSteps returns every step attempt of a run in execution order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, step_index, attempt, title, status, started_at, ended_at, step_json, COALESCE(error, '')
		FROM steps WHERE run_id=? ORDER BY step_index, attempt`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StepRecord
	for rows.Next() {
		var r StepRecord
		if err := rows.Scan(&r.RunID, &r.StepIndex, &r.Attempt, &r.Title, &r.Status, &r.StartedAt, &r.EndedAt, &r.StepJSON, &r.Error); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEvents returns the run timeline in order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, COALESCE(data_json, '') FROM events WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.TS, &ev.Type, &ev.Message, &ev.DataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListNarrations returns the narrations of a run in order.
func (s *Store) ListNarrations(ctx context.Context, runID string) ([]NarrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, step_index, step_title, text, fallback, created_at
		FROM narrations WHERE run_id=? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list narrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NarrationRecord
	for rows.Next() {
		var n NarrationRecord
		if err := rows.Scan(&n.RunID, &n.StepIndex, &n.StepTitle, &n.Text, &n.Fallback, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan narration: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its journal.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}
