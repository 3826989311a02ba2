// Package journal records orchestrator events into the run store so runs
// can be listed and inspected after the process exits.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/orchestrator"
)

// Store is the subset of db.Store the journal writes to.
type Store interface {
	CreateRun(ctx context.Context, runID, objective, owner string) error
	UpdateRun(ctx context.Context, runID string, update db.Update, event *db.Event) error
	CommitStep(ctx context.Context, step db.StepRecord, events []db.Event, update db.Update) error
	AddNarration(ctx context.Context, n db.NarrationRecord) error
	AppendEvent(ctx context.Context, runID string, ev db.Event) error
}

type progress struct {
	stepIndex   int
	stepsRun    int
	replans     int
	retries     int
	stepStarted time.Time
}

// Journal is an orchestrator.Observer. It is safe for concurrent runs.
type Journal struct {
	store Store

	mu   sync.Mutex
	runs map[string]*progress
}

var _ orchestrator.Observer = (*Journal)(nil)

// New creates a journal writing to store.
func New(store Store) *Journal {
	return &Journal{store: store, runs: make(map[string]*progress)}
}

// Observe implements orchestrator.Observer.
func (j *Journal) Observe(ctx context.Context, ev orchestrator.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.runs[ev.RunID]
	if p == nil {
		p = &progress{}
		j.runs[ev.RunID] = p
	}

	switch ev.Type {
	case orchestrator.EventRunStarted:
		return j.store.CreateRun(ctx, ev.RunID, ev.Objective, ev.Owner)

	case orchestrator.EventStepStarted:
		p.stepStarted = ev.At
		return j.append(ctx, ev, stepTitle(ev), nil)

	case orchestrator.EventStepFinished:
		p.stepsRun++
		status := db.StatusCompleted
		if ev.Err != "" {
			status = db.StatusFailed
		} else {
			p.stepIndex = ev.StepIndex + 1
		}
		stepJSON, err := marshal(ev.Step)
		if err != nil {
			return err
		}
		started := p.stepStarted
		if started.IsZero() {
			started = ev.At
		}
		return j.store.CommitStep(ctx, db.StepRecord{
			RunID:     ev.RunID,
			StepIndex: ev.StepIndex,
			Title:     stepTitle(ev),
			Status:    status,
			StartedAt: formatTime(started),
			EndedAt:   formatTime(ev.At),
			StepJSON:  stepJSON,
			Error:     ev.Err,
		}, []db.Event{{Type: string(ev.Type), Message: stepTitle(ev), DataJSON: errorData(ev.Err)}},
			p.update(db.StatusRunning, ""))

	case orchestrator.EventNarration:
		if ev.Narration == nil {
			return nil
		}
		return j.store.AddNarration(ctx, db.NarrationRecord{
			RunID:     ev.RunID,
			StepIndex: ev.Narration.StepIndex,
			StepTitle: ev.Narration.StepTitle,
			Text:      ev.Narration.Text,
			Fallback:  ev.Narration.Fallback,
		})

	case orchestrator.EventReplanAccepted:
		p.replans++
		return j.append(ctx, ev, ev.Reason, ev.Steps)

	case orchestrator.EventRunRetried:
		p.retries++
		return j.store.UpdateRun(ctx, ev.RunID, p.update(db.StatusRunning, ""), &db.Event{
			Type:    string(ev.Type),
			Message: stepTitle(ev),
		})

	case orchestrator.EventRunFinished:
		// Progress of a failed run is kept: it may be retried under the same id.
		if ev.State != orchestrator.StateFailed {
			delete(j.runs, ev.RunID)
		}
		status := statusOf(ev.State)
		update := p.update(status, ev.Err)
		update.Finished = true
		return j.store.UpdateRun(ctx, ev.RunID, update, &db.Event{
			Type:     string(ev.Type),
			Message:  status,
			DataJSON: errorData(ev.Err),
		})

	case orchestrator.EventPlanCreated:
		return j.append(ctx, ev, fmt.Sprintf("%d step(s) planned", len(ev.Steps)), ev.Steps)

	default:
		msg := ev.Reason
		if msg == "" {
			msg = ev.Err
		}
		return j.append(ctx, ev, msg, ev.Steps)
	}
}

func (j *Journal) append(ctx context.Context, ev orchestrator.Event, msg string, data any) error {
	dataJSON := ""
	if data != nil {
		var err error
		if dataJSON, err = marshal(data); err != nil {
			return err
		}
	}
	return j.store.AppendEvent(ctx, ev.RunID, db.Event{Type: string(ev.Type), Message: msg, DataJSON: dataJSON})
}

func (p *progress) update(status, errText string) db.Update {
	return db.Update{
		CurrentStepIndex: p.stepIndex,
		StepsRun:         p.stepsRun,
		Replans:          p.replans,
		Retries:          p.retries,
		Status:           status,
		Error:            errText,
	}
}

func statusOf(s orchestrator.State) string {
	switch s {
	case orchestrator.StateCompleted:
		return db.StatusCompleted
	case orchestrator.StateFailed:
		return db.StatusFailed
	case orchestrator.StateCancelled:
		return db.StatusCancelled
	default:
		return db.StatusRunning
	}
}

func stepTitle(ev orchestrator.Event) string {
	if ev.Step == nil {
		return ""
	}
	return ev.Step.Title
}

func errorData(errText string) string {
	if errText == "" {
		return ""
	}
	b, _ := json.Marshal(map[string]string{"error": errText})
	return string(b)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal journal data: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
