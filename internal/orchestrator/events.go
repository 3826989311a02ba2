package orchestrator

import (
	"context"
	"time"

	"github.com/metalagman/jota/internal/plan"
)

// EventType names a loop transition.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventPlanCreated    EventType = "plan_created"
	EventStepStarted    EventType = "step_started"
	EventStepFinished   EventType = "step_finished"
	EventNarration      EventType = "narration"
	EventReplanAccepted EventType = "replan_accepted"
	EventReplanRejected EventType = "replan_rejected"
	EventReplanSkipped  EventType = "replan_skipped"
	EventRunRetried     EventType = "run_retried"
	EventRunFinished    EventType = "run_finished"
)

// Event describes one transition. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	Objective string      `json:"objective,omitempty"`
	Owner     string      `json:"owner,omitempty"`
	State     State       `json:"state"`
	StepIndex int         `json:"step_index"`
	Step      *plan.Step  `json:"step,omitempty"`
	Steps     []plan.Step `json:"steps,omitempty"`
	Narration *Narration  `json:"narration,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Err       string      `json:"error,omitempty"`
	At        time.Time   `json:"at"`
}

// Observer receives events synchronously in loop order. Errors are logged
// and otherwise ignored.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) error { return f(ctx, ev) }
