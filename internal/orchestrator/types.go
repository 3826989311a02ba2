package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/session"
)

// State is the phase of a run.
type State string

const (
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateNarrating  State = "narrating"
	StateReplanning State = "replanning"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further phase follows s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	// ErrEmptyPlan is returned when the planner proposes no steps.
	ErrEmptyPlan = errors.New("planner produced an empty plan")
	// ErrStepBudgetExceeded stops runs whose replans keep adding steps.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	// ErrNotRetryable is returned by Retry for runs without a failed step.
	ErrNotRetryable = errors.New("execution has no failed step to retry")
)

// Failure is the terminal error of a failed run.
type Failure struct {
	// StepTitle and StepIndex are set when a step failed.
	StepTitle string
	StepIndex int
	Err       error
	Narration string
}

func (f *Failure) Error() string {
	if f.StepTitle == "" {
		return fmt.Sprintf("run failed: %v", f.Err)
	}
	return fmt.Sprintf("step %d %q failed: %v", f.StepIndex+1, f.StepTitle, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Narration is the user-facing message produced after a step.
type Narration struct {
	StepIndex int    `json:"step_index"`
	StepTitle string `json:"step_title"`
	Text      string `json:"text"`
	Fallback  bool   `json:"fallback"`
}

// Execution is the state of one run. It is owned by the goroutine running
// it and must not be read until Run or Retry returns.
type Execution struct {
	RunID      string      `json:"run_id"`
	Objective  string      `json:"objective"`
	Owner      string      `json:"owner,omitempty"`
	State      State       `json:"state"`
	Plan       plan.Plan   `json:"plan"`
	Completed  []plan.Step `json:"completed"`
	Remaining  []plan.Step `json:"remaining"`
	Narrations []Narration `json:"narrations"`
	StepsRun   int         `json:"steps_run"`
	Replans    int         `json:"replans"`
	Retries    int         `json:"retries"`
	Failure    *Failure    `json:"-"`
	FailedStep *plan.Step  `json:"failed_step,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`

	Session *session.Context `json:"-"`
}

// FailureText returns the failure message, if any.
func (e *Execution) FailureText() string {
	if e.Failure == nil {
		return ""
	}
	return e.Failure.Error()
}
