// Package orchestrator drives the plan-execute-replan loop of one run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/executor"
	"github.com/metalagman/jota/internal/narrator"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/replanner"
	"github.com/metalagman/jota/internal/session"
)

const (
	// DefaultMaxSteps bounds executed steps per run.
	DefaultMaxSteps = 20
	// DefaultMaxReplans bounds accepted replans per run.
	DefaultMaxReplans = 5
)

// Planner produces the initial plan.
type Planner interface {
	Plan(ctx context.Context, objective string, caps []capability.Capability) (plan.Plan, error)
}

// StepRunner executes one step.
type StepRunner interface {
	Run(ctx context.Context, step plan.Step, stepIndex int, sess *session.Context) executor.Outcome
}

// Narrator describes a finished step.
type Narrator interface {
	Describe(ctx context.Context, req narrator.Request) narrator.Result
}

// Replanner decides whether the remaining suffix should change.
type Replanner interface {
	Evaluate(ctx context.Context, req replanner.Request) (plan.Decision, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Registry  *capability.Registry
	Planner   Planner
	Executor  StepRunner
	Narrator  Narrator
	Replanner Replanner
	Observers []Observer
}

// Options tunes run limits.
type Options struct {
	// MaxSteps bounds executed steps, retries included. Zero selects
	// DefaultMaxSteps.
	MaxSteps int
	// MaxReplans bounds accepted replans. Zero selects DefaultMaxReplans;
	// a negative value disables replanning.
	MaxReplans int
	NewID      func() string
	Now        func() time.Time
}

// RunOptions identifies one run.
type RunOptions struct {
	RunID string
	Owner string
}

// Orchestrator is safe for concurrent runs; each run owns its Execution and
// session, and they share only the read-only registry.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("orchestrator: registry is required")
	case deps.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case deps.Executor == nil:
		return nil, errors.New("orchestrator: executor is required")
	case deps.Narrator == nil:
		return nil, errors.New("orchestrator: narrator is required")
	case deps.Replanner == nil:
		return nil, errors.New("orchestrator: replanner is required")
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.MaxReplans == 0 {
		opts.MaxReplans = DefaultMaxReplans
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// Capabilities lists the registered capabilities.
func (o *Orchestrator) Capabilities() []capability.Capability {
	return o.deps.Registry.List()
}

// Run plans objective and executes it to a terminal state. The returned
// Execution is always non-nil. The error is a *Failure when the run failed
// and wraps the context error when it was cancelled.
func (o *Orchestrator) Run(ctx context.Context, objective string, ro RunOptions) (*Execution, error) {
	runID := ro.RunID
	if runID == "" {
		runID = o.opts.NewID()
	}
	exec := &Execution{
		RunID:     runID,
		Objective: objective,
		Owner:     ro.Owner,
		State:     StatePlanning,
		StartedAt: o.opts.Now().UTC(),
		Session:   session.New(runID, objective, ro.Owner),
	}
	log.Info().Str("run_id", runID).Str("owner", ro.Owner).Msg("run started")
	o.emit(ctx, exec, Event{Type: EventRunStarted, Objective: objective, Owner: ro.Owner})

	if err := ctx.Err(); err != nil {
		return o.cancel(ctx, exec, err)
	}

	p, err := o.deps.Planner.Plan(ctx, objective, o.deps.Registry.List())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.cancel(ctx, exec, ctxErr)
		}
		return o.fail(ctx, exec, &Failure{Err: fmt.Errorf("planning: %w", err)})
	}
	if len(p.Steps) == 0 {
		return o.fail(ctx, exec, &Failure{Err: ErrEmptyPlan})
	}
	if err := plan.ValidateSteps(o.deps.Registry, p.Steps); err != nil {
		return o.fail(ctx, exec, &Failure{Err: fmt.Errorf("initial plan: %w", err)})
	}

	p.ID = runID
	p.Objective = objective
	p.Steps = plan.Pending(p.Steps)
	exec.Plan = p
	exec.Remaining = plan.CloneSteps(p.Steps)
	o.emit(ctx, exec, Event{Type: EventPlanCreated, Steps: plan.CloneSteps(p.Steps)})

	return o.loop(ctx, exec)
}

// Retry re-queues the failed step of exec at the head of the remaining
// steps and resumes with the same session. Capabilities without
// idempotency guarantees run again and may duplicate their work.
func (o *Orchestrator) Retry(ctx context.Context, exec *Execution) (*Execution, error) {
	if exec == nil || exec.State != StateFailed || exec.FailedStep == nil || exec.Session == nil {
		return exec, ErrNotRetryable
	}
	step := plan.Pending([]plan.Step{*exec.FailedStep})[0]
	exec.Remaining = append([]plan.Step{step}, exec.Remaining...)
	exec.FailedStep = nil
	exec.Failure = nil
	exec.FinishedAt = time.Time{}
	exec.Retries++
	exec.State = StateExecuting

	log.Info().Str("run_id", exec.RunID).Int("retries", exec.Retries).Msg("retrying failed step")
	o.emit(ctx, exec, Event{Type: EventRunRetried, StepIndex: len(exec.Completed), Step: &step})

	return o.loop(ctx, exec)
}

func (o *Orchestrator) loop(ctx context.Context, exec *Execution) (*Execution, error) {
	for len(exec.Remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return o.cancel(ctx, exec, err)
		}
		if exec.StepsRun >= o.opts.MaxSteps {
			return o.fail(ctx, exec, &Failure{
				Err: fmt.Errorf("%w: %d steps ran, %d remaining", ErrStepBudgetExceeded, exec.StepsRun, len(exec.Remaining)),
			})
		}

		step := exec.Remaining[0]
		exec.Remaining = exec.Remaining[1:]
		index := len(exec.Completed)

		exec.State = StateExecuting
		o.emit(ctx, exec, Event{Type: EventStepStarted, StepIndex: index, Step: &step})
		out := o.deps.Executor.Run(ctx, step, index, exec.Session)
		exec.StepsRun++
		finished := out.Step
		ev := Event{Type: EventStepFinished, StepIndex: index, Step: &finished}
		if out.Err != nil {
			ev.Err = out.Err.Error()
		}
		o.emit(ctx, exec, ev)

		if out.Err == nil {
			exec.Completed = append(exec.Completed, finished)
		}
		if err := ctx.Err(); err != nil {
			if out.Err != nil {
				// A failed step keeps its explanation even when the run was cancelled during it.
				exec.State = StateNarrating
				o.narrate(context.WithoutCancel(ctx), exec, finished, index, out.Err)
				exec.FailedStep = &finished
			}
			return o.cancel(ctx, exec, err)
		}

		exec.State = StateNarrating
		narration := o.narrate(ctx, exec, finished, index, out.Err)

		if out.Err != nil {
			exec.FailedStep = &finished
			return o.fail(ctx, exec, &Failure{
				StepTitle: finished.Title,
				StepIndex: index,
				Err:       out.Err,
				Narration: narration.Text,
			})
		}
		if len(exec.Remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return o.cancel(ctx, exec, err)
		}
		o.replan(ctx, exec, finished)
	}

	exec.State = StateCompleted
	exec.FinishedAt = o.opts.Now().UTC()
	log.Info().
		Str("run_id", exec.RunID).
		Int("steps", exec.StepsRun).
		Int("replans", exec.Replans).
		Msg("run completed")
	o.emit(ctx, exec, Event{Type: EventRunFinished})
	return exec, nil
}

func (o *Orchestrator) narrate(ctx context.Context, exec *Execution, step plan.Step, index int, stepErr error) Narration {
	var next *plan.Step
	if stepErr == nil && len(exec.Remaining) > 0 {
		n := exec.Remaining[0]
		next = &n
	}
	res := o.deps.Narrator.Describe(ctx, narrator.Request{
		Objective:  exec.Objective,
		Step:       step,
		Next:       next,
		StepIndex:  index,
		TotalSteps: index + 1 + len(exec.Remaining),
		Err:        stepErr,
		Session:    exec.Session.Snapshot(),
	})
	n := Narration{
		StepIndex: index,
		StepTitle: step.Title,
		Text:      res.Text,
		Fallback:  res.Fallback,
	}
	exec.Narrations = append(exec.Narrations, n)
	o.emit(ctx, exec, Event{Type: EventNarration, StepIndex: index, Narration: &n})
	return n
}

// replan swaps the remaining suffix only when the decision asks for it and
// the proposed suffix passes validation. Every other outcome keeps the
// current suffix untouched.
func (o *Orchestrator) replan(ctx context.Context, exec *Execution, finished plan.Step) {
	index := len(exec.Completed) - 1
	if o.opts.MaxReplans < 0 || exec.Replans >= o.opts.MaxReplans {
		o.emit(ctx, exec, Event{Type: EventReplanSkipped, StepIndex: index, Reason: "replan budget spent"})
		return
	}

	exec.State = StateReplanning
	d, err := o.deps.Replanner.Evaluate(ctx, replanner.Request{
		Objective:    exec.Objective,
		Completed:    plan.CloneSteps(exec.Completed),
		Finished:     finished.Clone(),
		Remaining:    plan.CloneSteps(exec.Remaining),
		Capabilities: o.deps.Registry.List(),
		Session:      exec.Session.Snapshot(),
	})
	if err != nil {
		log.Warn().Err(err).Str("run_id", exec.RunID).Msg("replan failed; keeping remaining steps")
		o.emit(ctx, exec, Event{Type: EventReplanRejected, StepIndex: index, Err: err.Error()})
		return
	}
	if !d.NeedsReplan {
		o.emit(ctx, exec, Event{Type: EventReplanSkipped, StepIndex: index, Reason: d.Reason})
		return
	}

	updated := plan.Pending(d.UpdatedRemainingSteps)
	if err := plan.ValidateSuffix(o.deps.Registry, exec.Completed, updated); err != nil {
		log.Warn().Err(err).Str("run_id", exec.RunID).Msg("replan rejected; keeping remaining steps")
		o.emit(ctx, exec, Event{
			Type:      EventReplanRejected,
			StepIndex: index,
			Reason:    d.Reason,
			Steps:     plan.CloneSteps(updated),
			Err:       err.Error(),
		})
		return
	}

	log.Info().
		Str("run_id", exec.RunID).
		Int("before", len(exec.Remaining)).
		Int("after", len(updated)).
		Str("reason", d.Reason).
		Msg("replan accepted")
	exec.Remaining = updated
	exec.Replans++
	o.emit(ctx, exec, Event{Type: EventReplanAccepted, StepIndex: index, Reason: d.Reason, Steps: plan.CloneSteps(updated)})
}

func (o *Orchestrator) fail(ctx context.Context, exec *Execution, f *Failure) (*Execution, error) {
	exec.State = StateFailed
	exec.Failure = f
	exec.FinishedAt = o.opts.Now().UTC()
	log.Error().Err(f).Str("run_id", exec.RunID).Msg("run failed")
	o.emit(ctx, exec, Event{Type: EventRunFinished, StepIndex: f.StepIndex, Err: f.Error()})
	return exec, f
}

func (o *Orchestrator) cancel(ctx context.Context, exec *Execution, cause error) (*Execution, error) {
	exec.State = StateCancelled
	exec.FinishedAt = o.opts.Now().UTC()
	err := fmt.Errorf("run cancelled: %w", cause)
	log.Warn().Str("run_id", exec.RunID).Msg("run cancelled")
	o.emit(ctx, exec, Event{Type: EventRunFinished, Err: err.Error()})
	return exec, err
}

// emit delivers ev to observers. Observers still receive the final events
// of a cancelled run.
func (o *Orchestrator) emit(ctx context.Context, exec *Execution, ev Event) {
	ev.RunID = exec.RunID
	ev.State = exec.State
	ev.At = o.opts.Now().UTC()
	octx := context.WithoutCancel(ctx)
	for _, obs := range o.deps.Observers {
		if err := obs.Observe(octx, ev); err != nil {
			log.Warn().Err(err).Str("run_id", exec.RunID).Str("event", string(ev.Type)).Msg("observer failed")
		}
	}
}
