// Package executor runs the capability invocations of one plan step.
package executor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/session"
)

// DefaultTimeout bounds a capability call when none is configured.
const DefaultTimeout = 90 * time.Second

// ErrCapabilityExecution matches *CapabilityExecutionError.
var ErrCapabilityExecution = errors.New("capability execution failed")

// CapabilityExecutionError wraps a failure returned by a capability's
// external call, including its timeout.
type CapabilityExecutionError struct {
	Capability string
	Err        error
}

func (e *CapabilityExecutionError) Error() string {
	return fmt.Sprintf("capability %q failed: %v", e.Capability, e.Err)
}

func (e *CapabilityExecutionError) Unwrap() error { return e.Err }

// Is matches ErrCapabilityExecution.
func (e *CapabilityExecutionError) Is(target error) bool {
	return target == ErrCapabilityExecution
}

// Outcome is the result of running one step.
type Outcome struct {
	Step     plan.Step
	Err      error
	Duration time.Duration
}

// Executor resolves, validates and runs invocations in listed order.
type Executor struct {
	caps    plan.Resolver
	timeout time.Duration
}

// New creates an executor. A non-positive timeout selects DefaultTimeout.
func New(caps plan.Resolver, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{caps: caps, timeout: timeout}
}

// Run executes step against sess. The first failing invocation stops the
// step; values merged by earlier invocations stay in the session.
func (e *Executor) Run(ctx context.Context, step plan.Step, stepIndex int, sess *session.Context) Outcome {
	started := time.Now()
	out := step.Clone()
	out.Status = plan.StatusRunning
	out.Results = make([]plan.InvocationResult, 0, len(step.Invocations))
	out.Err = ""

	for i, inv := range step.Invocations {
		key := sess.IdempotencyKey(stepIndex, i)
		res, err := e.invoke(ctx, inv, stepIndex, key, sess)
		record := plan.InvocationResult{
			Capability:     inv.Capability,
			IdempotencyKey: key,
			Summary:        res.Summary,
			Data:           res.Data,
		}
		if err != nil {
			record.Err = err.Error()
			out.Results = append(out.Results, record)
			out.Status = plan.StatusFailed
			out.Err = err.Error()
			log.Warn().
				Err(err).
				Str("run_id", sess.ID()).
				Int("step_index", stepIndex).
				Str("capability", inv.Capability).
				Msg("invocation failed")
			return Outcome{Step: out, Err: err, Duration: time.Since(started)}
		}
		out.Results = append(out.Results, record)
		for _, k := range slices.Sorted(maps.Keys(res.Data)) {
			sess.Put(k, res.Data[k], inv.Capability, stepIndex)
		}
	}

	out.Status = plan.StatusCompleted
	return Outcome{Step: out, Duration: time.Since(started)}
}

func (e *Executor) invoke(
	ctx context.Context,
	inv plan.Invocation,
	stepIndex int,
	key string,
	sess *session.Context,
) (capability.Result, error) {
	c, err := e.caps.Resolve(inv.Capability)
	if err != nil {
		return capability.Result{}, err
	}
	if err := capability.ValidateParameters(c, inv.Parameters); err != nil {
		return capability.Result{}, err
	}

	// Work with external effects must not be abandoned halfway when the
	// run is cancelled; it still stops at its own deadline.
	base := ctx
	if !c.Idempotent {
		base = context.WithoutCancel(ctx)
	}
	callCtx, cancel := context.WithTimeout(base, e.timeout)
	defer cancel()

	log.Debug().
		Str("run_id", sess.ID()).
		Int("step_index", stepIndex).
		Str("capability", c.Name).
		Str("idempotency_key", key).
		Msg("invoking capability")

	res, err := c.Execute(callCtx, capability.Invocation{
		Parameters:     inv.Parameters,
		Session:        sess,
		StepIndex:      stepIndex,
		IdempotencyKey: key,
	})
	if err != nil {
		if callCtx.Err() != nil && !errors.Is(err, callCtx.Err()) {
			err = fmt.Errorf("%w: %w", callCtx.Err(), err)
		}
		return capability.Result{}, &CapabilityExecutionError{Capability: c.Name, Err: err}
	}
	return res, nil
}
