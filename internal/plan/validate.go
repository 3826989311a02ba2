package plan

import (
	"errors"
	"fmt"

	"github.com/metalagman/jota/internal/capability"
)

// ErrConstraint matches *ConstraintViolation.
var ErrConstraint = errors.New("plan constraint violated")

// Resolver looks capabilities up by name.
type Resolver interface {
	Resolve(name string) (capability.Capability, error)
}

// ConstraintViolation explains why a plan or replan was rejected.
type ConstraintViolation struct {
	Step       string
	Capability string
	Reason     string
	Err        error
}

func (e *ConstraintViolation) Error() string {
	msg := e.Reason
	if e.Capability != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Capability)
	}
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	return msg
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// Is matches ErrConstraint.
func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraint }

// ValidateSteps checks a complete plan.
func ValidateSteps(r Resolver, steps []Step) error {
	return ValidateSuffix(r, nil, steps)
}

// ValidateSuffix checks a proposed remaining suffix given the steps that
// already ran. Every capability must resolve and every content-creation
// invocation, whether already completed or proposed, must be followed
// later by a persistence invocation.
func ValidateSuffix(r Resolver, completed, suffix []Step) error {
	var unsaved *ConstraintViolation
	track := func(s Step, c capability.Capability) {
		switch {
		case c.CreatesContent():
			unsaved = &ConstraintViolation{
				Step:       s.Title,
				Capability: c.Name,
				Reason:     "content is never saved by a later persistence step",
			}
		case c.Persists():
			unsaved = nil
		}
	}

	for _, s := range completed {
		if s.Status != StatusCompleted {
			continue
		}
		for _, inv := range s.Invocations {
			c, err := r.Resolve(inv.Capability)
			if err != nil {
				continue
			}
			track(s, c)
		}
	}

	for _, s := range suffix {
		if len(s.Invocations) == 0 {
			return &ConstraintViolation{Step: s.Title, Reason: "step has no capability invocations"}
		}
		for _, inv := range s.Invocations {
			c, err := r.Resolve(inv.Capability)
			if err != nil {
				return &ConstraintViolation{
					Step:       s.Title,
					Capability: inv.Capability,
					Reason:     "capability is not registered",
					Err:        err,
				}
			}
			track(s, c)
		}
	}

	if unsaved != nil {
		return unsaved
	}
	return nil
}
