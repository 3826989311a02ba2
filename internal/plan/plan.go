// Package plan models a goal as an ordered sequence of steps and enforces
// the structural rules every plan and replan must satisfy.
package plan

import "maps"

// Status is the lifecycle state of a step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Plan is the planner's decomposition of an objective.
type Plan struct {
	ID        string `json:"id"`
	Objective string `json:"objective"`
	Steps     []Step `json:"steps"`
}

// Step is one unit of execution carrying one or more invocations.
type Step struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Invocations []Invocation       `json:"invocations"`
	Status      Status             `json:"status"`
	Results     []InvocationResult `json:"results,omitempty"`
	Err         string             `json:"error,omitempty"`
}

// Invocation calls one capability with parameters.
type Invocation struct {
	Capability    string         `json:"capability"`
	DisplayName   string         `json:"display_name,omitempty"`
	Category      string         `json:"category,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Justification string         `json:"justification,omitempty"`
}

// InvocationResult is what one invocation produced.
type InvocationResult struct {
	Capability     string         `json:"capability"`
	IdempotencyKey string         `json:"idempotency_key"`
	Summary        string         `json:"summary,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Err            string         `json:"error,omitempty"`
}

// Decision is the replanner's verdict on the remaining suffix.
type Decision struct {
	NeedsReplan           bool   `json:"needs_replan"`
	Reason                string `json:"reason"`
	UpdatedRemainingSteps []Step `json:"updated_remaining_steps"`
}

// CapabilityNames lists the capabilities the step invokes, in order.
func (s Step) CapabilityNames() []string {
	out := make([]string, len(s.Invocations))
	for i, inv := range s.Invocations {
		out[i] = inv.Capability
	}
	return out
}

// Clone returns a copy that shares no slices or parameter maps with s.
func (s Step) Clone() Step {
	out := s
	if s.Invocations != nil {
		out.Invocations = make([]Invocation, len(s.Invocations))
		for i, inv := range s.Invocations {
			inv.Parameters = maps.Clone(inv.Parameters)
			out.Invocations[i] = inv
		}
	}
	if s.Results != nil {
		out.Results = make([]InvocationResult, len(s.Results))
		for i, r := range s.Results {
			r.Data = maps.Clone(r.Data)
			out.Results[i] = r
		}
	}
	return out
}

// CloneSteps deep-copies a step list.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

// Pending resets runtime fields so the steps can be queued.
func Pending(steps []Step) []Step {
	out := CloneSteps(steps)
	for i := range out {
		out[i].Status = StatusPending
		out[i].Results = nil
		out[i].Err = ""
	}
	return out
}
