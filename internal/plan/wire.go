package plan

// WireInvocation is the LLM-facing shape of an invocation.
type WireInvocation struct {
	Name          string         `json:"nome"`
	DisplayName   string         `json:"displayName"`
	Category      string         `json:"categoria"`
	Parameters    map[string]any `json:"parametros"`
	Justification string         `json:"justificativa"`
}

// WireStep is the LLM-facing shape of a step.
type WireStep struct {
	Title        string           `json:"titulo"`
	Description  string           `json:"descricao"`
	Capabilities []WireInvocation `json:"capabilities"`
}

// Step converts the wire shape into a pending step.
func (w WireStep) Step() Step {
	invs := make([]Invocation, len(w.Capabilities))
	for i, c := range w.Capabilities {
		params := c.Parameters
		if params == nil {
			params = map[string]any{}
		}
		invs[i] = Invocation{
			Capability:    c.Name,
			DisplayName:   c.DisplayName,
			Category:      c.Category,
			Parameters:    params,
			Justification: c.Justification,
		}
	}
	return Step{
		Title:       w.Title,
		Description: w.Description,
		Invocations: invs,
		Status:      StatusPending,
	}
}

// FromWire converts a list of wire steps.
func FromWire(ws []WireStep) []Step {
	out := make([]Step, len(ws))
	for i, w := range ws {
		out[i] = w.Step()
	}
	return out
}

// ToWire renders steps in the shape the LLM reads and writes.
func ToWire(steps []Step) []WireStep {
	out := make([]WireStep, len(steps))
	for i, s := range steps {
		caps := make([]WireInvocation, len(s.Invocations))
		for j, inv := range s.Invocations {
			params := inv.Parameters
			if params == nil {
				params = map[string]any{}
			}
			caps[j] = WireInvocation{
				Name:          inv.Capability,
				DisplayName:   inv.DisplayName,
				Category:      inv.Category,
				Parameters:    params,
				Justification: inv.Justification,
			}
		}
		out[i] = WireStep{Title: s.Title, Description: s.Description, Capabilities: caps}
	}
	return out
}
