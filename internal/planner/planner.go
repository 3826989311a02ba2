// Package planner turns an objective into an initial plan with one LLM call.
package planner

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/plan"
)

// CallName identifies planner requests to the LLM.
const CallName = "planner"

// DefaultMaxSteps is the plan length suggested to the model.
const DefaultMaxSteps = 8

//go:embed prompt.gotmpl
var promptTemplate string

//go:embed schema.json
var responseSchema string

var promptTmpl = template.Must(template.New("planner").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(promptTemplate))

// ErrPlanParse matches *ParseError.
var ErrPlanParse = errors.New("planner response is malformed")

// ParseError reports a planner response that is not a valid plan document.
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse planner response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrPlanParse.
func (e *ParseError) Is(target error) bool { return target == ErrPlanParse }

type response struct {
	Objective string          `json:"objetivo"`
	Steps     []plan.WireStep `json:"etapas"`
}

// Planner asks the LLM for the initial plan.
type Planner struct {
	llm      llm.Completer
	timeout  time.Duration
	maxSteps int
}

// New creates a planner. timeout bounds the single LLM call.
func New(c llm.Completer, timeout time.Duration, maxSteps int) *Planner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Planner{llm: c, timeout: timeout, maxSteps: maxSteps}
}

// Plan returns the steps proposed for objective. It does not check
// capability names; callers validate the plan against their registry.
func (p *Planner) Plan(ctx context.Context, objective string, caps []capability.Capability) (plan.Plan, error) {
	instructions, err := p.instructions(caps)
	if err != nil {
		return plan.Plan{}, err
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := p.llm.Complete(callCtx, llm.Request{
		Name:         CallName,
		Instructions: instructions,
		Input:        objective,
		JSON:         true,
	})
	if err != nil {
		return plan.Plan{}, fmt.Errorf("planner call: %w", err)
	}

	var doc response
	if err := llm.DecodeJSON(resp.Text, responseSchema, &doc); err != nil {
		return plan.Plan{}, &ParseError{Err: err, Raw: resp.Text}
	}

	steps := plan.FromWire(doc.Steps)
	log.Debug().
		Int("steps", len(steps)).
		Dur("duration", time.Since(started)).
		Msg("planner produced plan")

	return plan.Plan{Objective: objective, Steps: steps}, nil
}

func (p *Planner) instructions(caps []capability.Capability) (string, error) {
	var content, persist []string
	for _, c := range caps {
		switch {
		case c.CreatesContent():
			content = append(content, c.Name)
		case c.Persists():
			persist = append(persist, c.Name)
		}
	}
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		Capabilities []capability.Capability
		ContentNames []string
		PersistNames []string
		MaxSteps     int
	}{
		Capabilities: caps,
		ContentNames: content,
		PersistNames: persist,
		MaxSteps:     p.maxSteps,
	})
	if err != nil {
		return "", fmt.Errorf("execute planner prompt template: %w", err)
	}
	return buf.String(), nil
}
