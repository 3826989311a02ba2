// Package replanner asks the LLM whether the unexecuted suffix of a plan
// should change after a step finishes.
package replanner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/session"
)

// CallName identifies replanner requests to the LLM.
const CallName = "replanner"

//go:embed prompt.gotmpl
var promptTemplate string

//go:embed schema.json
var responseSchema string

var promptTmpl = template.Must(template.New("replanner").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(promptTemplate))

// ErrReplanParse matches *ParseError.
var ErrReplanParse = errors.New("replan response is malformed")

// ParseError reports a replanner response that could not be used.
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse replan response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrReplanParse.
func (e *ParseError) Is(target error) bool { return target == ErrReplanParse }

type response struct {
	NeedsReplan bool            `json:"needs_replan"`
	Reason      string          `json:"reason"`
	Updated     []plan.WireStep `json:"updated_remaining_steps"`
}

// Request carries what the replanner may see. Session is a snapshot; the
// replanner never touches the live session.
type Request struct {
	Objective    string
	Completed    []plan.Step
	Finished     plan.Step
	Remaining    []plan.Step
	Capabilities []capability.Capability
	Session      session.Snapshot
}

// Replanner evaluates the remaining suffix.
type Replanner struct {
	llm     llm.Completer
	timeout time.Duration
}

// New creates a replanner with an independent call timeout.
func New(c llm.Completer, timeout time.Duration) *Replanner {
	return &Replanner{llm: c, timeout: timeout}
}

// Evaluate returns the replan decision. It does not enforce plan
// constraints; the caller validates an accepted suffix before swapping.
// Any error should be treated as "keep the current plan".
func (r *Replanner) Evaluate(ctx context.Context, req Request) (plan.Decision, error) {
	if len(req.Remaining) == 0 {
		return plan.Decision{Reason: "no remaining steps"}, nil
	}

	instructions, err := r.instructions(req.Capabilities)
	if err != nil {
		return plan.Decision{}, err
	}
	input, err := json.MarshalIndent(struct {
		Objective string          `json:"objetivo"`
		Completed []plan.WireStep `json:"etapas_concluidas"`
		Finished  finishedView    `json:"etapa_finalizada"`
		Remaining []plan.WireStep `json:"etapas_restantes"`
		Context   map[string]any  `json:"contexto,omitempty"`
	}{
		Objective: req.Objective,
		Completed: plan.ToWire(req.Completed),
		Finished:  newFinishedView(req.Finished),
		Remaining: plan.ToWire(req.Remaining),
		Context:   req.Session.Values,
	}, "", "  ")
	if err != nil {
		return plan.Decision{}, fmt.Errorf("marshal replanner input: %w", err)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := r.llm.Complete(callCtx, llm.Request{
		Name:         CallName,
		Instructions: instructions,
		Input:        string(input),
		JSON:         true,
	})
	if err != nil {
		return plan.Decision{}, fmt.Errorf("replanner call: %w", err)
	}

	var doc response
	if err := llm.DecodeJSON(resp.Text, responseSchema, &doc); err != nil {
		return plan.Decision{}, &ParseError{Err: err, Raw: resp.Text}
	}

	if !doc.NeedsReplan {
		if len(doc.Updated) > 0 {
			log.Warn().
				Str("run_id", req.Session.RunID).
				Int("ignored_steps", len(doc.Updated)).
				Msg("replanner returned steps with needs_replan=false; ignoring them")
		}
		return plan.Decision{Reason: doc.Reason}, nil
	}
	return plan.Decision{
		NeedsReplan:           true,
		Reason:                doc.Reason,
		UpdatedRemainingSteps: plan.FromWire(doc.Updated),
	}, nil
}

type finishedView struct {
	Title   string                  `json:"titulo"`
	Status  plan.Status             `json:"status"`
	Results []plan.InvocationResult `json:"resultados"`
}

func newFinishedView(s plan.Step) finishedView {
	return finishedView{Title: s.Title, Status: s.Status, Results: s.Results}
}

func (r *Replanner) instructions(caps []capability.Capability) (string, error) {
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
	if err := promptTmpl.Execute(&buf, struct {
		Capabilities []capability.Capability
		ContentNames []string
		PersistNames []string
	}{Capabilities: caps, ContentNames: content, PersistNames: persist}); err != nil {
		return "", fmt.Errorf("execute replanner prompt template: %w", err)
	}
	return buf.String(), nil
}
