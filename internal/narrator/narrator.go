// Package narrator writes short first-person status messages after each
// step. Narration is display-only and never feeds back into control flow.
package narrator

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

	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/session"
)

// CallName identifies narrator requests to the LLM.
const CallName = "narrator"

// Canned messages used when the LLM cannot narrate. Both take the 1-based
// step number and the total step count.
const (
	FallbackSuccess = "Concluí a etapa %d de %d e sigo cuidando do seu pedido."
	FallbackFailure = "Não consegui concluir a etapa %d de %d. Parei a execução para não deixar nada pela metade."
)

// ErrNarrationTimeout reports that the narrator call ran out of time.
var ErrNarrationTimeout = errors.New("narration timed out")

//go:embed prompt.gotmpl
var promptTemplate string

var promptTmpl = template.Must(template.New("narrator").Parse(promptTemplate))

// Request describes the step to narrate.
type Request struct {
	Objective  string
	Step       plan.Step
	Next       *plan.Step
	StepIndex  int
	TotalSteps int
	Err        error
	Session    session.Snapshot
}

// Result is the narration for one step.
type Result struct {
	Text     string
	Fallback bool
	// Err holds the cause when Fallback is set.
	Err error
}

// Narrator calls the LLM with an independent timeout.
type Narrator struct {
	llm     llm.Completer
	timeout time.Duration
}

// New creates a narrator.
func New(c llm.Completer, timeout time.Duration) *Narrator {
	return &Narrator{llm: c, timeout: timeout}
}

// Describe never fails; problems degrade to a canned message.
func (n *Narrator) Describe(ctx context.Context, req Request) Result {
	text, err := n.describe(ctx, req)
	if err == nil {
		return Result{Text: text}
	}
	log.Warn().
		Err(err).
		Str("run_id", req.Session.RunID).
		Int("step_index", req.StepIndex).
		Msg("narration degraded to fallback")
	return Result{Text: Fallback(req), Fallback: true, Err: err}
}

// Fallback renders the canned message for req.
func Fallback(req Request) string {
	format := FallbackSuccess
	if req.Err != nil || req.Step.Status == plan.StatusFailed {
		format = FallbackFailure
	}
	total := req.TotalSteps
	if total < req.StepIndex+1 {
		total = req.StepIndex + 1
	}
	return fmt.Sprintf(format, req.StepIndex+1, total)
}

func (n *Narrator) describe(ctx context.Context, req Request) (string, error) {
	failed := req.Err != nil || req.Step.Status == plan.StatusFailed
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct {
		Failed  bool
		HasNext bool
	}{Failed: failed, HasNext: req.Next != nil}); err != nil {
		return "", fmt.Errorf("execute narrator prompt template: %w", err)
	}

	input, err := json.MarshalIndent(newInput(req), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal narrator input: %w", err)
	}

	callCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	resp, err := n.llm.Complete(callCtx, llm.Request{
		Name:         CallName,
		Instructions: buf.String(),
		Input:        string(input),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrNarrationTimeout, err)
		}
		return "", fmt.Errorf("narrator call: %w", err)
	}

	text := Clean(resp.Text)
	if text == "" {
		return "", llm.ErrEmptyOutput
	}
	return text, nil
}

type input struct {
	Objective  string         `json:"objetivo"`
	StepNumber int            `json:"etapa"`
	TotalSteps int            `json:"total_etapas"`
	Step       stepView       `json:"etapa_concluida"`
	Next       *stepView      `json:"proxima_etapa,omitempty"`
	Error      string         `json:"erro,omitempty"`
	Context    map[string]any `json:"contexto,omitempty"`
}

type stepView struct {
	Title       string                  `json:"titulo"`
	Description string                  `json:"descricao,omitempty"`
	Status      plan.Status             `json:"status,omitempty"`
	Results     []plan.InvocationResult `json:"resultados,omitempty"`
}

func newInput(req Request) input {
	in := input{
		Objective:  req.Objective,
		StepNumber: req.StepIndex + 1,
		TotalSteps: req.TotalSteps,
		Step: stepView{
			Title:       req.Step.Title,
			Description: req.Step.Description,
			Status:      req.Step.Status,
			Results:     req.Step.Results,
		},
		Context: req.Session.Values,
	}
	if req.Next != nil {
		in.Next = &stepView{Title: req.Next.Title, Description: req.Next.Description}
	}
	if req.Err != nil {
		in.Error = req.Err.Error()
	}
	return in
}

var emphasis = strings.NewReplacer("**", "", "__", "", "`", "", "*", "")

// Clean strips markdown emphasis, headings and bullets and folds the text
// onto one line.
func Clean(s string) string {
	lines := strings.Split(emphasis.Replace(s), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#>")
		line = strings.TrimPrefix(strings.TrimSpace(line), "- ")
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
