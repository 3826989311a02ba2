package activities

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/session"
)

// LLM call names used by the content capabilities.
const (
	GeneratorCallName  = "generator"
	ReflectionCallName = "reflection"
)

//go:embed generator_prompt.gotmpl
var generatorPrompt string

//go:embed generator_schema.json
var generatorSchema string

var generatorTmpl = template.Must(template.New("generator").Parse(generatorPrompt))

// Proposal is an activity chosen to be created.
type Proposal struct {
	Title       string `json:"titulo"`
	Kind        string `json:"tipo,omitempty"`
	Theme       string `json:"tema,omitempty"`
	Grade       string `json:"ano,omitempty"`
	Description string `json:"descricao,omitempty"`
}

// Generated is activity content produced by the generator. Key is the
// idempotency key persistence upserts on.
type Generated struct {
	Key     string `json:"chave"`
	Title   string `json:"titulo"`
	Kind    string `json:"tipo,omitempty"`
	Theme   string `json:"tema,omitempty"`
	Grade   string `json:"ano,omitempty"`
	Content string `json:"conteudo"`
}

// GenerateRequest asks for Count activities, following Proposals when set.
type GenerateRequest struct {
	Theme     string
	Grade     string
	Count     int
	Proposals []Proposal
}

// ContentGenerator writes activity content and reflections.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Generated, error)
	Reflect(ctx context.Context, snap session.Snapshot) (string, error)
}

// Generator is the LLM-backed ContentGenerator.
type Generator struct {
	llm llm.Completer
}

// NewGenerator creates a generator.
func NewGenerator(c llm.Completer) *Generator {
	return &Generator{llm: c}
}

// Generate returns exactly req.Count activities.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) ([]Generated, error) {
	if len(req.Proposals) > 0 {
		req.Count = len(req.Proposals)
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("generate: count must be > 0")
	}

	var buf bytes.Buffer
	if err := generatorTmpl.Execute(&buf, req); err != nil {
		return nil, fmt.Errorf("execute generator prompt template: %w", err)
	}
	resp, err := g.llm.Complete(ctx, llm.Request{
		Name:         GeneratorCallName,
		Instructions: buf.String(),
		Input:        fmt.Sprintf("Gere %d atividade(s).", req.Count),
		JSON:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("generator call: %w", err)
	}

	var doc struct {
		Activities []struct {
			Title   string `json:"titulo"`
			Kind    string `json:"tipo"`
			Content string `json:"conteudo"`
		} `json:"atividades"`
	}
	if err := llm.DecodeJSON(resp.Text, generatorSchema, &doc); err != nil {
		return nil, fmt.Errorf("parse generator response: %w", err)
	}
	if len(doc.Activities) < req.Count {
		return nil, fmt.Errorf("generator returned %d of %d activities", len(doc.Activities), req.Count)
	}

	out := make([]Generated, req.Count)
	for i := range out {
		a := doc.Activities[i]
		out[i] = Generated{
			Title:   strings.TrimSpace(a.Title),
			Kind:    a.Kind,
			Theme:   req.Theme,
			Grade:   req.Grade,
			Content: a.Content,
		}
		if i < len(req.Proposals) {
			if p := req.Proposals[i]; p.Theme != "" {
				out[i].Theme = p.Theme
			}
			if p := req.Proposals[i]; p.Grade != "" {
				out[i].Grade = p.Grade
			}
		}
	}
	return out, nil
}

// Reflect summarizes the run so far in a few sentences.
func (g *Generator) Reflect(ctx context.Context, snap session.Snapshot) (string, error) {
	input, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal reflection input: %w", err)
	}
	resp, err := g.llm.Complete(ctx, llm.Request{
		Name: ReflectionCallName,
		Instructions: "You help a teacher reflect on the work done for their request. " +
			"In Brazilian Portuguese, write 3 to 5 plain sentences on what was found, " +
			"what was created and what could be improved next.",
		Input: string(input),
	})
	if err != nil {
		return "", fmt.Errorf("reflection call: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", llm.ErrEmptyOutput
	}
	return text, nil
}
