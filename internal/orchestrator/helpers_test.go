package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/executor"
	"github.com/metalagman/jota/internal/narrator"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/replanner"
)

func st(title string, caps ...string) plan.Step {
	s := plan.Step{Title: title, Status: plan.StatusPending}
	for _, c := range caps {
		s.Invocations = append(s.Invocations, plan.Invocation{Capability: c, Parameters: map[string]any{}})
	}
	return s
}

func fourSteps() []plan.Step {
	return []plan.Step{
		st("Buscar atividades", "pesquisar_atividades_disponiveis"),
		st("Decidir atividades", "decidir_atividades_criar"),
		st("Criar atividade", "criar_atividade"),
		st("Salvar atividades", "salvar_atividades_bd"),
	}
}

type fakePlanner struct {
	steps []plan.Step
	err   error
	calls int
}

func (f *fakePlanner) Plan(context.Context, string, []capability.Capability) (plan.Plan, error) {
	f.calls++
	if f.err != nil {
		return plan.Plan{}, f.err
	}
	return plan.Plan{Steps: plan.CloneSteps(f.steps)}, nil
}

type fakeNarrator struct {
	reqs []narrator.Request
}

func (f *fakeNarrator) Describe(_ context.Context, req narrator.Request) narrator.Result {
	f.reqs = append(f.reqs, req)
	return narrator.Result{Text: fmt.Sprintf("narração %d de %d", req.StepIndex+1, req.TotalSteps)}
}

type fakeReplanner struct {
	decide func(call int, req replanner.Request) (plan.Decision, error)
	reqs   []replanner.Request
}

func (f *fakeReplanner) Evaluate(_ context.Context, req replanner.Request) (plan.Decision, error) {
	f.reqs = append(f.reqs, req)
	if f.decide == nil {
		return plan.Decision{Reason: "seguir"}, nil
	}
	return f.decide(len(f.reqs)-1, req)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type setup struct {
	reg       *capability.Registry
	planner   Planner
	narrator  Narrator
	replanner Replanner
	observers []Observer
	opts      Options
}

func newTestOrchestrator(t *testing.T, s setup) *Orchestrator {
	t.Helper()
	if s.narrator == nil {
		s.narrator = &fakeNarrator{}
	}
	if s.replanner == nil {
		s.replanner = &fakeReplanner{}
	}
	if s.opts.NewID == nil {
		s.opts.NewID = func() string { return "run-1" }
	}
	o, err := New(Deps{
		Registry:  s.reg,
		Planner:   s.planner,
		Executor:  executor.New(s.reg, time.Second),
		Narrator:  s.narrator,
		Replanner: s.replanner,
		Observers: s.observers,
	}, s.opts)
	require.NoError(t, err)
	return o
}

func titles(steps []plan.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Title
	}
	return out
}
