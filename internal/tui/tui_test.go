package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/orchestrator"
	"github.com/metalagman/jota/internal/plan"
)

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok)
	}
	return m
}

func steps(titles ...string) []plan.Step {
	out := make([]plan.Step, len(titles))
	for i, title := range titles {
		out[i] = plan.Step{Title: title}
	}
	return out
}

func TestModel_TracksStepsAndReplans(t *testing.T) {
	t.Parallel()
	first := plan.Step{Title: "Buscar"}
	m := send(t, NewModel("crie atividades"),
		EventMsg{Type: orchestrator.EventPlanCreated, Steps: steps("Buscar", "Decidir", "Salvar")},
		EventMsg{Type: orchestrator.EventStepStarted, StepIndex: 0, Step: &first},
		EventMsg{Type: orchestrator.EventStepFinished, StepIndex: 0, Step: &first},
		EventMsg{Type: orchestrator.EventNarration, Narration: &orchestrator.Narration{StepIndex: 0, Text: "Achei 3 atividades."}},
		EventMsg{Type: orchestrator.EventReplanAccepted, StepIndex: 0, Steps: steps("Criar", "Salvar")},
	)

	require.Len(t, m.lines, 3)
	assert.Equal(t, plan.StatusCompleted, m.lines[0].status)
	assert.Equal(t, "Achei 3 atividades.", m.lines[0].narration)
	assert.Equal(t, "Criar", m.lines[1].title)
	assert.Equal(t, plan.StatusPending, m.lines[1].status)
	assert.Equal(t, 1, m.completed())

	view := m.View()
	assert.Contains(t, view, "jota: crie atividades")
	assert.Contains(t, view, "2. Criar")
	assert.Contains(t, view, "Achei 3 atividades.")
}

func TestModel_FailureAndDone(t *testing.T) {
	t.Parallel()
	s := plan.Step{Title: "Criar"}
	m := send(t, NewModel("x"),
		EventMsg{Type: orchestrator.EventStepFinished, StepIndex: 1, Step: &s, Err: "quota"},
		EventMsg{Type: orchestrator.EventRunFinished, State: orchestrator.StateFailed},
	)
	require.Len(t, m.lines, 2)
	assert.Equal(t, plan.StatusFailed, m.lines[1].status)

	next, cmd := m.Update(DoneMsg{Err: errors.New("step 2 failed")})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.False(t, m.Interrupted())
	assert.Contains(t, m.View(), "failed: step 2 failed")
}

func TestModel_QuitBeforeDoneIsInterrupt(t *testing.T) {
	t.Parallel()
	next, cmd := NewModel("x").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).Interrupted())
}

func TestReport_Markdown(t *testing.T) {
	t.Parallel()
	r := Report{
		Run: db.RunRecord{RunID: "run-1", Objective: "crie 3 atividades", Status: "failed", Owner: "prof", StepsRun: 2, Error: "quota"},
		Steps: []db.StepRecord{
			{StepIndex: 0, Attempt: 1, Title: "Buscar | filtrar", Status: "completed"},
			{StepIndex: 1, Attempt: 1, Title: "Criar", Status: "failed"},
		},
		Narrations: []db.NarrationRecord{{StepIndex: 0, Text: "Achei."}},
	}
	md := r.Markdown()
	assert.Contains(t, md, "# crie 3 atividades")
	assert.Contains(t, md, "- **error:** quota")
	assert.Contains(t, md, `| 1 | Buscar \| filtrar | 1 | completed |`)
	assert.Contains(t, md, "1. Achei.")

	out, err := Render(md, 80)
	require.NoError(t, err)
	assert.Contains(t, out, "crie 3 atividades")
}
