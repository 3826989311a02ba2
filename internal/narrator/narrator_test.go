package narrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/llm"
	"github.com/metalagman/jota/internal/llm/llmtest"
	"github.com/metalagman/jota/internal/plan"
)

func completedStep() plan.Step {
	return plan.Step{
		Title:  "Buscar atividades",
		Status: plan.StatusCompleted,
		Results: []plan.InvocationResult{{
			Capability: "pesquisar_atividades_disponiveis",
			Summary:    "3 atividades encontradas",
		}},
	}
}

func TestDescribe_ReturnsCleanedText(t *testing.T) {
	t.Parallel()

	script := llmtest.NewScript().On(CallName, llmtest.Text("  **Encontrei** 3 atividades.\nAgora vou decidir quais criar.  "))
	next := plan.Step{Title: "Decidir"}

	res := New(script, time.Second).Describe(context.Background(), Request{
		Objective:  "crie 3 atividades",
		Step:       completedStep(),
		Next:       &next,
		StepIndex:  0,
		TotalSteps: 4,
	})

	assert.False(t, res.Fallback)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Encontrei 3 atividades. Agora vou decidir quais criar.", res.Text)

	reqs := script.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Input, `"etapa": 1`)
	assert.Contains(t, reqs[0].Input, "3 atividades encontradas")
	assert.Contains(t, reqs[0].Input, `"proxima_etapa"`)
	assert.Contains(t, reqs[0].Instructions, "End by saying what you will do next.")
}

func TestDescribe_TimeoutFallsBack(t *testing.T) {
	t.Parallel()

	script := llmtest.NewScript().On(CallName, llmtest.Block())
	res := New(script, 20*time.Millisecond).Describe(context.Background(), Request{
		Step:       completedStep(),
		StepIndex:  1,
		TotalSteps: 4,
	})

	assert.True(t, res.Fallback)
	require.ErrorIs(t, res.Err, ErrNarrationTimeout)
	assert.Equal(t, "Concluí a etapa 2 de 4 e sigo cuidando do seu pedido.", res.Text)
}

func TestDescribe_ErrorAndEmptyFallBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   llmtest.Reply
		wantErr error
	}{
		{name: "remote error", reply: llmtest.Err(errors.New("503")), wantErr: nil},
		{name: "empty text", reply: llmtest.Text("  ** **  "), wantErr: llm.ErrEmptyOutput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			script := llmtest.NewScript().On(CallName, tc.reply)
			res := New(script, time.Second).Describe(context.Background(), Request{Step: completedStep(), TotalSteps: 1})
			assert.True(t, res.Fallback)
			require.Error(t, res.Err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, res.Err, tc.wantErr)
			}
			assert.NotErrorIs(t, res.Err, ErrNarrationTimeout)
		})
	}
}

func TestDescribe_FailedStepUsesFailureFallback(t *testing.T) {
	t.Parallel()

	script := llmtest.NewScript().On(CallName, llmtest.Err(errors.New("down")))
	step := completedStep()
	step.Status = plan.StatusFailed

	res := New(script, time.Second).Describe(context.Background(), Request{
		Step:       step,
		StepIndex:  2,
		TotalSteps: 4,
		Err:        errors.New("capability failed"),
	})
	assert.Equal(t, "Não consegui concluir a etapa 3 de 4. Parei a execução para não deixar nada pela metade.", res.Text)
}

func TestDescribe_FailurePromptAsksForExplanation(t *testing.T) {
	t.Parallel()

	script := llmtest.NewScript().On(CallName, llmtest.Text("Não consegui criar a atividade."))
	res := New(script, time.Second).Describe(context.Background(), Request{
		Step:       plan.Step{Title: "Criar", Status: plan.StatusFailed},
		StepIndex:  2,
		TotalSteps: 4,
		Err:        errors.New("generator unavailable"),
	})

	require.False(t, res.Fallback)
	reqs := script.Requests()
	assert.Contains(t, reqs[0].Instructions, "just failed")
	assert.Contains(t, reqs[0].Input, "generator unavailable")
}

func TestClean(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"# Pronto\n\nCriei **3** atividades.": "Pronto Criei 3 atividades.",
		"- Encontrei `2` itens\n- Vou seguir":  "Encontrei 2 itens Vou seguir",
		"Texto    simples.":                    "Texto simples.",
		"   ":                                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Clean(in), in)
	}
}
