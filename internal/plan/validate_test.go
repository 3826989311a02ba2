package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/capability/capabilitytest"
	"github.com/metalagman/jota/internal/plan"
)

func step(title string, caps ...string) plan.Step {
	s := plan.Step{Title: title, Status: plan.StatusPending}
	for _, c := range caps {
		s.Invocations = append(s.Invocations, plan.Invocation{Capability: c, Parameters: map[string]any{}})
	}
	return s
}

func done(s plan.Step) plan.Step {
	s.Status = plan.StatusCompleted
	return s
}

func TestValidateSteps(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, nil)

	tests := []struct {
		name       string
		steps      []plan.Step
		wantErr    bool
		wantReason string
	}{
		{
			name: "search decide generate save",
			steps: []plan.Step{
				step("buscar", "pesquisar_atividades_disponiveis"),
				step("decidir", "decidir_atividades_criar"),
				step("gerar", "gerar_conteudo_atividades"),
				step("salvar", "salvar_atividades_bd"),
			},
		},
		{
			name:  "create and save in one step",
			steps: []plan.Step{step("tudo", "criar_atividade", "salvar_atividades_bd")},
		},
		{
			name:  "analysis only",
			steps: []plan.Step{step("analisar", "analisar_contexto"), step("refletir", "gerar_reflexao")},
		},
		{
			name:       "content without save",
			steps:      []plan.Step{step("buscar", "pesquisar_atividades_disponiveis"), step("criar", "criar_atividades")},
			wantErr:    true,
			wantReason: "never saved",
		},
		{
			name:       "save before content",
			steps:      []plan.Step{step("salvar", "salvar_atividades_bd"), step("criar", "criar_atividade")},
			wantErr:    true,
			wantReason: "never saved",
		},
		{
			name:       "save then content in one step",
			steps:      []plan.Step{step("misturado", "salvar_atividades_bd", "criar_atividade")},
			wantErr:    true,
			wantReason: "never saved",
		},
		{
			name:       "unknown capability",
			steps:      []plan.Step{step("magia", "criar_atividade_magica")},
			wantErr:    true,
			wantReason: "not registered",
		},
		{
			name:       "empty step",
			steps:      []plan.Step{step("vazio")},
			wantErr:    true,
			wantReason: "no capability invocations",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := plan.ValidateSteps(reg, tc.steps)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, plan.ErrConstraint)
			assert.Contains(t, err.Error(), tc.wantReason)
		})
	}
}

func TestValidateSuffix_UnknownCapabilityUnwraps(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, nil)
	err := plan.ValidateSuffix(reg, nil, []plan.Step{step("x", "inexistente")})
	require.ErrorIs(t, err, capability.ErrUnknownCapability)
	require.ErrorIs(t, err, plan.ErrConstraint)
}

func TestValidateSuffix_ConsidersCompletedContent(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, nil)
	completed := []plan.Step{
		done(step("buscar", "pesquisar_atividades_disponiveis")),
		done(step("gerar", "gerar_conteudo_atividades")),
	}

	err := plan.ValidateSuffix(reg, completed, []plan.Step{step("refletir", "gerar_reflexao")})
	require.ErrorIs(t, err, plan.ErrConstraint)

	err = plan.ValidateSuffix(reg, completed, []plan.Step{step("salvar", "salvar_atividades_bd")})
	require.NoError(t, err)

	err = plan.ValidateSuffix(reg, append(completed, done(step("salvar", "salvar_atividades_bd"))), nil)
	require.NoError(t, err)
}

func TestValidateSuffix_IgnoresFailedCompletedSteps(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, nil)
	failed := step("criar", "criar_atividade")
	failed.Status = plan.StatusFailed

	require.NoError(t, plan.ValidateSuffix(reg, []plan.Step{failed}, []plan.Step{step("refletir", "gerar_reflexao")}))
}
