package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/capability/capabilitytest"
	"github.com/metalagman/jota/internal/plan"
	"github.com/metalagman/jota/internal/session"
)

func inv(name string, params map[string]any) plan.Invocation {
	if params == nil {
		params = map[string]any{}
	}
	return plan.Invocation{Capability: name, Parameters: params}
}

func TestRun_ExecutesInvocationsInOrderAndMergesResults(t *testing.T) {
	t.Parallel()

	reg, rec := capabilitytest.Registry(t, map[string]capability.ExecuteFunc{
		"pesquisar_atividades_disponiveis": func(context.Context, capability.Invocation) (capability.Result, error) {
			return capability.Result{Summary: "2 found", Data: map[string]any{"atividades_disponiveis": []string{"a", "b"}}}, nil
		},
		"analisar_contexto": func(_ context.Context, in capability.Invocation) (capability.Result, error) {
			found, ok := in.Session.Get("atividades_disponiveis")
			if !ok {
				return capability.Result{}, errors.New("search result not merged yet")
			}
			return capability.Result{Data: map[string]any{"analise": len(found.([]string))}}, nil
		},
	})
	sess := session.New("run-1", "objetivo", "prof")

	out := New(reg, time.Second).Run(context.Background(), plan.Step{
		Title:       "buscar e analisar",
		Invocations: []plan.Invocation{inv("pesquisar_atividades_disponiveis", nil), inv("analisar_contexto", nil)},
	}, 2, sess)

	require.NoError(t, out.Err)
	assert.Equal(t, plan.StatusCompleted, out.Step.Status)
	assert.Equal(t, []string{"pesquisar_atividades_disponiveis", "analisar_contexto"}, rec.Names())
	require.Len(t, out.Step.Results, 2)
	assert.Equal(t, "run-1/2/0", out.Step.Results[0].IdempotencyKey)
	assert.Equal(t, "run-1/2/1", out.Step.Results[1].IdempotencyKey)
	assert.Equal(t, "2 found", out.Step.Results[0].Summary)

	v, ok := sess.Get("analise")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestRun_StopsAtFirstFailureKeepingEarlierWrites(t *testing.T) {
	t.Parallel()

	boom := errors.New("remote down")
	reg, rec := capabilitytest.Registry(t, map[string]capability.ExecuteFunc{
		"pesquisar_atividades_disponiveis": func(context.Context, capability.Invocation) (capability.Result, error) {
			return capability.Result{Data: map[string]any{"atividades_disponiveis": []string{}}}, nil
		},
		"criar_atividade": func(context.Context, capability.Invocation) (capability.Result, error) {
			return capability.Result{}, boom
		},
	})
	sess := session.New("run-1", "objetivo", "")

	out := New(reg, time.Second).Run(context.Background(), plan.Step{
		Title: "criar",
		Invocations: []plan.Invocation{
			inv("pesquisar_atividades_disponiveis", nil),
			inv("criar_atividade", nil),
			inv("salvar_atividades_bd", nil),
		},
	}, 0, sess)

	require.ErrorIs(t, out.Err, ErrCapabilityExecution)
	require.ErrorIs(t, out.Err, boom)
	var execErr *CapabilityExecutionError
	require.ErrorAs(t, out.Err, &execErr)
	assert.Equal(t, "criar_atividade", execErr.Capability)

	assert.Equal(t, plan.StatusFailed, out.Step.Status)
	assert.Equal(t, out.Err.Error(), out.Step.Err)
	assert.Equal(t, []string{"pesquisar_atividades_disponiveis", "criar_atividade"}, rec.Names())
	require.Len(t, out.Step.Results, 2)
	assert.NotEmpty(t, out.Step.Results[1].Err)

	_, ok := sess.Get("atividades_disponiveis")
	assert.True(t, ok)
}

func TestRun_UnknownCapabilityFailsStep(t *testing.T) {
	t.Parallel()

	reg, rec := capabilitytest.Registry(t, nil)
	out := New(reg, time.Second).Run(context.Background(), plan.Step{
		Invocations: []plan.Invocation{inv("criar_atividade_magica", nil)},
	}, 0, session.New("r", "o", ""))

	require.ErrorIs(t, out.Err, capability.ErrUnknownCapability)
	assert.Equal(t, plan.StatusFailed, out.Step.Status)
	assert.Empty(t, rec.Calls())
}

func TestRun_InvalidParametersFailStep(t *testing.T) {
	t.Parallel()

	rec := &capabilitytest.Recorder{}
	c := capabilitytest.Stub(rec, "criar_atividades", capability.KindContent, nil)
	c.Params = []capability.Param{{Name: "quantidade", Type: capability.TypeInteger, Required: true}}
	reg, err := capability.NewRegistry(c)
	require.NoError(t, err)

	out := New(reg, time.Second).Run(context.Background(), plan.Step{
		Invocations: []plan.Invocation{inv("criar_atividades", map[string]any{"quantidade": "três"})},
	}, 0, session.New("r", "o", ""))

	require.ErrorIs(t, out.Err, capability.ErrInvalidParameters)
	assert.Empty(t, rec.Calls())
}

func TestRun_TimeoutIsExecutionError(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, map[string]capability.ExecuteFunc{
		"gerar_conteudo_atividades": func(ctx context.Context, _ capability.Invocation) (capability.Result, error) {
			<-ctx.Done()
			return capability.Result{}, ctx.Err()
		},
	})

	out := New(reg, 20*time.Millisecond).Run(context.Background(), plan.Step{
		Invocations: []plan.Invocation{inv("gerar_conteudo_atividades", nil)},
	}, 0, session.New("r", "o", ""))

	require.ErrorIs(t, out.Err, ErrCapabilityExecution)
	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestRun_NonIdempotentIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, map[string]capability.ExecuteFunc{
		"salvar_atividades_bd": func(ctx context.Context, _ capability.Invocation) (capability.Result, error) {
			if err := ctx.Err(); err != nil {
				return capability.Result{}, err
			}
			return capability.Result{Summary: "saved"}, nil
		},
		"pesquisar_atividades_disponiveis": func(ctx context.Context, _ capability.Invocation) (capability.Result, error) {
			return capability.Result{}, ctx.Err()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := New(reg, time.Second)
	saved := ex.Run(ctx, plan.Step{Invocations: []plan.Invocation{inv("salvar_atividades_bd", nil)}}, 0, session.New("r", "o", ""))
	require.NoError(t, saved.Err)

	search := ex.Run(ctx, plan.Step{Invocations: []plan.Invocation{inv("pesquisar_atividades_disponiveis", nil)}}, 1, session.New("r", "o", ""))
	require.ErrorIs(t, search.Err, context.Canceled)
}

func TestRun_DoesNotMutateInputStep(t *testing.T) {
	t.Parallel()

	reg, _ := capabilitytest.Registry(t, nil)
	in := plan.Step{Title: "x", Status: plan.StatusPending, Invocations: []plan.Invocation{inv("executar_plano", nil)}}

	out := New(reg, time.Second).Run(context.Background(), in, 0, session.New("r", "o", ""))
	require.NoError(t, out.Err)
	assert.Equal(t, plan.StatusPending, in.Status)
	assert.Nil(t, in.Results)
}
