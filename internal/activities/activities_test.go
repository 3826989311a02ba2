package activities

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/capability/capabilitytest"
	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/llm/llmtest"
	"github.com/metalagman/jota/internal/session"
)

type fixture struct {
	caps   map[string]capability.Capability
	store  *db.Store
	script *llmtest.Script
	sess   *session.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "jota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	f := &fixture{
		caps:   map[string]capability.Capability{},
		store:  db.NewStore(conn),
		script: llmtest.NewScript(),
		sess:   session.New("run-1", "crie 3 atividades de frações", "prof"),
	}
	list, err := Capabilities(Deps{Catalog: DefaultCatalog(), Store: f.store, Generator: NewGenerator(f.script)})
	require.NoError(t, err)
	for _, c := range list {
		f.caps[c.Name] = c
	}
	return f
}

// call runs one capability and merges its data the way the executor does.
func (f *fixture) call(t *testing.T, name string, step int, params map[string]any) (capability.Result, error) {
	t.Helper()
	c, ok := f.caps[name]
	require.True(t, ok, name)
	if params == nil {
		params = map[string]any{}
	}
	require.NoError(t, capability.ValidateParameters(c, params))
	res, err := c.Execute(context.Background(), capability.Invocation{
		Parameters:     params,
		Session:        f.sess,
		StepIndex:      step,
		IdempotencyKey: f.sess.IdempotencyKey(step, 0),
	})
	if err == nil {
		for k, v := range res.Data {
			f.sess.Put(k, v, name, step)
		}
	}
	return res, err
}

func TestCapabilities_MatchDomainKinds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	got := map[string]capability.Kind{}
	for name, c := range f.caps {
		got[name] = c.Kind
		assert.NotEmpty(t, c.DisplayName, name)
	}
	assert.Empty(t, cmp.Diff(capabilitytest.DomainKinds, got))
}

func TestCapabilities_RequireDeps(t *testing.T) {
	t.Parallel()
	_, err := Capabilities(Deps{})
	assert.ErrorContains(t, err, "catalog is required")

	reg, err := capability.NewRegistry()
	require.NoError(t, err)
	f := newFixture(t)
	require.NoError(t, Register(reg, Deps{Catalog: DefaultCatalog(), Store: f.store, Generator: NewGenerator(f.script)}))
	assert.Len(t, reg.List(), len(capabilitytest.DomainKinds))
	assert.Error(t, Register(reg, Deps{Catalog: DefaultCatalog(), Store: f.store, Generator: NewGenerator(f.script)}))
}

func TestCapabilities_SearchDecideGenerateSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.UpsertActivities(ctx, []db.Activity{{
		IdempotencyKey: "old/0/0#0", RunID: "old", Owner: "prof", Title: "Frações na pizza", Theme: "frações",
	}})
	require.NoError(t, err)
	f.script.On(GeneratorCallName, llmtest.Text(activitiesJSON(3)))

	res, err := f.call(t, "pesquisar_atividades_disponiveis", 0, map[string]any{"tema": "frações", "ano": "5º ano"})
	require.NoError(t, err)
	assert.Equal(t, "3 atividade(s) encontrada(s) no catálogo", res.Summary)

	_, err = f.call(t, "pesquisar_atividades_anteriores", 1, map[string]any{"tema": "frações"})
	require.NoError(t, err)
	prev, _ := session.Typed[[]Previous](f.sess, KeyPrevious)
	require.Len(t, prev, 1)

	res, err = f.call(t, "decidir_atividades_criar", 2, map[string]any{"quantidade": float64(3), "tema": "frações"})
	require.NoError(t, err)
	decided, _ := session.Typed[[]Proposal](f.sess, KeyDecided)
	require.Len(t, decided, 3)
	assert.Equal(t, "Reta numérica das frações", decided[0].Title)
	assert.Equal(t, "Frações equivalentes com barras", decided[1].Title)
	assert.Equal(t, "Atividade 3 sobre frações", decided[2].Title)
	assert.Equal(t, "3 atividade(s) escolhida(s), 2 do catálogo", res.Summary)

	_, err = f.call(t, "gerar_conteudo_atividades", 3, nil)
	require.NoError(t, err)
	generated, _ := session.Typed[[]Generated](f.sess, KeyGenerated)
	require.Len(t, generated, 3)
	assert.Equal(t, "run-1/3/0#2", generated[2].Key)

	res, err = f.call(t, "salvar_atividades_bd", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "3 atividade(s) salva(s)", res.Summary)
	n, err := f.store.CountActivities(ctx, "prof")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	res, err = f.call(t, "salvar_atividades_bd", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "nenhuma atividade pendente para salvar", res.Summary)
}

func TestCapabilities_CreateOneAndMany(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.script.On(GeneratorCallName, llmtest.Text(activitiesJSON(2)))

	_, err := f.call(t, "criar_atividades", 0, map[string]any{"quantidade": 2, "tema": "geometria"})
	require.NoError(t, err)
	_, err = f.call(t, "criar_atividades", 0, map[string]any{"quantidade": 2, "tema": "geometria"})
	require.NoError(t, err)
	generated, _ := session.Typed[[]Generated](f.sess, KeyGenerated)
	require.Len(t, generated, 2, "same idempotency key replaces")

	_, err = f.call(t, "criar_atividade", 1, map[string]any{"titulo": "Perímetro"})
	require.NoError(t, err)
	generated, _ = session.Typed[[]Generated](f.sess, KeyGenerated)
	require.Len(t, generated, 3)
	assert.Equal(t, "run-1/1/0#0", generated[2].Key)
	assert.Equal(t, "Atividade gerada 1", generated[2].Title)
}

func TestCapabilities_RejectUnboundedQuantity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, name := range []string{"decidir_atividades_criar", "gerar_conteudo_atividades", "criar_atividades"} {
		params := map[string]any{"quantidade": float64(2000000), "tema": "frações"}
		assert.ErrorIs(t, capability.ValidateParameters(f.caps[name], params), capability.ErrInvalidParameters, name)

		_, err := f.caps[name].Execute(context.Background(), capability.Invocation{
			Parameters: params,
			Session:    f.sess,
		})
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "quantidade must be between 1 and 20", name)
	}
	_, ok := f.sess.Get(KeyDecided)
	assert.False(t, ok)
	assert.Empty(t, f.script.Requests())
}

func TestCapabilities_GenerationFailureLeavesSessionUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.script.On(GeneratorCallName, llmtest.Err(errors.New("quota")))

	_, err := f.call(t, "criar_atividade", 0, map[string]any{"titulo": "X"})
	require.ErrorContains(t, err, "quota")
	_, ok := f.sess.Get(KeyGenerated)
	assert.False(t, ok)
}

func TestCapabilities_AnalysisReflectionAndMeta(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.script.On(ReflectionCallName, llmtest.Text("Tudo certo."))

	res, err := f.call(t, "analisar_contexto", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "contexto vazio", res.Summary)

	_, err = f.call(t, "pesquisar_atividades_disponiveis", 1, map[string]any{"tema": "frações", "limite": 2})
	require.NoError(t, err)
	_, err = f.call(t, "planejar_plano_de_acao", 2, map[string]any{"etapas": []any{"buscar", "criar"}})
	require.NoError(t, err)
	res, err = f.call(t, "analisar_contexto", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "contexto: atividades_disponiveis=2, plano_de_acao=2", res.Summary)

	note, _ := session.Typed[map[string]any](f.sess, KeyPlanNote)
	assert.Equal(t, "crie 3 atividades de frações", note["objetivo"])
	assert.Equal(t, []string{"buscar", "criar"}, note["etapas"])

	res, err = f.call(t, "gerar_reflexao", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "Tudo certo.", res.Summary)

	res, err = f.call(t, "executar_plano", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "execução iniciada na etapa 6", res.Summary)
}
