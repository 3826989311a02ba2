// Package activities implements the education-domain capabilities: catalog
// and history search, choosing what to create, LLM content generation and
// persistence of generated activities.
package activities

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/metalagman/jota/internal/capability"
	"github.com/metalagman/jota/internal/db"
	"github.com/metalagman/jota/internal/session"
)

// Session keys written by the capabilities.
const (
	KeyAvailable = "atividades_disponiveis"
	KeyPrevious  = "atividades_anteriores"
	KeyDecided   = "atividades_decididas"
	KeyGenerated = "atividades_geradas"
	KeySaved     = "atividades_salvas"
	KeyAnalysis  = "analise_contexto"
	KeyReflexion = "reflexao"
	KeyPlanNote  = "plano_de_acao"
	KeyExecution = "execucao"
)

// DefaultCount is used when a content capability gets no quantity.
const DefaultCount = 3

// MaxCount caps how many activities one invocation may decide or create.
const MaxCount = 20

// Store is the persistence the capabilities need.
type Store interface {
	UpsertActivities(ctx context.Context, activities []db.Activity) (int, error)
	ListActivities(ctx context.Context, f db.ActivityFilter) ([]db.Activity, error)
}

// Deps are the collaborators of the activity capabilities.
type Deps struct {
	Catalog   *Catalog
	Store     Store
	Generator ContentGenerator
}

// Previous is a summary of an activity the owner already has.
type Previous struct {
	Title string `json:"titulo"`
	Theme string `json:"tema,omitempty"`
	Kind  string `json:"tipo,omitempty"`
}

// Capabilities returns the activity capabilities bound to d.
func Capabilities(d Deps) ([]capability.Capability, error) {
	switch {
	case d.Catalog == nil:
		return nil, errors.New("activities: catalog is required")
	case d.Store == nil:
		return nil, errors.New("activities: store is required")
	case d.Generator == nil:
		return nil, errors.New("activities: generator is required")
	}
	h := &handlers{Deps: d}
	return []capability.Capability{
		{
			Name:        "pesquisar_atividades_disponiveis",
			DisplayName: "Vou pesquisar atividades disponíveis",
			Category:    "pesquisa",
			Description: "Searches the platform catalog by theme, subject and grade.",
			Kind:        capability.KindSearch,
			Idempotent:  true,
			Params: []capability.Param{
				{Name: "tema", Type: capability.TypeString, Required: true, Description: "theme, e.g. frações"},
				{Name: "disciplina", Type: capability.TypeString},
				{Name: "ano", Type: capability.TypeString, Description: "grade, e.g. 5º ano"},
				{Name: "limite", Type: capability.TypeInteger},
			},
			Execute: h.searchAvailable,
		},
		{
			Name:        "pesquisar_atividades_anteriores",
			DisplayName: "Vou consultar suas atividades anteriores",
			Category:    "pesquisa",
			Description: "Lists activities this teacher already saved.",
			Kind:        capability.KindSearch,
			Idempotent:  true,
			Params: []capability.Param{
				{Name: "tema", Type: capability.TypeString},
				{Name: "limite", Type: capability.TypeInteger},
			},
			Execute: h.searchPrevious,
		},
		{
			Name:        "decidir_atividades_criar",
			DisplayName: "Vou decidir quais atividades criar",
			Category:    "decisao",
			Description: "Chooses which activities to create from catalog results, skipping ones the teacher already has.",
			Kind:        capability.KindDecide,
			Idempotent:  true,
			Params: []capability.Param{
				{Name: "quantidade", Type: capability.TypeInteger, Required: true, Max: MaxCount},
				{Name: "tema", Type: capability.TypeString},
				{Name: "ano", Type: capability.TypeString},
			},
			Execute: h.decide,
		},
		{
			Name:        "gerar_conteudo_atividades",
			DisplayName: "Vou gerar o conteúdo das atividades",
			Category:    "criacao",
			Description: "Writes the content of the decided activities, or of default ones when nothing was decided.",
			Kind:        capability.KindContent,
			Params: []capability.Param{
				{Name: "quantidade", Type: capability.TypeInteger, Max: MaxCount},
				{Name: "tema", Type: capability.TypeString},
				{Name: "ano", Type: capability.TypeString},
			},
			Execute: h.generateDecided,
		},
		{
			Name:        "criar_atividade",
			DisplayName: "Vou criar a atividade",
			Category:    "criacao",
			Description: "Creates one activity with the given title.",
			Kind:        capability.KindContent,
			Params: []capability.Param{
				{Name: "titulo", Type: capability.TypeString, Required: true},
				{Name: "tipo", Type: capability.TypeString},
				{Name: "tema", Type: capability.TypeString},
				{Name: "ano", Type: capability.TypeString},
			},
			Execute: h.createOne,
		},
		{
			Name:        "criar_atividades",
			DisplayName: "Vou criar as atividades",
			Category:    "criacao",
			Description: "Creates several activities on a theme.",
			Kind:        capability.KindContent,
			Params: []capability.Param{
				{Name: "quantidade", Type: capability.TypeInteger, Required: true, Max: MaxCount},
				{Name: "tema", Type: capability.TypeString, Required: true},
				{Name: "ano", Type: capability.TypeString},
			},
			Execute: h.createMany,
		},
		{
			Name:        "salvar_atividades_bd",
			DisplayName: "Vou salvar as atividades",
			Category:    "persistencia",
			Description: "Saves every generated activity not saved yet.",
			Kind:        capability.KindPersist,
			Execute:     h.save,
		},
		{
			Name:        "analisar_contexto",
			DisplayName: "Vou analisar o que já temos",
			Category:    "analise",
			Description: "Summarizes what earlier steps produced.",
			Kind:        capability.KindAnalysis,
			Idempotent:  true,
			Execute:     h.analyze,
		},
		{
			Name:        "gerar_reflexao",
			DisplayName: "Vou refletir sobre o trabalho feito",
			Category:    "analise",
			Description: "Writes a short reflection on the run so far.",
			Kind:        capability.KindAnalysis,
			Execute:     h.reflect,
		},
		{
			Name:        "planejar_plano_de_acao",
			DisplayName: "Vou organizar o plano de ação",
			Category:    "meta",
			Description: "Records the outline of the plan being followed.",
			Kind:        capability.KindMeta,
			Idempotent:  true,
			Params: []capability.Param{
				{Name: "objetivo", Type: capability.TypeString},
				{Name: "etapas", Type: capability.TypeArray},
			},
			Execute: h.planNote,
		},
		{
			Name:        "executar_plano",
			DisplayName: "Vou executar o plano",
			Category:    "meta",
			Description: "Marks the start of plan execution.",
			Kind:        capability.KindMeta,
			Idempotent:  true,
			Execute:     h.checkpoint,
		},
	}, nil
}

// Register adds the activity capabilities to reg.
func Register(reg *capability.Registry, d Deps) error {
	caps, err := Capabilities(d)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	Deps
}

func (h *handlers) searchAvailable(_ context.Context, inv capability.Invocation) (capability.Result, error) {
	found := h.Catalog.Search(Query{
		Theme:   stringParam(inv.Parameters, "tema"),
		Subject: stringParam(inv.Parameters, "disciplina"),
		Grade:   stringParam(inv.Parameters, "ano"),
		Limit:   intParam(inv.Parameters, "limite", 0),
	})
	return capability.Result{
		Summary: fmt.Sprintf("%d atividade(s) encontrada(s) no catálogo", len(found)),
		Data:    map[string]any{KeyAvailable: found},
	}, nil
}

func (h *handlers) searchPrevious(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	rows, err := h.Store.ListActivities(ctx, db.ActivityFilter{
		Owner: inv.Session.Owner(),
		Theme: stringParam(inv.Parameters, "tema"),
		Limit: intParam(inv.Parameters, "limite", 50),
	})
	if err != nil {
		return capability.Result{}, err
	}
	prev := make([]Previous, len(rows))
	for i, r := range rows {
		prev[i] = Previous{Title: r.Title, Theme: r.Theme, Kind: r.Kind}
	}
	return capability.Result{
		Summary: fmt.Sprintf("%d atividade(s) anterior(es)", len(prev)),
		Data:    map[string]any{KeyPrevious: prev},
	}, nil
}

func (h *handlers) decide(_ context.Context, inv capability.Invocation) (capability.Result, error) {
	count, err := countParam(inv.Parameters)
	if err != nil {
		return capability.Result{}, err
	}
	theme := themeOf(inv)
	grade := stringParam(inv.Parameters, "ano")

	existing := map[string]bool{}
	if prev, ok := session.Typed[[]Previous](inv.Session, KeyPrevious); ok {
		for _, p := range prev {
			existing[fold(p.Title)] = true
		}
	}

	var decided []Proposal
	candidates, _ := session.Typed[[]Entry](inv.Session, KeyAvailable)
	for _, e := range candidates {
		if len(decided) == count {
			break
		}
		if existing[fold(e.Title)] {
			continue
		}
		existing[fold(e.Title)] = true
		decided = append(decided, Proposal{
			Title:       e.Title,
			Kind:        e.Kind,
			Theme:       e.Theme,
			Grade:       e.Grade,
			Description: e.Description,
		})
	}
	fromCatalog := len(decided)
	decided = append(decided, defaultProposals(theme, grade, len(decided), count)...)

	return capability.Result{
		Summary: fmt.Sprintf("%d atividade(s) escolhida(s), %d do catálogo", len(decided), fromCatalog),
		Data:    map[string]any{KeyDecided: decided},
	}, nil
}

func (h *handlers) generateDecided(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	proposals, _ := session.Typed[[]Proposal](inv.Session, KeyDecided)
	req := GenerateRequest{
		Theme:     themeOf(inv),
		Grade:     stringParam(inv.Parameters, "ano"),
		Proposals: proposals,
	}
	if len(proposals) == 0 {
		count, err := countParam(inv.Parameters)
		if err != nil {
			return capability.Result{}, err
		}
		req.Proposals = defaultProposals(req.Theme, req.Grade, 0, count)
	}
	return h.generate(ctx, inv, req)
}

func (h *handlers) createOne(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	return h.generate(ctx, inv, GenerateRequest{
		Theme: themeOf(inv),
		Grade: stringParam(inv.Parameters, "ano"),
		Proposals: []Proposal{{
			Title: stringParam(inv.Parameters, "titulo"),
			Kind:  stringParam(inv.Parameters, "tipo"),
		}},
	})
}

func (h *handlers) createMany(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	count, err := countParam(inv.Parameters)
	if err != nil {
		return capability.Result{}, err
	}
	return h.generate(ctx, inv, GenerateRequest{
		Theme: themeOf(inv),
		Grade: stringParam(inv.Parameters, "ano"),
		Count: count,
	})
}

// generate appends new content to the generated list. Entries are keyed by
// the invocation's idempotency key, so a retried invocation replaces its
// earlier output instead of adding to it.
func (h *handlers) generate(ctx context.Context, inv capability.Invocation, req GenerateRequest) (capability.Result, error) {
	created, err := h.Generator.Generate(ctx, req)
	if err != nil {
		return capability.Result{}, err
	}
	for i := range created {
		created[i].Key = fmt.Sprintf("%s#%d", inv.IdempotencyKey, i)
	}

	prior, _ := session.Typed[[]Generated](inv.Session, KeyGenerated)
	all := slices.DeleteFunc(slices.Clone(prior), func(g Generated) bool {
		return strings.HasPrefix(g.Key, inv.IdempotencyKey+"#")
	})
	all = append(all, created...)

	titles := make([]string, len(created))
	for i, g := range created {
		titles[i] = g.Title
	}
	return capability.Result{
		Summary: fmt.Sprintf("%d atividade(s) criada(s): %s", len(created), strings.Join(titles, "; ")),
		Data:    map[string]any{KeyGenerated: all},
	}, nil
}

func (h *handlers) save(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	generated, _ := session.Typed[[]Generated](inv.Session, KeyGenerated)
	saved, _ := session.Typed[[]string](inv.Session, KeySaved)
	done := make(map[string]bool, len(saved))
	for _, k := range saved {
		done[k] = true
	}

	var batch []db.Activity
	for _, g := range generated {
		if done[g.Key] {
			continue
		}
		batch = append(batch, db.Activity{
			IdempotencyKey: g.Key,
			RunID:          inv.Session.ID(),
			Owner:          inv.Session.Owner(),
			Title:          g.Title,
			Kind:           g.Kind,
			Theme:          g.Theme,
			Grade:          g.Grade,
			Content:        g.Content,
		})
	}
	if len(batch) == 0 {
		return capability.Result{Summary: "nenhuma atividade pendente para salvar"}, nil
	}

	n, err := h.Store.UpsertActivities(ctx, batch)
	if err != nil {
		return capability.Result{}, err
	}
	all := slices.Clone(saved)
	for _, a := range batch {
		all = append(all, a.IdempotencyKey)
	}
	return capability.Result{
		Summary: fmt.Sprintf("%d atividade(s) salva(s)", n),
		Data:    map[string]any{KeySaved: all},
	}, nil
}

func (h *handlers) analyze(_ context.Context, inv capability.Invocation) (capability.Result, error) {
	counts := map[string]int{}
	snap := inv.Session.Snapshot()
	for k, v := range snap.Values {
		if k == KeyAnalysis {
			continue
		}
		counts[k] = sizeOf(v)
	}
	parts := make([]string, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	summary := "contexto vazio"
	if len(parts) > 0 {
		summary = "contexto: " + strings.Join(parts, ", ")
	}
	return capability.Result{Summary: summary, Data: map[string]any{KeyAnalysis: counts}}, nil
}

func (h *handlers) reflect(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
	text, err := h.Generator.Reflect(ctx, inv.Session.Snapshot())
	if err != nil {
		return capability.Result{}, err
	}
	return capability.Result{Summary: text, Data: map[string]any{KeyReflexion: text}}, nil
}

func (h *handlers) planNote(_ context.Context, inv capability.Invocation) (capability.Result, error) {
	note := map[string]any{
		"objetivo": stringParam(inv.Parameters, "objetivo"),
		"etapas":   stringsParam(inv.Parameters, "etapas"),
	}
	if note["objetivo"] == "" {
		note["objetivo"] = inv.Session.Objective()
	}
	return capability.Result{
		Summary: "plano de ação registrado",
		Data:    map[string]any{KeyPlanNote: note},
	}, nil
}

func (h *handlers) checkpoint(_ context.Context, inv capability.Invocation) (capability.Result, error) {
	return capability.Result{
		Summary: fmt.Sprintf("execução iniciada na etapa %d", inv.StepIndex+1),
		Data:    map[string]any{KeyExecution: inv.StepIndex},
	}, nil
}

func themeOf(inv capability.Invocation) string {
	if t := stringParam(inv.Parameters, "tema"); t != "" {
		return t
	}
	return inv.Session.Objective()
}

func defaultProposals(theme, grade string, from, to int) []Proposal {
	var out []Proposal
	for i := from; i < to; i++ {
		out = append(out, Proposal{
			Title: fmt.Sprintf("Atividade %d sobre %s", i+1, theme),
			Theme: theme,
			Grade: grade,
		})
	}
	return out
}

func sizeOf(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	case reflect.Invalid:
		return 0
	}
	return 1
}
