// Package capabilitytest provides registries of stub capabilities for tests.
package capabilitytest

import (
	"context"
	"sync"
	"testing"

	"github.com/metalagman/jota/internal/capability"
)

// Call records one stub execution.
type Call struct {
	Capability     string
	Parameters     map[string]any
	StepIndex      int
	IdempotencyKey string
}

// Recorder collects calls across every stub in a registry.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Calls returns the recorded calls in execution order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Names returns the capability of each recorded call.
func (r *Recorder) Names() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Capability
	}
	return out
}

func (r *Recorder) record(name string, inv capability.Invocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{
		Capability:     name,
		Parameters:     inv.Parameters,
		StepIndex:      inv.StepIndex,
		IdempotencyKey: inv.IdempotencyKey,
	})
}

// Stub builds a capability that records its call and then runs fn, if set.
func Stub(rec *Recorder, name string, kind capability.Kind, fn capability.ExecuteFunc) capability.Capability {
	return capability.Capability{
		Name:        name,
		DisplayName: "Vou executar " + name,
		Category:    string(kind),
		Kind:        kind,
		Idempotent:  kind != capability.KindContent && kind != capability.KindPersist,
		Execute: func(ctx context.Context, inv capability.Invocation) (capability.Result, error) {
			rec.record(name, inv)
			if fn != nil {
				return fn(ctx, inv)
			}
			return capability.Result{Summary: name + " ok"}, nil
		},
	}
}

// DomainKinds maps the activity capability names to their kinds.
var DomainKinds = map[string]capability.Kind{
	"pesquisar_atividades_disponiveis": capability.KindSearch,
	"pesquisar_atividades_anteriores":  capability.KindSearch,
	"decidir_atividades_criar":         capability.KindDecide,
	"gerar_conteudo_atividades":        capability.KindContent,
	"criar_atividade":                  capability.KindContent,
	"criar_atividades":                 capability.KindContent,
	"salvar_atividades_bd":             capability.KindPersist,
	"analisar_contexto":                capability.KindAnalysis,
	"gerar_reflexao":                   capability.KindAnalysis,
	"planejar_plano_de_acao":           capability.KindMeta,
	"executar_plano":                   capability.KindMeta,
}

// Registry returns a registry with a recording stub for every domain
// capability. overrides replaces the behavior of selected names.
func Registry(t testing.TB, overrides map[string]capability.ExecuteFunc) (*capability.Registry, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	reg, err := capability.NewRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for name, kind := range DomainKinds {
		if err := reg.Register(Stub(rec, name, kind, overrides[name])); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	for name := range overrides {
		if _, ok := DomainKinds[name]; ok {
			continue
		}
		if err := reg.Register(Stub(rec, name, capability.KindMeta, overrides[name])); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return reg, rec
}
