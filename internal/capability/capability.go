// Package capability defines named operations a plan may invoke and the
// registry that resolves them.
package capability

import (
	"context"

	"github.com/metalagman/jota/internal/session"
)

// Kind groups capabilities by the role they play in a plan.
type Kind string

const (
	KindSearch   Kind = "search"
	KindDecide   Kind = "decide"
	KindContent  Kind = "content"
	KindPersist  Kind = "persist"
	KindAnalysis Kind = "analysis"
	KindMeta     Kind = "meta"
)

// ParamType is a JSON Schema primitive type name.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one parameter accepted by a capability.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	// Max bounds integer and number params. Zero means unbounded.
	Max         int       `json:"max,omitempty"`
}

// Invocation is what an executor receives for one call.
type Invocation struct {
	Parameters     map[string]any
	Session        *session.Context
	StepIndex      int
	IdempotencyKey string
}

// Result is the structured payload returned by a capability.
type Result struct {
	Summary string         `json:"summary"`
	Data    map[string]any `json:"data,omitempty"`
}

// ExecuteFunc performs the side-effecting operation of a capability.
type ExecuteFunc func(ctx context.Context, inv Invocation) (Result, error)

// Capability is an immutable registry entry.
type Capability struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
	Kind        Kind        `json:"kind"`
	Idempotent  bool        `json:"idempotent"`
	Params      []Param     `json:"params"`
	Execute     ExecuteFunc `json:"-"`
}

// CreatesContent reports whether the capability produces content that must
// be persisted later in the same plan.
func (c Capability) CreatesContent() bool { return c.Kind == KindContent }

// Persists reports whether the capability writes content to durable storage.
func (c Capability) Persists() bool { return c.Kind == KindPersist }
