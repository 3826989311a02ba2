// Package llm is the narrow text-completion boundary used by the planner,
// narrator, replanner and content-generating capabilities.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyOutput indicates the model returned no text.
var ErrEmptyOutput = errors.New("llm response did not contain output text")

// Request is one text-completion call.
type Request struct {
	// Name identifies the caller in logs (planner, narrator, ...).
	Name         string
	Instructions string
	Input        string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Response is the text returned for a Request.
type Response struct {
	Text string
}

// Completer issues a single completion request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
