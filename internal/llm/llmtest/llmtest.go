// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/metalagman/jota/internal/llm"
)

// Reply produces the response for one call.
type Reply func(ctx context.Context, req llm.Request) (llm.Response, error)

// Text replies with fixed text.
func Text(s string) Reply {
	return func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{Text: s}, nil
	}
}

// Err replies with an error.
func Err(err error) Reply {
	return func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, err
	}
}

// Block waits for the caller's context to end.
func Block() Reply {
	return func(ctx context.Context, _ llm.Request) (llm.Response, error) {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
}

// Script routes calls by Request.Name to queued replies. When a queue
// holds one reply it is reused for every further call.
type Script struct {
	mu       sync.Mutex
	replies  map[string][]Reply
	requests []llm.Request
}

// NewScript creates an empty script.
func NewScript() *Script {
	return &Script{replies: make(map[string][]Reply)}
}

// On queues replies for calls named name.
func (s *Script) On(name string, replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[name] = append(s.replies[name], replies...)
	return s
}

// Complete implements llm.Completer.
func (s *Script) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	queue := s.replies[req.Name]
	var reply Reply
	switch len(queue) {
	case 0:
	case 1:
		reply = queue[0]
	default:
		reply = queue[0]
		s.replies[req.Name] = queue[1:]
	}
	s.mu.Unlock()

	if reply == nil {
		return llm.Response{}, fmt.Errorf("llmtest: no reply scripted for %q", req.Name)
	}
	return reply(ctx, req)
}

// Requests returns every request received so far.
func (s *Script) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many calls named name were made.
func (s *Script) Count(name string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Name == name {
			n++
		}
	}
	return n
}
