// Package session holds the per-run shared state capabilities read and
// write while a plan executes.
package session

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Entry is one append-only write into the context.
type Entry struct {
	Key        string    `json:"key"`
	Value      any       `json:"value"`
	Capability string    `json:"capability,omitempty"`
	StepIndex  int       `json:"step_index"`
	At         time.Time `json:"at"`
}

// Context is owned by exactly one run. It is not safe for concurrent use;
// the orchestrator executes capabilities sequentially.
type Context struct {
	id        string
	objective string
	owner     string
	entries   []Entry
	latest    map[string]any
	now       func() time.Time
}

// New creates an empty context for a run.
func New(runID, objective, owner string) *Context {
	return &Context{
		id:        runID,
		objective: objective,
		owner:     owner,
		latest:    make(map[string]any),
		now:       time.Now,
	}
}

// ID returns the run id.
func (c *Context) ID() string { return c.id }

// Objective returns the user's goal text.
func (c *Context) Objective() string { return c.objective }

// Owner returns the user the run acts for.
func (c *Context) Owner() string { return c.owner }

// Put appends a value under key. Later writes shadow earlier ones in Get,
// but every write stays in Entries.
func (c *Context) Put(key string, value any, capability string, stepIndex int) {
	c.entries = append(c.entries, Entry{
		Key:        key,
		Value:      value,
		Capability: capability,
		StepIndex:  stepIndex,
		At:         c.now().UTC(),
	})
	c.latest[key] = value
}

// Get returns the latest value written under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.latest[key]
	return v, ok
}

// Entries returns a copy of the write log in order.
func (c *Context) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Keys returns the keys written so far, sorted.
func (c *Context) Keys() []string {
	return slices.Sorted(maps.Keys(c.latest))
}

// IdempotencyKey identifies one capability invocation within this run.
func (c *Context) IdempotencyKey(stepIndex, invocationIndex int) string {
	return fmt.Sprintf("%s/%d/%d", c.id, stepIndex, invocationIndex)
}

// Snapshot is a read-only copy handed to advisory components.
type Snapshot struct {
	RunID     string         `json:"run_id"`
	Objective string         `json:"objective"`
	Owner     string         `json:"owner,omitempty"`
	Values    map[string]any `json:"values"`
}

// Snapshot copies the latest values.
func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		RunID:     c.id,
		Objective: c.objective,
		Owner:     c.owner,
		Values:    maps.Clone(c.latest),
	}
}

// Typed returns the latest value under key asserted to T.
func Typed[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
