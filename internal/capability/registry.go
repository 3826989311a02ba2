package capability

import (
	"fmt"
	"slices"
	"strings"
)

// Registry maps capability names to entries. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry creates a registry holding caps.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a capability. Names must be unique and executors non-nil.
func (r *Registry) Register(c Capability) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("capability name is required")
	}
	if name != c.Name {
		return fmt.Errorf("capability name %q has surrounding whitespace", c.Name)
	}
	if c.Execute == nil {
		return fmt.Errorf("capability %q has no executor", name)
	}
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("capability %q already registered", name)
	}
	seen := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		if p.Name == "" {
			return fmt.Errorf("capability %q declares a parameter without a name", name)
		}
		if seen[p.Name] {
			return fmt.Errorf("capability %q declares parameter %q twice", name, p.Name)
		}
		seen[p.Name] = true
	}
	c.Params = slices.Clone(c.Params)
	r.caps[name] = c
	return nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (Capability, error) {
	if r != nil {
		if c, ok := r.caps[name]; ok {
			return c, nil
		}
	}
	return Capability{}, &UnknownCapabilityError{Name: name}
}

// List returns all capabilities sorted by name.
func (r *Registry) List() []Capability {
	if r == nil {
		return nil
	}
	out := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Capability) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	caps := r.List()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.Name
	}
	return out
}
