package activities

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry is an activity available in the catalog.
type Entry struct {
	Title       string `yaml:"titulo"     json:"titulo"`
	Subject     string `yaml:"disciplina" json:"disciplina"`
	Grade       string `yaml:"ano"        json:"ano"`
	Theme       string `yaml:"tema"       json:"tema"`
	Kind        string `yaml:"tipo"       json:"tipo"`
	Description string `yaml:"descricao"  json:"descricao"`
}

// Query filters catalog entries. Empty fields match everything.
type Query struct {
	Theme   string
	Subject string
	Grade   string
	Limit   int
}

// Catalog is a read-only list of available activities.
type Catalog struct {
	entries []Entry
}

type catalogFile struct {
	Activities []Entry `yaml:"atividades"`
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i, e := range f.Activities {
		if e.Title == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no titulo", i)
		}
	}
	return &Catalog{entries: f.Activities}, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads the catalog at path, or the embedded one when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Search returns entries matching q in catalog order.
func (c *Catalog) Search(q Query) []Entry {
	grade := gradeDigits(q.Grade)
	out := make([]Entry, 0)
	for _, e := range c.entries {
		if q.Theme != "" && !matches(e.Theme+" "+e.Title+" "+e.Description, q.Theme) {
			continue
		}
		if q.Subject != "" && !matches(e.Subject, q.Subject) {
			continue
		}
		if grade != "" && gradeDigits(e.Grade) != grade {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}
