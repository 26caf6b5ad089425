package model

import (
	"fmt"
	"sort"
)

// Registry holds linked models by name.
type Registry struct {
	models map[string]*Model
}

// InitRegistry loads, links and validates every model file of dir.
func InitRegistry(dir string) (*Registry, error) {
	models, err := LoadModelsFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load error: %w", err)
	}
	return NewRegistry(models...)
}

// NewRegistry links models that were parsed or built in code.
func NewRegistry(models ...*Model) (*Registry, error) {
	byName := make(map[string]*Model, len(models))
	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("model without name")
		}
		if _, dup := byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model '%s'", m.Name)
		}
		applyDefaults(m)
		byName[m.Name] = m
	}
	if err := linkModelRelations(byName); err != nil {
		return nil, fmt.Errorf("link error: %w", err)
	}
	if err := validateModels(byName); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return &Registry{models: byName}, nil
}

func (r *Registry) Get(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Names returns model names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Models returns every model ordered by name.
func (r *Registry) Models() []*Model {
	names := r.Names()
	out := make([]*Model, 0, len(names))
	for _, name := range names {
		out = append(out, r.models[name])
	}
	return out
}

// Apps returns the distinct app labels, sorted.
func (r *Registry) Apps() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range r.models {
		if !seen[m.App] {
			seen[m.App] = true
			out = append(out, m.App)
		}
	}
	sort.Strings(out)
	return out
}
