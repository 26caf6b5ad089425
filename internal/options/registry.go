package options

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrAlreadyPublished = errors.New("options already published")

// Source finds the resolved config of a model.
type Source interface {
	Lookup(model string) (Config, bool)
}

// Registry maps model names to their published config.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

func NewRegistry() *Registry {
	return &Registry{configs: map[string]Config{}}
}

// Publish stores cfg for model. The first publish wins.
func (r *Registry) Publish(model string, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[model]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, model)
	}
	r.configs[model] = cfg
	return nil
}

func (r *Registry) Lookup(model string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[model]
	return cfg, ok
}

// Models returns the published model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.configs))
	for name := range r.configs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Override answers with Config for Model and defers to Source otherwise.
type Override struct {
	Source Source
	Model  string
	Config Config
}

func (o Override) Lookup(model string) (Config, bool) {
	if model == o.Model {
		return o.Config, true
	}
	if o.Source == nil {
		return Config{}, false
	}
	return o.Source.Lookup(model)
}

// ConfigFor returns the published config for model or Default().
func ConfigFor(src Source, model string) Config {
	if src != nil {
		if cfg, ok := src.Lookup(model); ok {
			return cfg
		}
	}
	return Default()
}
