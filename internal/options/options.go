// Package options resolves per-model "meta" declarations into field
// visibility configuration shared by controllers and the serializer.
package options

import (
	"sort"
)

// Floor is the redaction set applied to every model.
var Floor = []string{"password", "token"}

// Declaration is the meta block as written by the user. Nil pointers mean
// the attribute was not given.
type Declaration struct {
	Model           string     `yaml:"model"`
	GenerateCRUD    *bool      `yaml:"generate_crud"`
	ModelFields     *FieldList `yaml:"model_fields"`
	ModelExclude    StringList `yaml:"model_exclude"`
	ModelJoin       *bool      `yaml:"model_join"`
	ModelRecursive  *bool      `yaml:"model_recursive"`
	SensitiveFields StringList `yaml:"sensitive_fields"`
}

// Config is a fully defaulted declaration.
type Config struct {
	GenerateCRUD bool      `yaml:"generate_crud"`
	Included     FieldList `yaml:"model_fields"`
	Excluded     []string  `yaml:"model_exclude"`
	Sensitive    []string  `yaml:"sensitive_fields"`
	Recursive    bool      `yaml:"model_recursive"`
	Join         bool      `yaml:"model_join"`
}

func Default() Config {
	return Config{
		GenerateCRUD: true,
		Included:     AllFields(),
		Excluded:     []string{},
		Sensitive:    union(Floor),
		Recursive:    false,
		Join:         false,
	}
}

// Resolve never fails; a nil declaration yields Default().
func Resolve(decl *Declaration) Config {
	cfg := Default()
	if decl == nil {
		return cfg
	}
	if decl.GenerateCRUD != nil {
		cfg.GenerateCRUD = *decl.GenerateCRUD
	}
	if decl.ModelFields != nil {
		cfg.Included = FieldList{All: decl.ModelFields.All, Names: union(decl.ModelFields.Names)}
	}
	cfg.Excluded = union(decl.ModelExclude)
	if len(cfg.Excluded) > 0 {
		// exclusion wins over an allow-list
		cfg.Included = AllFields()
	}
	cfg.Sensitive = union(Floor, decl.SensitiveFields)
	if decl.ModelRecursive != nil {
		cfg.Recursive = *decl.ModelRecursive
	}
	if decl.ModelJoin != nil {
		cfg.Join = *decl.ModelJoin
	}
	return cfg
}

// ShowField reports whether name survives exclusion, redaction and the allow-list.
func (c Config) ShowField(name string) bool {
	if contains(c.Excluded, name) || contains(c.Sensitive, name) || contains(Floor, name) {
		return false
	}
	return c.Included.Contains(name)
}

// EffectiveExcluded is recomputed on every call.
func (c Config) EffectiveExcluded() []string {
	return union(c.Excluded, c.Sensitive, Floor)
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// union returns the sorted distinct values of all lists.
func union(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
