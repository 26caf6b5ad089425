package model

import (
	"fmt"
	"sort"
	"unicode"

	"github.com/go-openapi/inflect"
)

// applyDefaults fills table, app, primary key and field columns of one model.
func applyDefaults(m *Model) {
	if m.App == "" {
		m.App = "main"
	}
	if m.Table == "" {
		m.Table = inflect.Pluralize(toSnakeCase(m.Name))
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = "id"
	}
	declared := false
	for _, f := range m.Fields {
		if f.Name == m.PrimaryKey {
			declared = true
			break
		}
	}
	if !declared {
		m.Fields = append([]*Field{{Name: m.PrimaryKey, Type: "int"}}, m.Fields...)
	}
	if m.Meta != nil && m.Meta.Model == "" {
		m.Meta.Model = m.Name
	}
}

// linkModelRelations resolves relation targets, kinds and default keys.
func linkModelRelations(models map[string]*Model) error {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, modelName := range names {
		m := models[modelName]
		m.fieldIndex = make(map[string]*Field, len(m.Fields))
		for _, f := range m.Fields {
			if _, dup := m.fieldIndex[f.Name]; dup {
				return fmt.Errorf("duplicate field '%s.%s'", modelName, f.Name)
			}
			m.fieldIndex[f.Name] = f

			if f.Relation == "" {
				f.kind = KindScalar
				if f.Type == "" {
					f.Type = "string"
				}
				if f.Column == "" {
					f.Column = f.Name
				}
				continue
			}

			target, ok := models[f.Model]
			if !ok {
				return fmt.Errorf("invalid relation: model '%s' not found in '%s.%s'", f.Model, modelName, f.Name)
			}
			f.target = target

			switch f.Relation {
			case BelongsTo:
				// FK lives on this model and points at the target
				f.kind = KindToOne
				if f.FK == "" {
					f.FK = f.Name + "_id"
				}
			case HasOne, HasMany:
				// FK lives on the target and points at this model
				f.kind = KindToOne
				if f.Relation == HasMany {
					f.kind = KindToMany
				}
				if f.FK == "" {
					f.FK = toSnakeCase(modelName) + "_id"
				}
			case ManyToMany:
				f.kind = KindToMany
				if f.Through == "" {
					f.Through = m.Table + "_" + f.Name
				}
				from, to := toSnakeCase(modelName), toSnakeCase(f.Model)
				if from == to {
					from, to = "from_"+from, "to_"+to
				}
				if f.ThroughFK == "" {
					f.ThroughFK = from + "_id"
				}
				if f.TargetFK == "" {
					f.TargetFK = to + "_id"
				}
			default:
				return fmt.Errorf("relation '%s.%s' must have valid type (belongs_to, has_one, has_many, many_to_many), got '%s'", modelName, f.Name, f.Relation)
			}
		}
	}
	return nil
}

func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}
