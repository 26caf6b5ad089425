package model

import (
	"fmt"
)

// validateModels checks cross-field constraints after linking.
func validateModels(models map[string]*Model) error {
	for name, m := range models {
		pk := m.PKField()
		if pk == nil {
			return fmt.Errorf("model '%s': primary key '%s' is not a field", name, m.PrimaryKey)
		}
		if pk.Kind() != KindScalar {
			return fmt.Errorf("model '%s': primary key '%s' must be a scalar", name, m.PrimaryKey)
		}
		if m.Meta != nil && m.Meta.Model != name {
			return fmt.Errorf("model '%s': meta.model '%s' does not match", name, m.Meta.Model)
		}

		columns := map[string]string{}
		for _, f := range m.Fields {
			col := ""
			switch {
			case f.Kind() == KindScalar:
				col = f.Column
			case f.Relation == BelongsTo:
				col = f.FK
			default:
				continue
			}
			if other, ok := columns[col]; ok {
				return fmt.Errorf("model '%s': fields '%s' and '%s' share column '%s'", name, other, f.Name, col)
			}
			columns[col] = f.Name
		}

		for _, f := range m.Fields {
			if f.Kind() != KindScalar && f.UploadTo != "" {
				return fmt.Errorf("field '%s.%s': upload_to is only valid on file fields", name, f.Name)
			}
			if f.Kind() == KindScalar && f.Type != "file" && f.UploadTo != "" {
				return fmt.Errorf("field '%s.%s': upload_to is only valid on file fields", name, f.Name)
			}
		}
	}
	return nil
}
