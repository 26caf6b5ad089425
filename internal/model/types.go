package model

import "EasyAPI/internal/options"

// FieldKind is resolved once when models are linked.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindToOne
	KindToMany
)

func (k FieldKind) String() string {
	switch k {
	case KindToOne:
		return "to_one"
	case KindToMany:
		return "to_many"
	default:
		return "scalar"
	}
}

// Relation types accepted in model files.
const (
	BelongsTo  = "belongs_to"
	HasOne     = "has_one"
	HasMany    = "has_many"
	ManyToMany = "many_to_many"
)

// Model describes one declared model file.
type Model struct {
	Name       string               `yaml:"-"` // logical name, taken from the file name
	App        string               `yaml:"app"`
	Table      string               `yaml:"table"`
	PrimaryKey string               `yaml:"primary_key"`
	Fields     []*Field             `yaml:"fields"`
	Meta       *options.Declaration `yaml:"meta"`

	// runtime
	fieldIndex map[string]*Field
}

// Field is a scalar column or a relation, in declaration order.
type Field struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`      // scalar type, see allowedFieldTypeValues
	Column    string `yaml:"column"`    // scalar column, defaults to Name
	Relation  string `yaml:"relation"`  // belongs_to, has_one, has_many, many_to_many
	Model     string `yaml:"model"`     // target model of a relation
	FK        string `yaml:"fk"`        // belongs_to: column here; has_*: column on target
	Through   string `yaml:"through"`   // many_to_many join table
	ThroughFK string `yaml:"through_fk"` // join table column pointing at this model
	TargetFK  string `yaml:"target_fk"` // join table column pointing at the target
	UploadTo  string `yaml:"upload_to"` // file fields: directory prefix for stored names

	// runtime
	kind   FieldKind
	target *Model
}

func (f *Field) Kind() FieldKind {
	return f.kind
}

// Target is the linked model of a relation, nil for scalars.
func (f *Field) Target() *Model {
	return f.target
}

// Field returns the declared field called name, or nil.
func (m *Model) Field(name string) *Field {
	if m == nil || m.fieldIndex == nil {
		return nil
	}
	return m.fieldIndex[name]
}

// PKField returns the primary key field.
func (m *Model) PKField() *Field {
	return m.Field(m.PrimaryKey)
}

// Relations returns relation fields of the given kind in declaration order.
func (m *Model) Relations(kind FieldKind) []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if f.kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Columns lists the columns selected for a row of this model: scalars and
// belongs_to keys.
func (m *Model) Columns() []string {
	var out []string
	for _, f := range m.Fields {
		switch {
		case f.kind == KindScalar:
			out = append(out, f.Column)
		case f.Relation == BelongsTo:
			out = append(out, f.FK)
		}
	}
	return out
}
