package store

import (
	"fmt"

	"EasyAPI/internal/model"
	"EasyAPI/internal/serializer"
)

// Record is one loaded row. It implements serializer.Entity.
type Record struct {
	model    *model.Model
	values   map[string]any // scalar fields by name
	keys     map[string]any // belongs_to keys by field name
	toOne    map[string]*Record
	toOneErr map[string]error
	toMany   map[string][]*Record // present only when prefetched
	stub     bool                 // only the primary key is known
}

func newRecord(m *model.Model) *Record {
	return &Record{
		model:    m,
		values:   map[string]any{},
		keys:     map[string]any{},
		toOne:    map[string]*Record{},
		toOneErr: map[string]error{},
		toMany:   map[string][]*Record{},
	}
}

func newStub(m *model.Model, pk any) *Record {
	r := newRecord(m)
	r.values[m.PrimaryKey] = pk
	r.stub = true
	return r
}

func (r *Record) Model() *model.Model {
	return r.model
}

func (r *Record) ModelName() string {
	return r.model.Name
}

func (r *Record) PrimaryKey() any {
	return r.values[r.model.PrimaryKey]
}

func (r *Record) Fields() []*model.Field {
	return r.model.Fields
}

// Key returns the stored key of a belongs_to field.
func (r *Record) Key(name string) any {
	return r.keys[name]
}

func (r *Record) Value(name string) (any, error) {
	f := r.model.Field(name)
	if f == nil || f.Kind() != model.KindScalar {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.model.Name, name)
	}
	if r.stub && name != r.model.PrimaryKey {
		return nil, fmt.Errorf("%s %v: only the key is loaded", r.model.Name, r.PrimaryKey())
	}
	v := r.values[name]
	if file, ok := v.(model.File); ok {
		return file.Location(), nil
	}
	return v, nil
}

func (r *Record) ToOne(name string) (serializer.Entity, error) {
	if err := r.toOneErr[name]; err != nil {
		return nil, err
	}
	related := r.toOne[name]
	if related == nil {
		return nil, nil
	}
	return related, nil
}

func (r *Record) ToMany(name string) ([]serializer.Entity, bool, error) {
	items, ok := r.toMany[name]
	if !ok {
		return nil, false, nil
	}
	out := make([]serializer.Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, true, nil
}

// Entities adapts records for the serializer.
func Entities(records []*Record) []serializer.Entity {
	out := make([]serializer.Entity, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
