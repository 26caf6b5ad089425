// Package serializer turns loaded entities into plain nested data ready for
// JSON encoding. Visibility comes from the options registry; cycles are cut
// with a referrer chain.
package serializer

import (
	"reflect"

	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"
	"EasyAPI/internal/options"
)

// Serializer is stateless and safe for concurrent use.
type Serializer struct {
	configs options.Source
}

func New(configs options.Source) *Serializer {
	return &Serializer{configs: configs}
}

// Serialize dispatches on the shape of value. Collections keep their order,
// a page {"items": ...} yields its serialized items, plain data passes
// through unchanged.
func (s *Serializer) Serialize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []Entity:
		return s.SerializeAll(v)
	case Entity:
		if isNilEntity(v) {
			return nil
		}
		return s.SerializeEntity(v, ReferrerChain{})
	case map[string]any:
		if items, ok := v["items"]; ok {
			if list, ok := asEntities(items); ok {
				return s.SerializeAll(list)
			}
		}
		return v
	}
	if list, ok := asEntities(value); ok {
		return s.SerializeAll(list)
	}
	return value
}

func (s *Serializer) SerializeAll(list []Entity) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if isNilEntity(e) {
			continue
		}
		out = append(out, s.SerializeEntity(e, ReferrerChain{}))
	}
	return out
}

// asEntities accepts []Entity and slices of concrete entity types.
func asEntities(value any) ([]Entity, bool) {
	if list, ok := value.([]Entity); ok {
		return list, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || !rv.Type().Elem().Implements(entityType) {
		return nil, false
	}
	out := make([]Entity, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface().(Entity)
	}
	return out, true
}

// SerializeEntity walks the fields of e in declaration order.
func (s *Serializer) SerializeEntity(e Entity, referrers ReferrerChain) map[string]any {
	cfg := options.ConfigFor(s.configs, e.ModelName())
	chain := referrers.With(e)
	fields := e.Fields()
	out := make(map[string]any, len(fields))

	for _, f := range fields {
		if !cfg.ShowField(f.Name) {
			continue
		}
		switch f.Kind() {
		case model.KindToOne:
			s.serializeToOne(e, f, cfg, chain, out)
		case model.KindToMany:
			s.serializeToMany(e, f, cfg, chain, out)
		default:
			v, err := e.Value(f.Name)
			if err != nil {
				logFailure("serialize_value_failed", e, f, err)
				v = ""
			}
			out[f.Name] = v
		}
	}
	return out
}

func (s *Serializer) serializeToOne(e Entity, f *model.Field, cfg options.Config, chain ReferrerChain, out map[string]any) {
	related, err := e.ToOne(f.Name)
	if err != nil {
		logFailure("serialize_to_one_failed", e, f, err)
		out[f.Name] = nil
		return
	}
	if isNilEntity(related) {
		out[f.Name] = nil
		return
	}
	if chain.Contains(related) {
		// back-reference: contributes no key
		return
	}
	if cfg.Recursive {
		out[f.Name] = s.SerializeEntity(related, chain)
		return
	}
	out[f.Name] = related.PrimaryKey()
}

func (s *Serializer) serializeToMany(e Entity, f *model.Field, cfg options.Config, chain ReferrerChain, out map[string]any) {
	items, loaded, err := e.ToMany(f.Name)
	if err != nil {
		logFailure("serialize_to_many_failed", e, f, err)
		return
	}
	if !loaded {
		return
	}
	if !cfg.Join {
		pks := make([]any, 0, len(items))
		for _, item := range items {
			if !isNilEntity(item) {
				pks = append(pks, item.PrimaryKey())
			}
		}
		out[f.Name] = pks
		return
	}
	nested := make([]any, 0, len(items))
	for _, item := range items {
		if isNilEntity(item) {
			continue
		}
		if chain.Contains(item) {
			nested = append(nested, item.PrimaryKey())
			continue
		}
		nested = append(nested, s.SerializeEntity(item, chain))
	}
	out[f.Name] = nested
}

func logFailure(event string, e Entity, f *model.Field, err error) {
	logger.Error(event, map[string]any{
		"model": e.ModelName(),
		"pk":    e.PrimaryKey(),
		"field": f.Name,
		"error": err.Error(),
	})
}
