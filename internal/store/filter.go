package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"EasyAPI/internal/model"

	"github.com/Masterminds/squirrel"
)

// filterColumn resolves a filter field to its column and the field used
// to coerce values. belongs_to relations filter on their key.
func filterColumn(m *model.Model, name string) (string, *model.Field, bool) {
	if f := m.Field(name); f != nil {
		switch {
		case f.Kind() == model.KindScalar:
			return f.Column, f, true
		case f.Relation == model.BelongsTo:
			return f.FK, f.Target().PKField(), true
		}
		return "", nil, false
	}
	for _, f := range m.Fields {
		if f.Relation == model.BelongsTo && f.FK == name {
			return f.FK, f.Target().PKField(), true
		}
	}
	return "", nil, false
}

var knownOps = map[string]bool{
	"exact": true, "in": true,
	"lt": true, "lte": true, "gt": true, "gte": true,
	"contains": true, "icontains": true, "startswith": true, "endswith": true,
	"isnull": true,
}

// buildWhere turns field__op keys into conditions joined with AND.
func buildWhere(m *model.Model, alias string, filters map[string]any) (squirrel.Sqlizer, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make(squirrel.And, 0, len(keys))
	for _, key := range keys {
		name, op := key, "exact"
		if i := strings.LastIndex(key, "__"); i > 0 && knownOps[key[i+2:]] {
			name, op = key[:i], key[i+2:]
		}
		column, f, ok := filterColumn(m, name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, name)
		}
		cond, err := buildCond(qualified(alias, column), f, op, filters[key])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
		}
		exprs = append(exprs, cond)
	}
	return exprs, nil
}

func buildCond(col string, f *model.Field, op string, raw any) (squirrel.Sqlizer, error) {
	switch op {
	case "exact", "lt", "lte", "gt", "gte":
		val, err := coerce(f, raw)
		if err != nil {
			return nil, err
		}
		if val == nil && op != "exact" {
			return nil, fmt.Errorf("%s needs a value", op)
		}
		switch op {
		case "lt":
			return squirrel.Lt{col: val}, nil
		case "lte":
			return squirrel.LtOrEq{col: val}, nil
		case "gt":
			return squirrel.Gt{col: val}, nil
		case "gte":
			return squirrel.GtOrEq{col: val}, nil
		}
		return squirrel.Eq{col: val}, nil
	case "in":
		rv := reflect.ValueOf(raw)
		if raw == nil || rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("in needs a list")
		}
		vals := make([]any, rv.Len())
		for i := range vals {
			v, err := coerce(f, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return squirrel.Eq{col: vals}, nil
	case "contains", "icontains", "startswith", "endswith":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string", op)
		}
		s = escapeLike(s)
		switch op {
		case "contains":
			return squirrel.Expr(col+` LIKE ? ESCAPE '\'`, "%"+s+"%"), nil
		case "icontains":
			return squirrel.Expr(`LOWER(`+col+`) LIKE LOWER(?) ESCAPE '\'`, "%"+s+"%"), nil
		case "startswith":
			return squirrel.Expr(col+` LIKE ? ESCAPE '\'`, s+"%"), nil
		default:
			return squirrel.Expr(col+` LIKE ? ESCAPE '\'`, "%"+s), nil
		}
	case "isnull":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("isnull needs a boolean")
		}
		if b {
			return squirrel.Eq{col: nil}, nil
		}
		return squirrel.NotEq{col: nil}, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
