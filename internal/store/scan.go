package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"EasyAPI/internal/model"
)

const parentKeyColumn = "__parent_key"

// scanRecords reads rows holding m.Columns() and, when withParent is set,
// a trailing parent key.
func (s *Store) scanRecords(rows *sql.Rows, m *model.Model, withParent bool) ([]*Record, []any, error) {
	defer rows.Close()

	width := len(m.Columns())
	if withParent {
		width++
	}
	var (
		records []*Record
		parents []any
	)
	for rows.Next() {
		raw := make([]any, width)
		dest := make([]any, width)
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", m.Name, err)
		}
		records = append(records, s.recordFromRow(m, raw))
		if withParent {
			parents = append(parents, normalizeKey(raw[width-1]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows %s: %w", m.Name, err)
	}
	return records, parents, nil
}

// recordFromRow walks fields in the same order as Model.Columns.
func (s *Store) recordFromRow(m *model.Model, raw []any) *Record {
	r := newRecord(m)
	i := 0
	for _, f := range m.Fields {
		switch {
		case f.Kind() == model.KindScalar:
			r.values[f.Name] = s.normalize(f, raw[i])
			i++
		case f.Relation == model.BelongsTo:
			r.keys[f.Name] = normalizeKey(raw[i])
			i++
		}
	}
	return r
}

func (s *Store) normalize(f *model.Field, raw any) any {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch f.Type {
	case "file":
		file := s.media
		if raw != nil {
			file.Name = fmt.Sprint(raw)
		}
		return file
	case "bool":
		switch v := raw.(type) {
		case int64:
			return v != 0
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	case "float":
		switch v := raw.(type) {
		case int64:
			return float64(v)
		case string:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
		}
	case "json":
		if v, ok := raw.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(v), &out); err == nil {
				return out
			}
		}
	}
	return raw
}

func normalizeKey(raw any) any {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

func keyString(v any) string {
	return fmt.Sprint(v)
}

// coerce converts decoded JSON input into a value fit for the column type.
func coerce(f *model.Field, v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if fl, err := n.Float64(); err == nil {
			v = fl
		}
	}
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case "int", "bigint":
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%s: %v is not an integer", f.Name, n)
			}
			// float64(math.MaxInt64) rounds up to 2^63
			if n < math.MinInt64 || n >= math.MaxInt64 {
				return nil, fmt.Errorf("%s: %v is out of the integer range", f.Name, n)
			}
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not an integer", f.Name, n)
			}
			return i, nil
		}
	case "bool":
		if s, ok := v.(string); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a boolean", f.Name, s)
			}
			return b, nil
		}
	case "json":
		if _, ok := v.(string); !ok {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			return string(b), nil
		}
	case "file":
		if file, ok := v.(model.File); ok {
			return file.Name, nil
		}
	}
	return v, nil
}
