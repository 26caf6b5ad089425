package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"

	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"

	"github.com/Masterminds/squirrel"
)

// ListQuery selects a page of records.
type ListQuery struct {
	Filters map[string]any
	Limit   uint64
	Offset  uint64
}

// Get returns nil, nil when no row has the key.
func (s *Store) Get(ctx context.Context, m *model.Model, id any, opts LoadOptions) (*Record, error) {
	b := s.sb.Select(selectColumns(m, "")...).
		From(quote(m.Table)).
		Where(squirrel.Eq{quote(m.PrimaryKey): id}).
		Limit(1)
	rows, err := s.query(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", m.Name, err)
	}
	recs, _, err := s.scanRecords(rows, m, false)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	out, err := s.newLoader(opts).load(ctx, m, recs)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// List returns one page ordered by primary key and the total match count.
func (s *Store) List(ctx context.Context, m *model.Model, q ListQuery, opts LoadOptions) ([]*Record, int64, error) {
	where, err := buildWhere(m, "", q.Filters)
	if err != nil {
		return nil, 0, err
	}

	countB := s.sb.Select("COUNT(*)").From(quote(m.Table))
	if where != nil {
		countB = countB.Where(where)
	}
	row, err := s.queryRow(ctx, s.db, countB)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", m.Name, err)
	}

	b := s.sb.Select(selectColumns(m, "")...).
		From(quote(m.Table)).
		OrderBy(quote(m.PrimaryKey))
	if where != nil {
		b = b.Where(where)
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}
	if q.Offset > 0 {
		b = b.Offset(q.Offset)
	}
	rows, err := s.query(ctx, s.db, b)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", m.Name, err)
	}
	recs, _, err := s.scanRecords(rows, m, false)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.newLoader(opts).load(ctx, m, recs)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Create inserts a row and its many_to_many links, returning the new key.
func (s *Store) Create(ctx context.Context, m *model.Model, payload map[string]any) (any, error) {
	w, err := splitPayload(m, payload)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var b squirrel.Sqlizer
	if len(w.columns) == 0 {
		b = squirrel.Expr(fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quote(m.Table), quote(m.PrimaryKey)))
	} else {
		b = s.sb.Insert(quote(m.Table)).
			Columns(w.columns...).
			Values(w.values...).
			Suffix("RETURNING " + quote(m.PrimaryKey))
	}
	row, err := s.queryRow(ctx, tx, b)
	if err != nil {
		return nil, err
	}
	var id any
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Name, err)
	}
	id = normalizeKey(id)

	for _, ln := range w.links {
		if err := s.replaceLinks(ctx, tx, ln.field, id, ln.keys); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	logger.Info("record_created", map[string]any{"model": m.Name, "id": id})
	return id, nil
}

// Update reports false when no row has the key.
func (s *Store) Update(ctx context.Context, m *model.Model, id any, payload map[string]any) (bool, error) {
	w, err := splitPayload(m, payload)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := s.exists(ctx, tx, m, id)
	if err != nil || !exists {
		return false, err
	}

	if len(w.columns) > 0 {
		b := s.sb.Update(quote(m.Table)).Where(squirrel.Eq{quote(m.PrimaryKey): id})
		for i, col := range w.columns {
			b = b.Set(col, w.values[i])
		}
		if _, err := s.exec(ctx, tx, b); err != nil {
			return false, fmt.Errorf("update %s: %w", m.Name, err)
		}
	}
	for _, ln := range w.links {
		if err := s.replaceLinks(ctx, tx, ln.field, id, ln.keys); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	logger.Info("record_updated", map[string]any{"model": m.Name, "id": id})
	return true, nil
}

// Delete removes the row and every join table row pointing at it.
func (s *Store) Delete(ctx context.Context, m *model.Model, id any) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, owner := range s.models.Models() {
		for _, f := range owner.Relations(model.KindToMany) {
			if f.Relation != model.ManyToMany {
				continue
			}
			if owner == m {
				b := s.sb.Delete(quote(f.Through)).Where(squirrel.Eq{quote(f.ThroughFK): id})
				if _, err := s.exec(ctx, tx, b); err != nil {
					return false, fmt.Errorf("unlink %s.%s: %w", owner.Name, f.Name, err)
				}
			}
			if f.Target() == m {
				b := s.sb.Delete(quote(f.Through)).Where(squirrel.Eq{quote(f.TargetFK): id})
				if _, err := s.exec(ctx, tx, b); err != nil {
					return false, fmt.Errorf("unlink %s.%s: %w", owner.Name, f.Name, err)
				}
			}
		}
	}

	res, err := s.exec(ctx, tx, s.sb.Delete(quote(m.Table)).Where(squirrel.Eq{quote(m.PrimaryKey): id}))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", m.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	logger.Info("record_deleted", map[string]any{"model": m.Name, "id": id})
	return true, nil
}

func (s *Store) exists(ctx context.Context, q queryer, m *model.Model, id any) (bool, error) {
	row, err := s.queryRow(ctx, q, s.sb.Select("1").From(quote(m.Table)).Where(squirrel.Eq{quote(m.PrimaryKey): id}))
	if err != nil {
		return false, err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) replaceLinks(ctx context.Context, tx *sql.Tx, f *model.Field, id any, keys []any) error {
	del := s.sb.Delete(quote(f.Through)).Where(squirrel.Eq{quote(f.ThroughFK): id})
	if _, err := s.exec(ctx, tx, del); err != nil {
		return fmt.Errorf("unlink %s: %w", f.Name, err)
	}
	if len(keys) == 0 {
		return nil
	}
	ins := s.sb.Insert(quote(f.Through)).Columns(quote(f.ThroughFK), quote(f.TargetFK))
	for _, k := range keys {
		ins = ins.Values(id, k)
	}
	if _, err := s.exec(ctx, tx, ins); err != nil {
		return fmt.Errorf("link %s: %w", f.Name, err)
	}
	return nil
}

type link struct {
	field *model.Field
	keys  []any
}

type writeSet struct {
	columns []string
	values  []any
	links   []link
}

// splitPayload maps payload keys to columns; belongs_to accepts the field
// name or its key column, many_to_many lists go to the join table.
func splitPayload(m *model.Model, payload map[string]any) (writeSet, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var w writeSet
	for _, key := range keys {
		val := payload[key]
		f := m.Field(key)
		if f == nil {
			for _, candidate := range m.Fields {
				if candidate.Relation == model.BelongsTo && candidate.FK == key {
					f = candidate
					break
				}
			}
		}
		if f == nil {
			return writeSet{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, m.Name, key)
		}

		switch {
		case f.Kind() == model.KindScalar:
			v, err := coerce(f, val)
			if err != nil {
				return writeSet{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			if name, ok := v.(string); ok && f.Type == "file" && f.UploadTo != "" && name != "" {
				prefix := strings.Trim(f.UploadTo, "/")
				if !strings.HasPrefix(name, prefix+"/") {
					v = path.Join(prefix, name)
				}
			}
			w.columns = append(w.columns, quote(f.Column))
			w.values = append(w.values, v)
		case f.Relation == model.BelongsTo:
			v, err := coerce(f.Target().PKField(), val)
			if err != nil {
				return writeSet{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			w.columns = append(w.columns, quote(f.FK))
			w.values = append(w.values, v)
		case f.Relation == model.ManyToMany:
			ids, err := linkKeys(f, val)
			if err != nil {
				return writeSet{}, err
			}
			w.links = append(w.links, link{field: f, keys: ids})
		default:
			return writeSet{}, fmt.Errorf("%w: %s.%s", ErrNotWritable, m.Name, key)
		}
	}
	return w, nil
}

func linkKeys(f *model.Field, val any) ([]any, error) {
	if val == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %s needs a list of keys", ErrInvalidValue, f.Name)
	}
	pk := f.Target().PKField()
	seen := map[string]bool{}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := coerce(pk, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if v == nil || seen[keyString(v)] {
			continue
		}
		seen[keyString(v)] = true
		out = append(out, v)
	}
	return out, nil
}
