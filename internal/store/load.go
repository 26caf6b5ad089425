package store

import (
	"context"
	"database/sql"
	"fmt"

	"EasyAPI/internal/model"

	"github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"
)

const batchSize = 500

// LoadOptions control what is fetched around root records.
type LoadOptions struct {
	// Prefetch names to-many fields of the root model to load eagerly.
	Prefetch []string
	// Expand reports whether to-one relations of a model load full targets.
	// Otherwise belongs_to targets are key-only stubs.
	Expand func(model string) bool
}

func (o LoadOptions) expand(name string) bool {
	return o.Expand != nil && o.Expand(name)
}

// loader keeps one record per (model, key) for the duration of a request.
type loader struct {
	s        *Store
	q        queryer
	opts     LoadOptions
	identity map[string]map[string]*Record
}

func (s *Store) newLoader(opts LoadOptions) *loader {
	return &loader{s: s, q: s.db, opts: opts, identity: map[string]map[string]*Record{}}
}

// intern returns the canonical record for r and whether r made it full.
func (l *loader) intern(r *Record) (*Record, bool) {
	byKey := l.identity[r.model.Name]
	if byKey == nil {
		byKey = map[string]*Record{}
		l.identity[r.model.Name] = byKey
	}
	key := keyString(r.PrimaryKey())
	existing, ok := byKey[key]
	if !ok {
		byKey[key] = r
		return r, !r.stub
	}
	if existing.stub && !r.stub {
		existing.values = r.values
		existing.keys = r.keys
		existing.stub = false
		return existing, true
	}
	return existing, false
}

func (l *loader) lookup(m *model.Model, key any) *Record {
	return l.identity[m.Name][keyString(key)]
}

// load completes roots in place: prefetch, then to-one resolution.
func (l *loader) load(ctx context.Context, m *model.Model, roots []*Record) ([]*Record, error) {
	out := make([]*Record, len(roots))
	frontier := make([]*Record, 0, len(roots))
	for i, r := range roots {
		rec, fresh := l.intern(r)
		out[i] = rec
		if fresh {
			frontier = append(frontier, rec)
		}
	}
	if len(out) == 0 {
		return out, nil
	}

	children, err := l.prefetch(ctx, m, out)
	if err != nil {
		return nil, err
	}
	frontier = append(frontier, children...)

	for len(frontier) > 0 {
		next, err := l.resolveToOne(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = next
	}
	return out, nil
}

type prefetchResult struct {
	field   *model.Field
	records []*Record
	parents []any
}

// prefetch loads the requested to-many fields concurrently, one query each.
func (l *loader) prefetch(ctx context.Context, m *model.Model, roots []*Record) ([]*Record, error) {
	var fields []*model.Field
	for _, name := range l.opts.Prefetch {
		f := m.Field(name)
		if f == nil || f.Kind() != model.KindToMany {
			return nil, fmt.Errorf("%w: %s.%s is not a to-many relation", ErrUnknownField, m.Name, name)
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	parentKeys := make([]any, len(roots))
	for i, r := range roots {
		parentKeys[i] = r.PrimaryKey()
	}

	results := make([]prefetchResult, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.s.concurrency)
	for i, f := range fields {
		i, f := i, f
		g.Go(func() error {
			records, parents, err := l.fetchToMany(gctx, f, parentKeys)
			if err != nil {
				return fmt.Errorf("prefetch %s.%s: %w", m.Name, f.Name, err)
			}
			results[i] = prefetchResult{field: f, records: records, parents: parents}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fresh []*Record
	for _, res := range results {
		grouped := map[string][]*Record{}
		for i, r := range res.records {
			rec, isFresh := l.intern(r)
			if isFresh {
				fresh = append(fresh, rec)
			}
			key := keyString(res.parents[i])
			grouped[key] = append(grouped[key], rec)
		}
		for _, root := range roots {
			items := grouped[keyString(root.PrimaryKey())]
			if items == nil {
				items = []*Record{}
			}
			root.toMany[res.field.Name] = items
		}
	}
	return fresh, nil
}

func (l *loader) fetchToMany(ctx context.Context, f *model.Field, parentKeys []any) ([]*Record, []any, error) {
	target := f.Target()
	var (
		records []*Record
		parents []any
	)
	for _, chunk := range chunks(parentKeys) {
		var b squirrel.SelectBuilder
		switch f.Relation {
		case model.HasMany:
			cols := append(selectColumns(target, "t"), qualified("t", f.FK)+" AS "+quote(parentKeyColumn))
			b = l.s.sb.Select(cols...).
				From(quote(target.Table) + " t").
				Where(squirrel.Eq{qualified("t", f.FK): chunk}).
				OrderBy(qualified("t", target.PrimaryKey))
		case model.ManyToMany:
			cols := append(selectColumns(target, "t"), qualified("j", f.ThroughFK)+" AS "+quote(parentKeyColumn))
			b = l.s.sb.Select(cols...).
				From(quote(target.Table) + " t").
				Join(fmt.Sprintf("%s j ON %s = %s", quote(f.Through), qualified("j", f.TargetFK), qualified("t", target.PrimaryKey))).
				Where(squirrel.Eq{qualified("j", f.ThroughFK): chunk}).
				OrderBy(qualified("t", target.PrimaryKey))
		default:
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownField, f.Name)
		}
		rows, err := l.s.query(ctx, l.q, b)
		if err != nil {
			return nil, nil, err
		}
		recs, ps, err := l.s.scanRecords(rows, target, true)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, recs...)
		parents = append(parents, ps...)
	}
	return records, parents, nil
}

// resolveToOne links every to-one field of the frontier and returns the
// records that became fully loaded in the process.
func (l *loader) resolveToOne(ctx context.Context, frontier []*Record) ([]*Record, error) {
	byModel := map[*model.Model][]*Record{}
	var order []*model.Model
	for _, r := range frontier {
		if _, ok := byModel[r.model]; !ok {
			order = append(order, r.model)
		}
		byModel[r.model] = append(byModel[r.model], r)
	}

	var next []*Record
	for _, m := range order {
		records := byModel[m]
		expand := l.opts.expand(m.Name)
		for _, f := range m.Relations(model.KindToOne) {
			var (
				fresh []*Record
				err   error
			)
			switch f.Relation {
			case model.BelongsTo:
				fresh, err = l.linkBelongsTo(ctx, f, records, expand)
			case model.HasOne:
				fresh, err = l.linkHasOne(ctx, f, records, expand)
			}
			if err != nil {
				return nil, fmt.Errorf("resolve %s.%s: %w", m.Name, f.Name, err)
			}
			next = append(next, fresh...)
		}
	}
	return next, nil
}

func (l *loader) linkBelongsTo(ctx context.Context, f *model.Field, records []*Record, expand bool) ([]*Record, error) {
	target := f.Target()
	var fresh []*Record

	if expand {
		var missing []any
		seen := map[string]bool{}
		for _, r := range records {
			key := r.keys[f.Name]
			if key == nil {
				continue
			}
			ks := keyString(key)
			if seen[ks] {
				continue
			}
			seen[ks] = true
			if existing := l.lookup(target, key); existing == nil || existing.stub {
				missing = append(missing, key)
			}
		}
		loaded, err := l.fetchByKeys(ctx, target, missing)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			if rec, isFresh := l.intern(r); isFresh {
				fresh = append(fresh, rec)
			}
		}
	}

	for _, r := range records {
		key := r.keys[f.Name]
		if key == nil {
			continue
		}
		related := l.lookup(target, key)
		if related == nil && !expand {
			related, _ = l.intern(newStub(target, key))
		}
		if related == nil || (expand && related.stub) {
			r.toOneErr[f.Name] = fmt.Errorf("%w: %s.%s=%v", ErrBrokenReference, r.model.Name, f.FK, key)
			continue
		}
		r.toOne[f.Name] = related
	}
	return fresh, nil
}

func (l *loader) linkHasOne(ctx context.Context, f *model.Field, records []*Record, expand bool) ([]*Record, error) {
	target := f.Target()
	parentKeys := make([]any, len(records))
	for i, r := range records {
		parentKeys[i] = r.PrimaryKey()
	}

	var fresh []*Record
	byParent := map[string]*Record{}
	for _, chunk := range chunks(parentKeys) {
		var cols []string
		if expand {
			cols = selectColumns(target, "t")
		} else {
			cols = []string{qualified("t", target.PrimaryKey)}
		}
		cols = append(cols, qualified("t", f.FK)+" AS "+quote(parentKeyColumn))
		b := l.s.sb.Select(cols...).
			From(quote(target.Table) + " t").
			Where(squirrel.Eq{qualified("t", f.FK): chunk}).
			OrderBy(qualified("t", target.PrimaryKey))
		rows, err := l.s.query(ctx, l.q, b)
		if err != nil {
			return nil, err
		}

		var recs []*Record
		var parents []any
		if expand {
			recs, parents, err = l.s.scanRecords(rows, target, true)
		} else {
			recs, parents, err = l.scanStubs(rows, target)
		}
		if err != nil {
			return nil, err
		}
		for i, r := range recs {
			rec, isFresh := l.intern(r)
			if isFresh {
				fresh = append(fresh, rec)
			}
			key := keyString(parents[i])
			if _, taken := byParent[key]; !taken {
				byParent[key] = rec
			}
		}
	}
	for _, r := range records {
		if related, ok := byParent[keyString(r.PrimaryKey())]; ok {
			r.toOne[f.Name] = related
		}
	}
	return fresh, nil
}

func (l *loader) scanStubs(rows *sql.Rows, target *model.Model) ([]*Record, []any, error) {
	defer rows.Close()
	var (
		recs    []*Record
		parents []any
	)
	for rows.Next() {
		var pk, parent any
		if err := rows.Scan(&pk, &parent); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", target.Name, err)
		}
		recs = append(recs, newStub(target, normalizeKey(pk)))
		parents = append(parents, normalizeKey(parent))
	}
	return recs, parents, rows.Err()
}

func (l *loader) fetchByKeys(ctx context.Context, m *model.Model, keys []any) ([]*Record, error) {
	var out []*Record
	for _, chunk := range chunks(keys) {
		b := l.s.sb.Select(selectColumns(m, "")...).
			From(quote(m.Table)).
			Where(squirrel.Eq{quote(m.PrimaryKey): chunk})
		rows, err := l.s.query(ctx, l.q, b)
		if err != nil {
			return nil, err
		}
		recs, _, err := l.s.scanRecords(rows, m, false)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func chunks(keys []any) [][]any {
	var out [][]any
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		out = append(out, keys[start:end])
	}
	return out
}
