// Package store reads and writes declared models through database/sql.
// SQL is built with squirrel; Postgres runs on the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"EasyAPI/internal/logger"
	"EasyAPI/internal/model"

	"github.com/Masterminds/squirrel"
)

var (
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrUnknownField    = errors.New("unknown field")
	ErrNotWritable     = errors.New("field is not writable")
	ErrInvalidValue    = errors.New("invalid value")
	ErrBrokenReference = errors.New("broken reference")
)

// Options configure a Store.
type Options struct {
	// Placeholder defaults to squirrel.Dollar.
	Placeholder squirrel.PlaceholderFormat
	MediaRoot   string
	MediaURL    string
	// Concurrency bounds parallel prefetch queries; 0 means 4.
	Concurrency int
}

type Store struct {
	db          *sql.DB
	models      *model.Registry
	sb          squirrel.StatementBuilderType
	media       model.File
	concurrency int
}

func New(db *sql.DB, models *model.Registry, opts Options) *Store {
	ph := opts.Placeholder
	if ph == nil {
		ph = squirrel.Dollar
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Store{
		db:          db,
		models:      models,
		sb:          squirrel.StatementBuilder.PlaceholderFormat(ph),
		media:       model.File{Root: opts.MediaRoot, BaseURL: opts.MediaURL},
		concurrency: concurrency,
	}
}

// Models returns the registry the store was built with.
func (s *Store) Models() *model.Registry {
	return s.models
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) query(ctx context.Context, q queryer, b squirrel.Sqlizer) (*sql.Rows, error) {
	text, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.Debug("sql", map[string]any{"sql": text, "args": args})
	return q.QueryContext(ctx, text, args...)
}

func (s *Store) queryRow(ctx context.Context, q queryer, b squirrel.Sqlizer) (*sql.Row, error) {
	text, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.Debug("sql", map[string]any{"sql": text, "args": args})
	return q.QueryRowContext(ctx, text, args...), nil
}

func (s *Store) exec(ctx context.Context, q queryer, b squirrel.Sqlizer) (sql.Result, error) {
	text, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	logger.Debug("sql", map[string]any{"sql": text, "args": args})
	return q.ExecContext(ctx, text, args...)
}

// quote escapes an SQL identifier.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// qualified returns alias."column", or "column" without alias.
func qualified(alias, column string) string {
	if alias == "" {
		return quote(column)
	}
	return alias + "." + quote(column)
}

func selectColumns(m *model.Model, alias string) []string {
	cols := m.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = qualified(alias, c)
	}
	return out
}
