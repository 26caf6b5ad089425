package itests

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenTestDB opens an in-memory sqlite database and applies schemaFile.
// A single connection keeps every query on the same memory database.
func OpenTestDB(schemaFile string) (*sql.DB, error) {
	schema, err := os.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(string(schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply %s: %w", filepath.Base(schemaFile), err)
	}
	return db, nil
}

// CountRows returns SELECT COUNT(*) for a table and optional where clause.
func CountRows(db *sql.DB, table, where string, args ...any) (int, error) {
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	err := db.QueryRow(q, args...).Scan(&n)
	return n, err
}
