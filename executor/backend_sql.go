package executor

import (
	"context"
	"database/sql"

	// Registers the "postgres" driver via lib/pq, a direct requirement in go.mod.
	_ "github.com/lib/pq"
	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// SQLBackend wraps a *sql.DB opened against any database/sql driver. Both
// PostgresBackend and SQLiteBackend are thin constructors over this type so
// their Query/Close behavior (and therefore their sqlmock-driven tests) is
// identical; only the driver name and DSN differ.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps an already-opened *sql.DB, letting tests inject a
// sqlmock-backed DB directly.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Query(ctx context.Context, sqlText string) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, sqlText)
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// NewPostgresBackend opens a Postgres connection for dsn.
func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLBackend(db), nil
}

// NewSQLiteBackend opens a SQLite connection for dsn (a file path or ":memory:").
func NewSQLiteBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLBackend(db), nil
}
