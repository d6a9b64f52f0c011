// Package catalog mirrors the ledger into SQLite for search and keeps the
// history of document rewrites. The ledger stays authoritative; the catalog
// can be rebuilt from it at any time.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path           TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL DEFAULT '',
	hash           TEXT NOT NULL DEFAULT '',
	last_processed TEXT NOT NULL DEFAULT '',
	approved       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);

CREATE TABLE IF NOT EXISTS apply_runs (
	id       TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	at       TEXT NOT NULL,
	applied  INTEGER NOT NULL DEFAULT 0,
	skipped  INTEGER NOT NULL DEFAULT 0,
	backup   TEXT NOT NULL DEFAULT '',
	sections INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_apply_runs_at ON apply_runs(at);
`

// Catalog wraps a sql.DB with catalog operations.
type Catalog struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Catalog, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply fts schema: %w", err)
	}
	return &Catalog{conn: conn}, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.conn.Close()
}
