//go:build sqlite_fts5

package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			path UNINDEXED,
			title,
			summary,
			category,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, path, title, summary, category string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE path = ?`, path)
	_, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (path, title, summary, category) VALUES (?, ?, ?, ?)`,
		path, title, summary, category)
	if err != nil {
		return fmt.Errorf("catalog: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, path string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE path = ?`, path)
}

// Search runs an FTS5 query and returns hits with highlighted snippets.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.conn.QueryContext(ctx, `
		SELECT path,
		       title,
		       category,
		       snippet(documents_fts, 2, '<b>', '</b>', '...', 32)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Path, &h.Title, &h.Category, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
