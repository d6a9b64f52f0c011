//go:build !sqlite_fts5

package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// Without FTS5, search falls back to LIKE over the documents table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) {}

// Search matches query against title, summary, category and path.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := c.conn.QueryContext(ctx, `
		SELECT path, title, category, substr(summary, 1, 200)
		FROM documents
		WHERE title LIKE ? OR summary LIKE ? OR category LIKE ? OR path LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, like, like, limit)
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
