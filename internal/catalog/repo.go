package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
)

// Document is one catalogued ledger entry.
type Document struct {
	Path          string    `json:"path"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Summary       string    `json:"summary"`
	Hash          string    `json:"hash"`
	LastProcessed time.Time `json:"last_processed"`
	Approved      bool      `json:"summary_approved"`
}

// Hit is one search result.
type Hit struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// CategoryCount is the number of documents filed under a category.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Sync brings the documents table in line with l: changed entries are
// upserted and paths no longer tracked are removed, in one transaction.
func (c *Catalog) Sync(ctx context.Context, l *ledger.Ledger) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	known := map[string]string{}
	rows, err := tx.QueryContext(ctx, `SELECT path, hash || '|' || title || '|' || category || '|' || summary FROM documents`)
	if err != nil {
		return fmt.Errorf("catalog: list: %w", err)
	}
	for rows.Next() {
		var p, sig string
		if err := rows.Scan(&p, &sig); err != nil {
			rows.Close()
			return err
		}
		known[p] = sig
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (path, title, category, summary, hash, last_processed, approved)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title          = excluded.title,
			category       = excluded.category,
			summary        = excluded.summary,
			hash           = excluded.hash,
			last_processed = excluded.last_processed,
			approved       = excluded.approved
	`)
	if err != nil {
		return fmt.Errorf("catalog: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range l.Paths() {
		e, _ := l.Get(p)
		sig := e.Hash + "|" + e.Title + "|" + e.Category + "|" + e.Summary
		if old, ok := known[p]; ok && old == sig {
			delete(known, p)
			continue
		}
		delete(known, p)
		if _, err := stmt.ExecContext(ctx, p, e.Title, e.Category, e.Summary, e.Hash,
			formatTime(e.LastProcessed.Time), e.SummaryApproved); err != nil {
			return fmt.Errorf("catalog: upsert %s: %w", p, err)
		}
		if err := ftsUpsert(ctx, tx, p, e.Title, e.Summary, e.Category); err != nil {
			return err
		}
	}

	for p := range known {
		ftsDelete(ctx, tx, p)
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, p); err != nil {
			return fmt.Errorf("catalog: delete %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// Get returns the document at path.
func (c *Catalog) Get(ctx context.Context, path string) (*Document, error) {
	row := c.conn.QueryRowContext(ctx, `
		SELECT path, title, category, summary, hash, last_processed, approved
		FROM documents WHERE path = ?`, models.NormalizePath(path))
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get: %w", err)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	var d Document
	var ts string
	if err := s.Scan(&d.Path, &d.Title, &d.Category, &d.Summary, &d.Hash, &ts, &d.Approved); err != nil {
		return nil, err
	}
	d.LastProcessed = parseTime(ts)
	return &d, nil
}

// List returns one page of documents sorted by path, optionally restricted
// to a category, with the total number of matches.
func (c *Catalog) List(ctx context.Context, category string, limit, offset int) ([]Document, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if category != "" {
		where = "WHERE category = ? COLLATE NOCASE"
		args = append(args, category)
	}

	var total int
	if err := c.conn.QueryRowContext(ctx, `SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	rows, err := c.conn.QueryContext(ctx, `
		SELECT path, title, category, summary, hash, last_processed, approved
		FROM documents `+where+` ORDER BY path LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// Categories returns document counts per category, sorted by name.
func (c *Catalog) Categories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT category, count(*) FROM documents GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("catalog: categories: %w", err)
	}
	defer rows.Close()
	out := []CategoryCount{}
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Name, &cc.Count); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// RecordRun stores the history record of one rewrite.
func (c *Catalog) RecordRun(ctx context.Context, run models.ApplyRun) error {
	_, err := c.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO apply_runs (id, kind, at, applied, skipped, backup, sections)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, formatTime(run.At.Time), run.Applied, run.Skipped, run.Backup, run.Sections)
	if err != nil {
		return fmt.Errorf("catalog: record run: %w", err)
	}
	return nil
}

// Runs returns the most recent rewrites, newest first.
func (c *Catalog) Runs(ctx context.Context, limit int) ([]models.ApplyRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.conn.QueryContext(ctx, `
		SELECT id, kind, at, applied, skipped, backup, sections
		FROM apply_runs ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: runs: %w", err)
	}
	defer rows.Close()

	out := []models.ApplyRun{}
	for rows.Next() {
		var r models.ApplyRun
		var at string
		if err := rows.Scan(&r.ID, &r.Kind, &at, &r.Applied, &r.Skipped, &r.Backup, &r.Sections); err != nil {
			return nil, err
		}
		r.At = models.NewTimestamp(parseTime(at))
		out = append(out, r)
	}
	return out, rows.Err()
}
