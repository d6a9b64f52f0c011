package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/htmldoc"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Row is one ledger entry as listed by delete-entry.
type Row struct {
	Path     string
	Category string
	Words    int
	Summary  string
}

// List returns every entry sorted by path.
func List(l *ledger.Ledger) []Row {
	rows := make([]Row, 0, l.Len())
	for _, p := range l.Paths() {
		e := l.Documents[p]
		rows = append(rows, Row{Path: p, Category: e.Category, Words: len(strings.Fields(e.Summary)), Summary: e.Summary})
	}
	return rows
}

// MatchPattern selects entries whose path contains pattern, case-insensitive.
// With wordsOver > 0 only entries with longer summaries match.
func MatchPattern(l *ledger.Ledger, pattern string, wordsOver int) []Row {
	needle := strings.ToLower(pattern)
	var out []Row
	for _, r := range List(l) {
		if !strings.Contains(strings.ToLower(r.Path), needle) {
			continue
		}
		if wordsOver > 0 && r.Words <= wordsOver {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchMissing selects entries listed as missing by the change report.
func MatchMissing(ws *workspace.Workspace, l *ledger.Ledger) ([]Row, error) {
	rep, ok := workflow.LoadReport(ws.Store, workspace.ReportFile, ws.Log)
	if !ok {
		return nil, fmt.Errorf("maintenance: no change report, run scan first: %w", apperr.ErrNoCheckpoint)
	}
	var out []Row
	for _, ref := range rep.MissingFiles {
		e, tracked := l.Get(ref.Path)
		if !tracked {
			continue
		}
		out = append(out, Row{Path: ref.Path, Category: e.Category, Words: len(strings.Fields(e.Summary)), Summary: e.Summary})
	}
	return out, nil
}

// MatchPath selects the single entry at path.
func MatchPath(l *ledger.Ledger, path string) ([]Row, error) {
	e, ok := l.Get(path)
	if !ok {
		return nil, fmt.Errorf("maintenance: %s: %w", models.NormalizePath(path), apperr.ErrNotFound)
	}
	return []Row{{Path: models.NormalizePath(path), Category: e.Category, Words: len(strings.Fields(e.Summary)), Summary: e.Summary}}, nil
}

// DeleteOptions controls Delete.
type DeleteOptions struct {
	// Yes confirms the deletion; without it Delete only reports.
	Yes bool
	// Render rebuilds the document after saving.
	Render Renderer
}

// Delete removes rows from the ledger. Without Yes nothing is written.
func Delete(ctx context.Context, ws *workspace.Workspace, l *ledger.Ledger, rows []Row, opts DeleteOptions) (int, error) {
	if !opts.Yes || len(rows) == 0 {
		return 0, nil
	}
	n := 0
	for _, r := range rows {
		if l.Remove(r.Path) {
			n++
		}
	}
	if opts.Render != nil {
		if _, err := opts.Render.Render(ctx, l); err != nil {
			return n, fmt.Errorf("maintenance: delete: %w", err)
		}
		return n, nil
	}
	var labels []string
	if src, ok := ws.ReadIndex(); ok {
		labels = htmldoc.Parse(src).Labels()
	}
	l.RecomputeCategories(labels...)
	if err := ws.SaveLedger(l); err != nil {
		return n, fmt.Errorf("maintenance: delete: %w", err)
	}
	return n, nil
}
