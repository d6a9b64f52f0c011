// Package maintenance implements the repair and housekeeping operations:
// cleanup, migration, bootstrap and entry deletion.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/reconcile"
	"github.com/starford/dms/internal/workspace"
)

// Renderer rebuilds the document from a ledger and saves both.
type Renderer interface {
	Render(ctx context.Context, l *ledger.Ledger) (*reconcile.Report, error)
}

// CleanupResult lists the entries pruned by Cleanup.
type CleanupResult struct {
	Removed  []Removed
	Rendered *reconcile.Report
}

// Removed is one pruned entry.
type Removed struct {
	Path     string
	Category string
}

// Cleanup drops ledger entries whose file no longer exists and re-renders
// the document. Nothing is written when nothing vanished.
func Cleanup(ctx context.Context, ws *workspace.Workspace, r Renderer) (*CleanupResult, error) {
	l := ws.LoadLedger()
	res := &CleanupResult{}
	for _, p := range l.Paths() {
		if ws.Store.Exists(p) {
			continue
		}
		e, _ := l.Get(p)
		l.Remove(p)
		res.Removed = append(res.Removed, Removed{Path: p, Category: e.Category})
		ws.Log.Info("pruned vanished file", slog.String("path", p), slog.String("category", e.Category))
	}
	if len(res.Removed) == 0 {
		return res, nil
	}
	rep, err := r.Render(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("maintenance: cleanup: %w", err)
	}
	res.Rendered = rep
	return res, nil
}
