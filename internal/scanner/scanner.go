// Package scanner compares the files under a document root with the ledger.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/dms/internal/checksum"
	"github.com/starford/dms/internal/extract"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Scan builds a change report. It never mutates the ledger.
func Scan(ctx context.Context, ws *workspace.Workspace, l *ledger.Ledger) (*workflow.ChangeReport, error) {
	paths, err := ws.Store.List("", ws.Filter)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	report := &workflow.ChangeReport{
		Timestamp:    models.NewTimestamp(ws.Now()),
		NewFiles:     []models.FileRef{},
		ChangedFiles: []models.FileRef{},
		MissingFiles: []models.FileRef{},
	}
	owned := extract.Sidecars(paths)
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := owned[models.NormalizePath(p)]; ok {
			// Summarized through its image.
			continue
		}
		ref, err := ws.Store.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				ws.Log.Debug("file vanished during scan", slog.String("path", p))
				continue
			}
			return nil, fmt.Errorf("scanner: %w", err)
		}
		seen[ref.Path] = struct{}{}

		entry, tracked := l.Get(ref.Path)
		switch {
		case !tracked:
			report.NewFiles = append(report.NewFiles, ref)
		case entry.Hash != ref.Hash:
			report.ChangedFiles = append(report.ChangedFiles, ref)
		}
	}

	for _, p := range l.Paths() {
		if _, ok := seen[p]; ok {
			continue
		}
		// Tracked files outside the filter are only missing when gone from disk.
		if ws.Store.Exists(p) {
			continue
		}
		report.MissingFiles = append(report.MissingFiles, models.FileRef{Path: p, Hash: checksum.Missing})
	}
	return report, nil
}

// Run scans ws against its ledger and checkpoints the result. An empty
// report retires any earlier one instead of being written.
func Run(ctx context.Context, ws *workspace.Workspace) (*workflow.ChangeReport, error) {
	report, err := Scan(ctx, ws, ws.LoadLedger())
	if err != nil {
		return nil, err
	}
	if report.Empty() {
		if err := ws.Discard(workspace.ReportFile); err != nil {
			return nil, fmt.Errorf("scanner: %w", err)
		}
		return report, nil
	}
	if err := workflow.SaveReport(ws.Store, workspace.ReportFile, report); err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	ws.Log.Info("scan complete",
		slog.Int("new", len(report.NewFiles)),
		slog.Int("changed", len(report.ChangedFiles)),
		slog.Int("missing", len(report.MissingFiles)))
	return report, nil
}
