package maintenance

import (
	"fmt"
	"log/slog"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/htmldoc"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workspace"
)

// MigrationCategory is assigned to entries found in no section.
const MigrationCategory = "Junk"

// BootstrapVersion is recorded by Bootstrap.
const BootstrapVersion = "1.0"

// MigrateResult describes a completed migration.
type MigrateResult struct {
	Documents     int
	WithSummaries int
	Categories    []string
	Legacy        bool
}

// Migrate converts an embedded-only layout into a ledger file. Categories
// come from the sections that actually hold each entry.
func Migrate(ws *workspace.Workspace, force bool) (*MigrateResult, error) {
	if ws.HasLedger() && !force {
		return nil, fmt.Errorf("maintenance: migrate: %s exists, use --force to overwrite: %w", workspace.LedgerFile, apperr.ErrAlreadyExists)
	}
	src, ok := ws.ReadIndex()
	if !ok {
		return nil, fmt.Errorf("maintenance: migrate: %s: %w", ws.IndexFile, apperr.ErrNotFound)
	}
	doc := htmldoc.Parse(src)
	if doc.Snapshot == nil {
		return nil, fmt.Errorf("maintenance: migrate: no embedded snapshot in %s: %w", ws.IndexFile, apperr.ErrNotFound)
	}
	old, legacy, err := ledger.DecodeSnapshot(doc.Snapshot.Payload)
	if err != nil {
		return nil, fmt.Errorf("maintenance: migrate: %w", err)
	}

	placed := sectionOf(doc)
	now := models.NewTimestamp(ws.Now())
	l := ledger.New()
	res := &MigrateResult{Legacy: legacy}
	for _, p := range old.Paths() {
		e := old.Documents[p]
		if c, ok := placed[p]; ok {
			e.Category = c
		} else {
			e.Category = MigrationCategory
		}
		if e.Title == "" {
			e.Title = models.Stem(p)
		}
		if e.LastProcessed.IsZero() {
			e.LastProcessed = now
		}
		if e.Summary != "" {
			res.WithSummaries++
		}
		l.Merge(p, e)
	}
	l.RecomputeCategories(doc.Labels()...)
	l.Metadata = old.Metadata
	if l.Metadata.LastScan.IsZero() {
		l.Metadata.LastScan = now
	}
	l.Metadata.LastApply = now
	l.Metadata.MigratedFromEmbedded = true
	l.Metadata.MigrationDate = now

	if err := ws.SaveLedger(l); err != nil {
		return nil, fmt.Errorf("maintenance: migrate: %w", err)
	}
	res.Documents = l.Len()
	res.Categories = l.Categories
	ws.Log.Info("migrated embedded snapshot",
		slog.Int("documents", res.Documents),
		slog.Int("categories", len(res.Categories)),
		slog.Bool("legacy", legacy),
	)
	return res, nil
}

// sectionOf maps each entry path to the label of its enclosing section.
func sectionOf(doc *htmldoc.Document) map[string]string {
	out := map[string]string{}
	for _, s := range doc.Sections {
		for _, e := range s.Entries {
			p := models.NormalizePath(e.Path)
			if _, seen := out[p]; !seen && p != "" {
				out[p] = s.Label()
			}
		}
	}
	return out
}
