package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/dms/internal/checksum"
	"github.com/starford/dms/internal/htmldoc"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Catalog receives the ledger after every rewrite. Failures are logged and
// never undo a written document.
type Catalog interface {
	Sync(ctx context.Context, l *ledger.Ledger) error
	RecordRun(ctx context.Context, run models.ApplyRun) error
}

// Reconciler writes the ledger into the rendered document.
type Reconciler struct {
	ws              *workspace.Workspace
	defaultCategory string
	catalog         Catalog
	newID           func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDefaultCategory sets the category for items that carry none.
func WithDefaultCategory(c string) Option {
	return func(r *Reconciler) {
		if c != "" {
			r.defaultCategory = c
		}
	}
}

// WithCatalog syncs the search catalog after each rewrite.
func WithCatalog(c Catalog) Option {
	return func(r *Reconciler) { r.catalog = c }
}

// WithRunID overrides run id generation, for tests.
func WithRunID(f func() string) Option {
	return func(r *Reconciler) { r.newID = f }
}

// New creates a Reconciler for ws.
func New(ws *workspace.Workspace, opts ...Option) *Reconciler {
	r := &Reconciler{ws: ws, defaultCategory: DefaultCategory, newID: uuid.NewString}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Report summarises one rewrite.
type Report struct {
	RunID    string
	Placed   []Placement
	Skipped  []Skipped
	Invalid  []workflow.PendingSummary
	Backup   string
	Sections int
}

// Apply merges approved items into the document and the ledger, then
// retires the checkpoints. Items of skipped categories stay approved.
func (r *Reconciler) Apply(ctx context.Context, items []workflow.PendingSummary) (*Report, error) {
	log := r.ws.Log
	l := r.ws.LoadLedger()
	src, ok := r.ws.ReadIndex()
	if !ok {
		log.Info("no index found, starting from default shell", slog.String("file", r.ws.IndexFile))
		src = []byte(DefaultShell)
	}

	res, err := Merge(src, items, MergeOptions{DefaultCategory: r.defaultCategory, Exists: r.ws.Store.Exists})
	if err != nil {
		return nil, err
	}
	for _, it := range res.Invalid {
		log.Warn("approved item without path ignored", slog.String("title", it.Title))
	}
	for _, s := range res.Skipped {
		log.Warn("category skipped", slog.String("category", s.Category), slog.Int("items", len(s.Items)), slog.String("reason", s.Reason))
	}

	now := models.NewTimestamp(r.ws.Now())
	for _, p := range res.Placed {
		if prev, ok := l.Merge(p.Item.File.Path, r.entry(p, now)); ok {
			log.Debug("entry updated", slog.String("path", p.Item.File.Path),
				slog.String("previous_hash", prev.Hash), slog.String("previous_category", prev.Category))
		}
	}
	if rep, ok := workflow.LoadReport(r.ws.Store, workspace.ReportFile, log); ok {
		l.Metadata.LastScan = rep.Timestamp
	}
	l.Metadata.LastApply = now

	rep := &Report{RunID: r.newID(), Placed: res.Placed, Skipped: res.Skipped, Invalid: res.Invalid}
	l.Metadata.LastRunID = rep.RunID
	if err := r.write(ctx, res.Content, l, rep); err != nil {
		return nil, err
	}

	if err := r.retire(res.Skipped); err != nil {
		return rep, err
	}
	r.record(ctx, l, rep, "apply", now)
	return rep, nil
}

func (r *Reconciler) entry(p Placement, now models.Timestamp) models.Entry {
	hash := p.Item.File.Hash
	ref, err := r.ws.Store.Stat(p.Item.File.Path)
	switch {
	case err == nil:
		hash = ref.Hash
	case errors.Is(err, fs.ErrNotExist):
		r.ws.Log.Warn("applied file missing on disk", slog.String("path", p.Item.File.Path))
		hash = checksum.Missing
	default:
		r.ws.Log.Warn("rehash failed, keeping scanned hash", slog.String("path", p.Item.File.Path), slog.String("error", err.Error()))
	}
	title := p.Item.Title
	if title == "" {
		title = models.Stem(p.Item.File.Path)
	}
	processed := p.Item.Timestamp
	if processed.IsZero() {
		processed = now
	}
	return models.Entry{
		Hash:            hash,
		Category:        p.Category,
		Summary:         p.Item.Summary,
		Title:           title,
		LastProcessed:   processed,
		SummaryApproved: true,
	}
}

// write recomputes categories from the final document, embeds the snapshot,
// backs up and replaces the document, then saves the ledger.
func (r *Reconciler) write(ctx context.Context, content []byte, l *ledger.Ledger, rep *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := htmldoc.Parse(content)
	l.RecomputeCategories(doc.Labels()...)
	rep.Sections = len(doc.Sections)

	snap, err := ledger.EncodeSnapshot(l)
	if err != nil {
		return err
	}
	content, err = htmldoc.EmbedSnapshot(content, snap)
	if err != nil {
		return fmt.Errorf("reconcile: embed snapshot: %w", err)
	}
	backup, err := r.ws.WriteIndex(content)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	rep.Backup = backup
	if err := r.ws.SaveLedger(l); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	r.ws.Log.Info("index written",
		slog.String("file", r.ws.IndexFile),
		slog.String("backup", backup),
		slog.Int("documents", l.Len()),
		slog.Int("sections", rep.Sections),
	)
	return nil
}

func (r *Reconciler) retire(skipped []Skipped) error {
	if len(skipped) > 0 {
		keep := &workflow.PendingSet{Timestamp: models.NewTimestamp(r.ws.Now())}
		for _, s := range skipped {
			keep.Summaries = append(keep.Summaries, s.Items...)
		}
		if err := workflow.SavePending(r.ws.Store, workspace.ApprovedFile, keep); err != nil {
			return fmt.Errorf("reconcile: keep skipped items: %w", err)
		}
	} else if err := r.ws.Discard(workspace.ApprovedFile); err != nil {
		return err
	}
	for _, name := range []string{workspace.DraftsFile, workspace.ReportFile} {
		if err := r.ws.Discard(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) record(ctx context.Context, l *ledger.Ledger, rep *Report, kind string, at models.Timestamp) {
	if r.catalog == nil {
		return
	}
	if err := r.catalog.Sync(ctx, l); err != nil {
		r.ws.Log.Warn("catalog sync failed", slog.String("error", err.Error()))
	}
	skipped := 0
	for _, s := range rep.Skipped {
		skipped += len(s.Items)
	}
	run := models.ApplyRun{
		ID: rep.RunID, Kind: kind, At: at, Applied: len(rep.Placed),
		Skipped: skipped, Backup: rep.Backup, Sections: rep.Sections,
	}
	if err := r.catalog.RecordRun(ctx, run); err != nil {
		r.ws.Log.Warn("recording run failed", slog.String("error", err.Error()))
	}
}
