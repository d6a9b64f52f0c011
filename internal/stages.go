package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/starford/dms/internal/catalog"
	"github.com/starford/dms/internal/docservice"
	"github.com/starford/dms/internal/maintenance"
	"github.com/starford/dms/internal/metrics"
	"github.com/starford/dms/internal/ocr"
	"github.com/starford/dms/internal/ollama"
	"github.com/starford/dms/internal/reconcile"
	"github.com/starford/dms/internal/resilience"
	"github.com/starford/dms/internal/review"
	"github.com/starford/dms/internal/scanner"
	"github.com/starford/dms/internal/status"
	"github.com/starford/dms/internal/summarize"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// App runs the pipeline stages against one document root. Each stage loads
// what it needs from disk and persists its checkpoint before returning, so
// stages may run in separate processes.
type App struct {
	cfg     *Config
	ws      *workspace.Workspace
	log     *slog.Logger
	out     io.Writer
	watch   bool
	version string
	metrics *metrics.Metrics
}

// New builds an App from options. A config is required.
func New(opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config
	if app.root != "" {
		cfg.Root.Path = app.root
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.logger == nil {
		app.logger = newLogger(cfg.App, os.Stderr)
	}
	if app.version == "" {
		app.version = "dev"
	}

	ws, err := workspace.Open(cfg.Root.Path,
		workspace.WithIndexFile(cfg.Root.IndexFile),
		workspace.WithArchive(cfg.Root.ArchiveCheckpoints),
		workspace.WithFilter(cfg.Scan.Filter()),
		workspace.WithLogger(app.logger),
	)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, ws: ws, log: app.logger, out: app.out, watch: app.watch, version: app.version, metrics: metrics.New()}, nil
}

func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// Workspace returns the document root the App operates on.
func (a *App) Workspace() *workspace.Workspace { return a.ws }

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *App) catalogPath() string {
	if a.cfg.Catalog.Path != "" {
		return a.cfg.Catalog.Path
	}
	return a.ws.Abs(workspace.CatalogFile)
}

func (a *App) openCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Open(a.catalogPath())
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	return cat, nil
}

// reconciler wires the catalog when enabled. A catalog that fails to open
// only costs search freshness, so it is logged and skipped.
func (a *App) reconciler() (*reconcile.Reconciler, func()) {
	opts := []reconcile.Option{reconcile.WithDefaultCategory(a.cfg.Categories.Default)}
	closer := func() {}
	if a.cfg.Catalog.Enabled {
		cat, err := a.openCatalog()
		if err != nil {
			a.log.Warn("catalog unavailable", slog.String("error", err.Error()))
		} else {
			opts = append(opts, reconcile.WithCatalog(cat))
			closer = func() { _ = cat.Close() }
		}
	}
	return reconcile.New(a.ws, opts...), closer
}

// Scan compares the root against the ledger and writes the change report.
func (a *App) Scan(ctx context.Context) (*workflow.ChangeReport, error) {
	rep, err := scanner.Run(ctx, a.ws)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveScan(rep)
	a.printf("Scan: %d new, %d changed, %d missing\n", len(rep.NewFiles), len(rep.ChangedFiles), len(rep.MissingFiles))
	if rep.Empty() {
		a.printf("Nothing to do.\n")
	} else {
		a.printf("Next: %s\n", workflow.Detect(a.ws, a.ws.LoadLedger()).Next())
	}
	return rep, nil
}

// OCR writes text sidecars for the images under the root.
func (a *App) OCR(ctx context.Context, force bool) error {
	r := ocr.New(a.ws, a.cfg.OCR.Runner())
	if err := r.Available(); err != nil {
		return err
	}
	images, err := r.Targets()
	if err != nil {
		return err
	}
	if len(images) == 0 {
		a.printf("No images found.\n")
		return nil
	}
	res, err := r.Run(ctx, images, force)
	if res != nil {
		a.printf("OCR: %d written, %d already done, %d failed\n", len(res.Written), len(res.Skipped), len(res.Failed))
		for _, f := range res.Failed {
			a.printf("  failed: %s\n", f)
		}
	}
	if err != nil {
		return err
	}
	if len(res.Written) > 0 {
		a.printf("Run scan to pick up the new sidecars.\n")
	}
	return nil
}

// SummarizeOptions tunes one summarize run.
type SummarizeOptions struct {
	DryRun bool
	// Model overrides the configured model.
	Model string
}

// Summarize drafts summaries for the pending files of the change report.
func (a *App) Summarize(ctx context.Context, opts SummarizeOptions) error {
	report, err := workflow.ForSummarize(a.ws, a.ws.LoadLedger())
	if err != nil {
		return err
	}

	ccfg := a.cfg.Summarizer.Client()
	if opts.Model != "" {
		ccfg.Model = opts.Model
	}
	exec := resilience.NewExecutor(a.cfg.Summarizer.Resilience(), a.log)
	client := ollama.New(ccfg, exec, a.log)
	a.printf("Using model: %s\n", client.Model())

	s := summarize.New(a.ws, client, summarize.Options{
		MaxWords:    a.cfg.Summarizer.MaxWords,
		MaxChars:    a.cfg.Summarizer.MaxInputChars,
		DryRun:      opts.DryRun,
		Categorizer: a.cfg.Categories.Categorizer(),
		Observer:    a.metrics,
	})
	res, err := s.Run(ctx, report)
	if res != nil {
		a.printf("Summarize: %d pending, %d already drafted, %d generated, %d missing, %d failed\n",
			res.Total, res.Resumed, len(res.Generated), len(res.Missing), len(res.Failed))
		if opts.DryRun {
			for _, g := range res.Generated {
				a.printf("\n%s [%s]\n  %s\n", g.File.Path, g.Category, g.Summary)
			}
			a.printf("\nDry run, nothing saved.\n")
		}
	}
	if err != nil {
		return err
	}
	if !opts.DryRun && res.Total > 0 {
		a.printf("Next: review\n")
	}
	return nil
}

// ReviewOptions selects between the interactive screen and a scripted review.
type ReviewOptions struct {
	Interactive bool
	review.Options
}

// Review moves drafts to the approved checkpoint.
func (a *App) Review(_ context.Context, opts ReviewOptions) error {
	s, err := review.Open(a.ws)
	if err != nil {
		return err
	}
	if opts.Interactive {
		if err := review.Run(s); err != nil {
			return err
		}
		a.printf("Review: %d approved, %d rejected, %d left\n", s.Approved(), s.Rejected(), len(s.Drafts()))
		return nil
	}
	res, err := s.Apply(opts.Options)
	if err != nil {
		return err
	}
	a.printf("Review: %d approved, %d rejected, %d left\n", res.Approved, res.Rejected, res.Remaining)
	return nil
}

// Apply merges the approved summaries into the document and the ledger.
func (a *App) Apply(ctx context.Context) (*reconcile.Report, error) {
	set, err := workflow.ForApply(a.ws)
	if err != nil {
		return nil, err
	}
	rec, done := a.reconciler()
	defer done()

	rep, err := rec.Apply(ctx, set.Summaries)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveRun("apply", len(rep.Placed), len(rep.Skipped))
	a.printf("Apply: %d placed, %d sections\n", len(rep.Placed), rep.Sections)
	for _, p := range rep.Placed {
		mark := ""
		if p.Created {
			mark = " (new section)"
		}
		a.printf("  %s -> %s%s\n", p.Item.File.Path, p.Category, mark)
	}
	for _, s := range rep.Skipped {
		a.printf("  skipped %s (%d items): %s\n", s.Category, len(s.Items), s.Reason)
	}
	if rep.Backup != "" {
		a.printf("Backup: %s\n", rep.Backup)
	}
	a.printf("Run: %s\n", rep.RunID)
	return rep, nil
}

// Render rebuilds the document from the ledger alone.
func (a *App) Render(ctx context.Context) (*reconcile.Report, error) {
	rec, done := a.reconciler()
	defer done()
	rep, err := rec.Render(ctx, a.ws.LoadLedger())
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveRun("render", len(rep.Placed), len(rep.Skipped))
	a.printf("Render: %d sections\n", rep.Sections)
	return rep, nil
}

// Cleanup prunes entries whose file vanished and re-renders.
func (a *App) Cleanup(ctx context.Context) error {
	rec, done := a.reconciler()
	defer done()
	res, err := maintenance.Cleanup(ctx, a.ws, rec)
	if err != nil {
		return err
	}
	if len(res.Removed) == 0 {
		a.printf("Cleanup: nothing to remove.\n")
		return nil
	}
	a.printf("Cleanup: %d removed\n", len(res.Removed))
	for _, r := range res.Removed {
		a.printf("  %s (%s)\n", r.Path, r.Category)
	}
	return nil
}

// Migrate converts an embedded-only layout into a ledger file.
func (a *App) Migrate(_ context.Context, force bool) error {
	res, err := maintenance.Migrate(a.ws, force)
	if err != nil {
		return err
	}
	src := "document sections"
	if res.Legacy {
		src = "embedded snapshot"
	}
	a.printf("Migrate: %d documents (%d with summaries) from %s\n", res.Documents, res.WithSummaries, src)
	a.printf("Categories: %s\n", strings.Join(res.Categories, ", "))
	return nil
}

// Bootstrap reconstructs a ledger from a document's entry blocks.
func (a *App) Bootstrap(_ context.Context) error {
	res, err := maintenance.Bootstrap(a.ws)
	if err != nil {
		return err
	}
	a.printf("Bootstrap: %d documents\n", res.Documents)
	for _, m := range res.Missing {
		a.printf("  missing: %s\n", m)
	}
	if res.Backup != "" {
		a.printf("Backup: %s\n", res.Backup)
	}
	return nil
}

// Status prints the workflow status, as JSON when asJSON is set.
func (a *App) Status(_ context.Context, asJSON bool) error {
	rep := status.Build(a.ws)
	if asJSON {
		return status.WriteJSON(a.out, rep)
	}
	return status.WriteText(a.out, rep)
}

// Delete-entry selection modes.
const (
	DeleteList    = "list"
	DeletePath    = "path"
	DeletePattern = "pattern"
	DeleteMissing = "missing"
)

// DeleteOptions selects entries for DeleteEntry.
type DeleteOptions struct {
	Mode      string
	Target    string
	WordsOver int
	Yes       bool
	Render    bool
}

// DeleteEntry lists or removes ledger entries. Without Yes it only lists.
func (a *App) DeleteEntry(ctx context.Context, opts DeleteOptions) error {
	l := a.ws.LoadLedger()
	var (
		rows []maintenance.Row
		err  error
	)
	switch opts.Mode {
	case DeleteList, "":
		rows = maintenance.List(l)
		opts.Yes = false
	case DeletePath:
		rows, err = maintenance.MatchPath(l, opts.Target)
	case DeletePattern:
		rows = maintenance.MatchPattern(l, opts.Target, opts.WordsOver)
	case DeleteMissing:
		rows, err = maintenance.MatchMissing(a.ws, l)
	default:
		return fmt.Errorf("delete-entry: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.printf("No matching entries.\n")
		return nil
	}
	a.printf("%s\n", rowsTable(rows))

	if !opts.Yes {
		if opts.Mode != DeleteList && opts.Mode != "" {
			a.printf("%d entries match, pass --yes to delete.\n", len(rows))
		}
		return nil
	}
	dopts := maintenance.DeleteOptions{Yes: true}
	if opts.Render {
		rec, done := a.reconciler()
		defer done()
		dopts.Render = rec
	}
	n, err := maintenance.Delete(ctx, a.ws, l, rows, dopts)
	if err != nil {
		return err
	}
	a.printf("Deleted %d entries.\n", n)
	if !opts.Render {
		a.printf("Run render (or delete with --render) to update %s.\n", a.ws.IndexFile)
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func rowsTable(rows []maintenance.Row) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("PATH", "CATEGORY", "WORDS", "SUMMARY")
	for _, r := range rows {
		t.Row(r.Path, r.Category, strconv.Itoa(r.Words), clip(r.Summary, 60))
	}
	return t.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Search queries the catalog after refreshing it from the ledger.
func (a *App) Search(ctx context.Context, query string, limit int, asJSON bool) error {
	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	svc := docservice.New(a.ws, cat)
	if err := svc.Refresh(ctx); err != nil {
		return err
	}
	hits, err := svc.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		a.printf("No results for %q.\n", query)
		return nil
	}
	for _, h := range hits {
		a.printf("%s [%s]\n  %s\n", h.Path, h.Category, h.Snippet)
	}
	return nil
}
