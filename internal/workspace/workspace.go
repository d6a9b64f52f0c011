// Package workspace describes one document root and the tool-owned files in it.
package workspace

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/storage"
)

// Tool-owned file names, relative to the root.
const (
	DefaultIndexFile = "index.html"
	LedgerFile       = ".dms_state.json"
	ReportFile       = ".dms_scan.json"
	DraftsFile       = ".dms_pending_summaries.json"
	ApprovedFile     = ".dms_pending_approved.json"
	ArchiveDir       = ".dms_archive"
	CatalogFile      = ".dms_catalog.db"
	SidecarDir       = "md_outputs"
)

// BackupLayout is the timestamp suffix of document backups.
const BackupLayout = "20060102150405"

// Workspace is threaded explicitly through every stage.
type Workspace struct {
	Store              storage.Provider
	IndexFile          string
	ArchiveCheckpoints bool
	Filter             storage.Filter
	Log                *slog.Logger

	now func() time.Time
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithIndexFile overrides the rendered document name.
func WithIndexFile(name string) Option {
	return func(w *Workspace) {
		if name != "" {
			w.IndexFile = name
		}
	}
}

// WithArchive keeps discarded checkpoints under ArchiveDir.
func WithArchive(on bool) Option {
	return func(w *Workspace) { w.ArchiveCheckpoints = on }
}

// WithFilter sets the scan filter. Tool-owned names are always appended.
func WithFilter(f storage.Filter) Option {
	return func(w *Workspace) { w.Filter = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.Log = l }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// Open roots a workspace at dir.
func Open(dir string, opts ...Option) (*Workspace, error) {
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return New(store, opts...), nil
}

// New wraps an existing provider.
func New(store storage.Provider, opts ...Option) *Workspace {
	w := &Workspace{
		Store:     store,
		IndexFile: DefaultIndexFile,
		Log:       slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	w.Filter.Reserved = append(w.Filter.Reserved, w.reserved()...)
	w.Filter.Exclude = append(w.Filter.Exclude, w.IndexFile+".bak.*")
	return w
}

func (w *Workspace) reserved() []string {
	return []string{w.IndexFile, LedgerFile, ReportFile, DraftsFile, ApprovedFile, ArchiveDir, CatalogFile,
		CatalogFile + "-wal", CatalogFile + "-shm", CatalogFile + "-journal"}
}

// Root returns the absolute root directory.
func (w *Workspace) Root() string { return w.Store.Root() }

// Abs returns the absolute path of a root-relative name.
func (w *Workspace) Abs(name string) string {
	return filepath.Join(w.Store.Root(), filepath.FromSlash(name))
}

// Now returns the workspace clock reading.
func (w *Workspace) Now() time.Time { return w.now() }

// LoadLedger reads the ledger, degrading to empty on damage.
func (w *Workspace) LoadLedger() *ledger.Ledger {
	return ledger.Load(w.Store, LedgerFile, w.Log)
}

// SaveLedger persists the ledger.
func (w *Workspace) SaveLedger(l *ledger.Ledger) error {
	return ledger.Save(w.Store, LedgerFile, l)
}

// HasLedger reports whether the ledger file exists.
func (w *Workspace) HasLedger() bool { return w.Store.Exists(LedgerFile) }

// ReadIndex returns the rendered document, or nil when absent.
func (w *Workspace) ReadIndex() ([]byte, bool) {
	if !w.Store.Exists(w.IndexFile) {
		return nil, false
	}
	data, err := w.Store.Read(w.IndexFile)
	if err != nil {
		w.Log.Warn("index unreadable", slog.String("file", w.IndexFile), slog.String("error", err.Error()))
		return nil, false
	}
	return data, true
}

// WriteIndex copies the current document to a timestamped backup, then
// atomically replaces it. It returns the backup name, empty when there was
// nothing to back up.
func (w *Workspace) WriteIndex(content []byte) (string, error) {
	var backup string
	if old, ok := w.ReadIndex(); ok {
		backup = w.backupName()
		if err := w.Store.Write(backup, old); err != nil {
			return "", fmt.Errorf("workspace: backup: %w", err)
		}
	}
	if err := w.Store.Write(w.IndexFile, content); err != nil {
		return backup, fmt.Errorf("workspace: write index: %w", err)
	}
	return backup, nil
}

// backupName is <index>.bak.<ts>, with a .N suffix when a backup from the
// same second already exists.
func (w *Workspace) backupName() string {
	base := w.IndexFile + ".bak." + w.now().Format(BackupLayout)
	name := base
	for n := 1; w.Store.Exists(name); n++ {
		name = base + "." + strconv.Itoa(n)
	}
	return name
}

// Discard removes a checkpoint, or moves it under ArchiveDir/<ts>/ when
// archiving is on. Absent checkpoints are ignored.
func (w *Workspace) Discard(name string) error {
	if !w.Store.Exists(name) {
		return nil
	}
	if w.ArchiveCheckpoints {
		dst := ArchiveDir + "/" + w.now().Format(BackupLayout) + "/" + name
		if err := w.Store.Move(name, dst); err != nil {
			return fmt.Errorf("workspace: archive %s: %w", name, err)
		}
		return nil
	}
	if err := w.Store.Delete(name); err != nil {
		return fmt.Errorf("workspace: discard %s: %w", name, err)
	}
	return nil
}
