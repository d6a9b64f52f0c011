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

// BootstrapResult describes a reconstructed ledger.
type BootstrapResult struct {
	Documents int
	Missing   []string
	Backup    string
}

// Bootstrap reconstructs a ledger from the entry blocks of a document that
// has neither a ledger nor a snapshot, then embeds the snapshot.
func Bootstrap(ws *workspace.Workspace) (*BootstrapResult, error) {
	if ws.HasLedger() {
		return nil, fmt.Errorf("maintenance: bootstrap: %s exists: %w", workspace.LedgerFile, apperr.ErrAlreadyExists)
	}
	src, ok := ws.ReadIndex()
	if !ok {
		return nil, fmt.Errorf("maintenance: bootstrap: %s: %w", ws.IndexFile, apperr.ErrNotFound)
	}
	doc := htmldoc.Parse(src)
	if doc.Snapshot != nil {
		return nil, fmt.Errorf("maintenance: bootstrap: snapshot already embedded, run migrate: %w", apperr.ErrAlreadyExists)
	}

	now := models.NewTimestamp(ws.Now())
	l := ledger.New()
	res := &BootstrapResult{}
	track := func(path, title, summary, category string) {
		ref, err := ws.Store.Stat(path)
		if err != nil {
			res.Missing = append(res.Missing, ref.Path)
		}
		if title == "" {
			title = models.Stem(path)
		}
		l.Merge(path, models.Entry{
			Hash: ref.Hash, Category: category, Summary: summary, Title: title,
			LastProcessed: now, SummaryApproved: true,
		})
	}
	for _, e := range doc.Entries {
		p := models.NormalizePath(e.Path)
		if p == "" {
			continue
		}
		category := MigrationCategory
		if e.Section != nil && e.Section.Label() != "" {
			category = e.Section.Label()
		}
		track(p, e.Title, e.Desc, category)

		pdf := models.NormalizePath(e.PDF)
		if pdf == "" || pdf == p {
			continue
		}
		if _, tracked := l.Get(pdf); !tracked && ws.Store.Exists(pdf) {
			track(pdf, e.Title, "", category)
		}
	}
	l.RecomputeCategories(doc.Labels()...)
	l.Metadata.LastScan = now
	l.Metadata.BootstrapVersion = BootstrapVersion

	snap, err := ledger.EncodeSnapshot(l)
	if err != nil {
		return nil, err
	}
	out, err := htmldoc.EmbedSnapshot(src, snap)
	if err != nil {
		return nil, fmt.Errorf("maintenance: bootstrap: %w", err)
	}
	backup, err := ws.WriteIndex(out)
	if err != nil {
		return nil, fmt.Errorf("maintenance: bootstrap: %w", err)
	}
	if err := ws.SaveLedger(l); err != nil {
		return nil, fmt.Errorf("maintenance: bootstrap: %w", err)
	}
	res.Documents = l.Len()
	res.Backup = backup
	ws.Log.Info("bootstrapped ledger from index", slog.Int("documents", res.Documents), slog.Int("missing", len(res.Missing)))
	return res, nil
}
