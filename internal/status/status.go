// Package status reports the state of a document root: what the ledger
// tracks, what the checkpoints hold and which stage should run next.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// CategoryStat counts the documents of one category.
type CategoryStat struct {
	Name          string `json:"name"`
	Documents     int    `json:"documents"`
	WithSummaries int    `json:"with_summaries"`
}

// Pending counts the work held in checkpoints.
type Pending struct {
	New      int `json:"new"`
	Changed  int `json:"changed"`
	Missing  int `json:"missing"`
	Drafts   int `json:"drafts"`
	Approved int `json:"approved"`
}

// Report is the status of one document root.
type Report struct {
	Root          string         `json:"root"`
	IndexPresent  bool           `json:"index_present"`
	LedgerPresent bool           `json:"ledger_present"`
	Documents     int            `json:"documents"`
	WithSummaries int            `json:"with_summaries"`
	Coverage      float64        `json:"coverage"`
	Categories    []CategoryStat `json:"categories"`
	LastScan      *time.Time     `json:"last_scan"`
	LastApply     *time.Time     `json:"last_apply"`
	Migrated      bool           `json:"migrated_from_embedded"`
	MigrationDate *time.Time     `json:"migration_date,omitempty"`
	Bootstrap     string         `json:"bootstrap_version,omitempty"`
	LastRunID     string         `json:"last_run_id,omitempty"`
	Pending       Pending        `json:"pending"`
	State         string         `json:"state"`
	Next          string         `json:"next"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Build gathers the report for ws.
func Build(ws *workspace.Workspace) *Report {
	l := ws.LoadLedger()
	_, hasIndex := ws.ReadIndex()
	r := &Report{
		Root:          ws.Root(),
		IndexPresent:  hasIndex,
		LedgerPresent: ws.HasLedger(),
		Documents:     l.Len(),
		LastScan:      timePtr(l.Metadata.LastScan.Time),
		LastApply:     timePtr(l.Metadata.LastApply.Time),
		Migrated:      l.Metadata.MigratedFromEmbedded,
		MigrationDate: timePtr(l.Metadata.MigrationDate.Time),
		Bootstrap:     l.Metadata.BootstrapVersion,
		LastRunID:     l.Metadata.LastRunID,
	}
	r.Categories, r.WithSummaries = categories(l)
	if r.Documents > 0 {
		r.Coverage = float64(r.WithSummaries) / float64(r.Documents)
	}

	if rep, ok := workflow.LoadReport(ws.Store, workspace.ReportFile, ws.Log); ok {
		r.Pending.New = len(rep.NewFiles)
		r.Pending.Changed = len(rep.ChangedFiles)
		r.Pending.Missing = len(rep.MissingFiles)
	}
	drafts, _ := workflow.LoadPending(ws.Store, workspace.DraftsFile, ws.Log)
	approved, _ := workflow.LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	r.Pending.Drafts = drafts.Len()
	r.Pending.Approved = approved.Len()

	state := workflow.Detect(ws, l)
	r.State = state.String()
	r.Next = state.Next()
	if state == workflow.Scanned && r.Pending.New+r.Pending.Changed == 0 && r.Pending.Missing > 0 {
		r.Next = "run cleanup to prune entries for missing files"
	}
	return r
}

func categories(l *ledger.Ledger) ([]CategoryStat, int) {
	stats := map[string]*CategoryStat{}
	total := 0
	for _, p := range l.Paths() {
		e, _ := l.Get(p)
		name := e.Category
		if name == "" {
			name = "(uncategorized)"
		}
		s := stats[name]
		if s == nil {
			s = &CategoryStat{Name: name}
			stats[name] = s
		}
		s.Documents++
		if strings.TrimSpace(e.Summary) != "" {
			s.WithSummaries++
			total++
		}
	}
	out := make([]CategoryStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Documents != out[j].Documents {
			return out[i].Documents > out[j].Documents
		}
		return out[i].Name < out[j].Name
	})
	return out, total
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(18)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
)

func stamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// WriteText writes r for a terminal.
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	b.WriteString(titleStyle.Render("DMS status") + "\n")
	line("root", r.Root)
	if !r.IndexPresent {
		line("index", warnStyle.Render("missing"))
	}
	if !r.LedgerPresent {
		line("ledger", warnStyle.Render("missing, run bootstrap or migrate"))
	}
	line("documents", fmt.Sprintf("%d", r.Documents))
	line("summaries", fmt.Sprintf("%d (%.0f%%)", r.WithSummaries, r.Coverage*100))
	line("last scan", stamp(r.LastScan))
	line("last apply", stamp(r.LastApply))
	if r.Migrated {
		line("migrated", "from embedded state on "+stamp(r.MigrationDate))
	}
	if r.Bootstrap != "" {
		line("bootstrap", r.Bootstrap)
	}

	if len(r.Categories) > 0 {
		b.WriteString("\n" + titleStyle.Render("Categories") + "\n")
		for _, c := range r.Categories {
			line(c.Name, fmt.Sprintf("%d (%d summarized)", c.Documents, c.WithSummaries))
		}
	}

	b.WriteString("\n" + titleStyle.Render("Workflow") + "\n")
	p := r.Pending
	if p.New+p.Changed+p.Missing > 0 {
		line("change report", fmt.Sprintf("%d new, %d changed, %d missing", p.New, p.Changed, p.Missing))
	}
	if p.Drafts > 0 {
		line("drafts", fmt.Sprintf("%d", p.Drafts))
	}
	if p.Approved > 0 {
		line("approved", fmt.Sprintf("%d", p.Approved))
	}
	line("state", okStyle.Render(r.State))
	line("next", r.Next)

	_, err := io.WriteString(w, b.String())
	return err
}
