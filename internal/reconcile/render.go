package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/htmldoc"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
)

// Render rebuilds every category section from the ledger, keeping the rest
// of the document, and saves the ledger. Empty categories known to the
// ledger keep an empty section. Existing sections keep their order; new
// ones follow sorted by label.
func (r *Reconciler) Render(ctx context.Context, l *ledger.Ledger) (*Report, error) {
	src, ok := r.ws.ReadIndex()
	if !ok {
		src = []byte(DefaultShell)
	}
	content, err := Rebuild(src, l, r.ws.Store.Exists)
	if err != nil {
		return nil, err
	}
	now := models.NewTimestamp(r.ws.Now())
	rep := &Report{RunID: r.newID()}
	l.Metadata.LastRunID = rep.RunID
	if err := r.write(ctx, content, l, rep); err != nil {
		return nil, err
	}
	r.record(ctx, l, rep, "render", now)
	return rep, nil
}

// Rebuild is the pure core of Render.
func Rebuild(src []byte, l *ledger.Ledger, exists func(string) bool) ([]byte, error) {
	doc := htmldoc.Parse(src)

	var anchor int
	if at, ok := doc.Container(); ok {
		anchor = htmldoc.BlockStart(src, at)
	} else if len(doc.Sections) > 0 {
		anchor = htmldoc.BlockStart(src, doc.Sections[0].Start)
	} else {
		return nil, fmt.Errorf("reconcile: render: %w", apperr.ErrNoAnchor)
	}

	var edits []htmldoc.Edit

	covered := -1
	for _, s := range doc.Sections {
		if s.Start < covered {
			continue
		}
		edits = append(edits, htmldoc.Edit{Start: htmldoc.BlockStart(src, s.Start), End: s.End})
		covered = s.End
	}

	var b strings.Builder
	byCat := l.ByCategory()
	for _, label := range renderOrder(doc, l) {
		var vs []entryView
		for _, p := range byCat[label] {
			e := l.Documents[p]
			vs = append(vs, entryView{Path: p, Title: e.Title, Summary: e.Summary, Category: label, PDF: pdfLink(p, exists)})
		}
		b.WriteString(sectionHTML(label, vs))
	}
	edits = append(edits, htmldoc.Edit{Start: anchor, End: anchor, Text: b.String()})

	out, err := htmldoc.Splice(src, edits)
	if err != nil {
		return nil, fmt.Errorf("reconcile: render: %w", err)
	}
	return out, nil
}

func renderOrder(doc *htmldoc.Document, l *ledger.Ledger) []string {
	want := map[string]bool{}
	for _, c := range l.Categories {
		want[c] = true
	}
	for _, e := range l.Documents {
		if e.Category != "" {
			want[e.Category] = true
		}
	}
	var order []string
	for _, label := range doc.Labels() {
		if want[label] {
			order = append(order, label)
			delete(want, label)
		}
	}
	rest := make([]string, 0, len(want))
	for c := range want {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	return append(order, rest...)
}
