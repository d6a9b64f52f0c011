// Package reconcile merges approved ledger entries into the rendered index.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/starford/dms/internal/htmldoc"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
)

// DefaultCategory receives items that carry no category.
const DefaultCategory = "Guides"

// MergeOptions tunes Merge.
type MergeOptions struct {
	DefaultCategory string
	// Exists resolves data-pdf links; nil disables sidecar lookup.
	Exists func(path string) bool
}

// Placement records where one item landed.
type Placement struct {
	Item     workflow.PendingSummary
	Category string // resolved section label
	Strategy htmldoc.Strategy
	Created  bool // placed in a newly synthesized section
}

// Skipped is a category that could not be placed.
type Skipped struct {
	Category string
	Items    []workflow.PendingSummary
	Reason   string
}

// MergeResult is the outcome of a pure merge.
type MergeResult struct {
	Content []byte
	Placed  []Placement
	Skipped []Skipped
	// Invalid holds items rejected before placement.
	Invalid []workflow.PendingSummary
}

type group struct {
	category string
	items    []workflow.PendingSummary
}

// Merge inserts items into src. Existing blocks for the same paths are
// removed first so re-applying an item updates it in place of duplicating.
func Merge(src []byte, items []workflow.PendingSummary, opts MergeOptions) (*MergeResult, error) {
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = DefaultCategory
	}
	res := &MergeResult{}
	groups := groupItems(items, opts.DefaultCategory, res)

	doc := htmldoc.Parse(src)
	var edits []htmldoc.Edit
	edits = append(edits, removals(doc, groups)...)

	var fresh []group
	for _, g := range groups {
		m, ok := htmldoc.Locate(doc, g.category)
		if !ok {
			fresh = append(fresh, g)
			continue
		}
		label := m.Section.Label()
		at := listInsert(src, m.Section)
		edits = append(edits, htmldoc.Edit{Start: at, End: at, Text: entriesHTML(views(g.items, label, opts.Exists), entryIndent)})
		for _, it := range g.items {
			res.Placed = append(res.Placed, Placement{Item: it, Category: label, Strategy: m.Strategy})
		}
	}

	out, err := htmldoc.Splice(src, edits)
	if err != nil {
		return nil, fmt.Errorf("reconcile: merge: %w", err)
	}

	if len(fresh) > 0 {
		out, err = insertSections(out, fresh, opts, res)
		if err != nil {
			return nil, err
		}
	}
	res.Content = out
	return res, nil
}

func groupItems(items []workflow.PendingSummary, def string, res *MergeResult) []group {
	order := []string{}
	latest := map[string]workflow.PendingSummary{}
	for _, it := range items {
		it.File.Path = models.NormalizePath(it.File.Path)
		if it.File.Path == "" {
			res.Invalid = append(res.Invalid, it)
			continue
		}
		it.Category = strings.TrimSpace(it.Category)
		if it.Category == "" {
			it.Category = def
		}
		if _, seen := latest[it.File.Path]; !seen {
			order = append(order, it.File.Path)
		}
		latest[it.File.Path] = it
	}

	var groups []group
	index := map[string]int{}
	for _, p := range order {
		it := latest[p]
		key := strings.ToLower(it.Category)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{category: it.Category})
		}
		groups[i].items = append(groups[i].items, it)
	}
	return groups
}

func removals(doc *htmldoc.Document, groups []group) []htmldoc.Edit {
	paths := map[string]bool{}
	for _, g := range groups {
		for _, it := range g.items {
			paths[it.File.Path] = true
		}
	}
	var edits []htmldoc.Edit
	covered := -1
	for _, e := range doc.Entries {
		if e.Start < covered || !paths[models.NormalizePath(e.Path)] {
			continue
		}
		edits = append(edits, htmldoc.Edit{Start: htmldoc.BlockStart(doc.Src, e.Start), End: e.End})
		covered = e.End
	}
	return edits
}

func insertSections(src []byte, fresh []group, opts MergeOptions, res *MergeResult) ([]byte, error) {
	doc := htmldoc.Parse(src)
	at, ok := doc.ContainerInsert()
	if !ok {
		for _, g := range fresh {
			res.Skipped = append(res.Skipped, Skipped{Category: g.category, Items: g.items, Reason: "no container to insert a new section into"})
		}
		return src, nil
	}
	at = htmldoc.BlockStart(src, at)
	var b strings.Builder
	for _, g := range fresh {
		b.WriteString(sectionHTML(g.category, views(g.items, g.category, opts.Exists)))
		for _, it := range g.items {
			res.Placed = append(res.Placed, Placement{Item: it, Category: g.category, Created: true})
		}
	}
	out, err := htmldoc.Splice(src, []htmldoc.Edit{{Start: at, End: at, Text: b.String()}})
	if err != nil {
		return nil, fmt.Errorf("reconcile: insert sections: %w", err)
	}
	return out, nil
}

// listInsert is the offset just after the last non-blank content of the
// list interior.
func listInsert(src []byte, s *htmldoc.Section) int {
	at := htmldoc.BlockStart(src, s.ListCloseStart)
	if at < s.ListOpenEnd {
		at = s.ListOpenEnd
	}
	return at
}

func views(items []workflow.PendingSummary, label string, exists func(string) bool) []entryView {
	out := make([]entryView, len(items))
	for i, it := range items {
		out[i] = entryView{
			Path:     it.File.Path,
			Title:    it.Title,
			Summary:  it.Summary,
			Category: label,
			PDF:      pdfLink(it.File.Path, exists),
		}
	}
	return out
}
