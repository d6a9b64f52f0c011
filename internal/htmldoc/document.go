// Package htmldoc parses the rendered index into a tree of category sections
// and entry blocks with byte offsets into the original source.
package htmldoc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed rendered index. Offsets index into Src.
type Document struct {
	Src      []byte
	Sections []*Section
	// Entries holds every entry block in document order, inside a
	// section or not.
	Entries []*Entry
	// Snapshot is the embedded ledger comment, nil when absent.
	Snapshot *Snapshot

	bodyOpenEnd     int
	listsCloseStart int
	asideCloseStart int
}

// Section is a category section element.
type Section struct {
	Key     string // data-category attribute
	Heading string // first h1-h4 text
	Start   int
	End     int
	// ListOpenEnd and ListCloseStart bound the interior of the entry list.
	// Both are -1 when the section has no list.
	ListOpenEnd    int
	ListCloseStart int
	Entries        []*Entry
}

// Label is the category name the section represents.
func (s *Section) Label() string {
	if s.Key != "" {
		return s.Key
	}
	return s.Heading
}

// HasList reports whether entries can be inserted into the section.
func (s *Section) HasList() bool { return s.ListOpenEnd >= 0 && s.ListCloseStart >= s.ListOpenEnd }

// Entry is one entry block.
type Entry struct {
	Path    string // data-path
	PDF     string // data-pdf
	Title   string
	Desc    string
	Start   int
	End     int
	Section *Section
}

// Snapshot is the embedded ledger comment.
type Snapshot struct {
	Start   int
	End     int
	Payload []byte
}

// SnapshotMarker opens the embedded ledger comment.
const SnapshotMarker = "DMS_STATE"

// ContainerInsert returns the offset where new sections are inserted: before
// the close of the lists container, else before the close of the sidebar,
// else after the last category section. ok is false when there is no anchor.
func (d *Document) ContainerInsert() (int, bool) {
	if at, ok := d.Container(); ok {
		return at, true
	}
	if len(d.Sections) > 0 {
		return d.Sections[len(d.Sections)-1].End, true
	}
	return -1, false
}

// Container returns the close offset of the lists container, else of the
// sidebar, ignoring the section fallback.
func (d *Document) Container() (int, bool) {
	switch {
	case d.listsCloseStart >= 0:
		return d.listsCloseStart, true
	case d.asideCloseStart >= 0:
		return d.asideCloseStart, true
	}
	return -1, false
}

// BodyOpenEnd returns the offset just after the body start tag.
func (d *Document) BodyOpenEnd() (int, bool) { return d.bodyOpenEnd, d.bodyOpenEnd >= 0 }

// Labels returns the label of every section, in document order.
func (d *Document) Labels() []string {
	out := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		if l := s.Label(); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// EntryByPath returns every entry block carrying path.
func (d *Document) EntryByPath(path string) []*Entry {
	var out []*Entry
	for _, e := range d.Entries {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

type kind int

const (
	kindOther kind = iota
	kindSection
	kindList
	kindEntry
	kindLists
	kindAside
	kindHeading
	kindTitle
	kindDesc
)

type node struct {
	tag     string
	kind    kind
	section *Section
	entry   *Entry
	text    *strings.Builder
}

type parser struct {
	doc   *Document
	stack []*node
}

// Parse tokenizes src into a Document. It never fails: malformed markup
// degrades to fewer recognised sections.
func Parse(src []byte) *Document {
	p := &parser{doc: &Document{Src: src, bodyOpenEnd: -1, listsCloseStart: -1, asideCloseStart: -1}}
	z := html.NewTokenizer(bytes.NewReader(src))
	offset := 0
	for {
		tt := z.Next()
		start := offset
		offset += len(z.Raw())
		if tt == html.ErrorToken {
			// io.EOF or a read error; either way the source is exhausted.
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken:
			p.open(tok, start, offset)
		case html.SelfClosingTagToken:
			if tok.Data == "body" && p.doc.bodyOpenEnd < 0 {
				p.doc.bodyOpenEnd = offset
			}
		case html.EndTagToken:
			p.close(tok.Data, start, offset)
		case html.TextToken:
			if n := p.capture(); n != nil {
				n.text.WriteString(tok.Data)
			}
		case html.CommentToken:
			p.comment(tok.Data, start, offset)
		}
	}
	p.popTo(0, len(src), len(src))
	return p.doc
}

func (p *parser) open(tok html.Token, start, end int) {
	tag := tok.Data
	if tag == "body" && p.doc.bodyOpenEnd < 0 {
		p.doc.bodyOpenEnd = end
	}
	if tag == "li" {
		// An open li is implicitly closed by a sibling li.
		for i := len(p.stack) - 1; i >= 0; i-- {
			t := p.stack[i].tag
			if t == "ul" || t == "ol" {
				break
			}
			if t == "li" {
				p.popTo(i, start, start)
				break
			}
		}
	}
	if voidElements[tag] {
		return
	}

	n := &node{tag: tag}
	switch {
	case tag == "section" && hasClass(tok, "category"):
		s := &Section{Key: strings.TrimSpace(attr(tok, "data-category")), Start: start, End: -1, ListOpenEnd: -1, ListCloseStart: -1}
		p.doc.Sections = append(p.doc.Sections, s)
		n.kind, n.section = kindSection, s
	case tag == "ul" && hasClass(tok, "files"):
		if s := p.section(); s != nil && s.ListOpenEnd < 0 {
			s.ListOpenEnd = end
			n.kind, n.section = kindList, s
		}
	case tag == "li" && hasClass(tok, "file"):
		e := &Entry{Path: attr(tok, "data-path"), PDF: attr(tok, "data-pdf"), Start: start, End: -1, Section: p.section()}
		if e.Section != nil {
			e.Section.Entries = append(e.Section.Entries, e)
		}
		p.doc.Entries = append(p.doc.Entries, e)
		n.kind, n.entry = kindEntry, e
	case tag == "div" && (hasClass(tok, "lists") || attr(tok, "id") == "categories") && p.doc.listsCloseStart < 0 && !p.inKind(kindLists):
		n.kind = kindLists
	case tag == "aside" && p.doc.asideCloseStart < 0 && !p.inKind(kindAside):
		n.kind = kindAside
	case isHeading(tag):
		if s := p.section(); s != nil && s.Heading == "" && p.entry() == nil {
			n.kind, n.section, n.text = kindHeading, s, &strings.Builder{}
		}
	case tag == "div" && hasClass(tok, "title"):
		if e := p.entry(); e != nil && e.Title == "" {
			n.kind, n.entry, n.text = kindTitle, e, &strings.Builder{}
		}
	case tag == "div" && hasClass(tok, "desc"):
		if e := p.entry(); e != nil && e.Desc == "" {
			n.kind, n.entry, n.text = kindDesc, e, &strings.Builder{}
		}
	}
	p.stack = append(p.stack, n)
}

func (p *parser) close(tag string, start, end int) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].tag == tag {
			p.popTo(i, start, end)
			return
		}
	}
}

// popTo pops stack[i:]. The element at i was closed by an end tag spanning
// [closeStart, closeEnd); elements above it were closed implicitly and end at
// their last non-blank byte before closeStart, so a block without its end tag
// never reaches into the whitespace ahead of its parent's end tag.
func (p *parser) popTo(i, closeStart, closeEnd int) {
	implicit := closeStart
	for implicit > 0 && isSpace(p.doc.Src[implicit-1]) {
		implicit--
	}
	for j := len(p.stack) - 1; j >= i; j-- {
		n := p.stack[j]
		end := implicit
		if j == i {
			end = closeEnd
		}
		p.finish(n, closeStart, end)
	}
	p.stack = p.stack[:i]
}

func (p *parser) finish(n *node, closeStart, end int) {
	switch n.kind {
	case kindSection:
		n.section.End = end
	case kindList:
		n.section.ListCloseStart = closeStart
	case kindEntry:
		n.entry.End = end
	case kindLists:
		p.doc.listsCloseStart = closeStart
	case kindAside:
		p.doc.asideCloseStart = closeStart
	case kindHeading:
		n.section.Heading = squash(n.text.String())
	case kindTitle:
		n.entry.Title = squash(n.text.String())
	case kindDesc:
		n.entry.Desc = squash(n.text.String())
	}
}

func (p *parser) comment(data string, start, end int) {
	if p.doc.Snapshot != nil {
		return
	}
	body := strings.TrimSpace(data)
	if !strings.HasPrefix(body, SnapshotMarker) {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(body, SnapshotMarker))
	p.doc.Snapshot = &Snapshot{Start: start, End: end, Payload: []byte(payload)}
}

func (p *parser) capture() *node {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].text != nil {
			return p.stack[i]
		}
	}
	return nil
}

func (p *parser) section() *Section {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].kind == kindSection {
			return p.stack[i].section
		}
	}
	return nil
}

func (p *parser) entry() *Entry {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].kind == kindEntry {
			return p.stack[i].entry
		}
	}
	return nil
}

func (p *parser) inKind(k kind) bool {
	for _, n := range p.stack {
		if n.kind == k {
			return true
		}
	}
	return false
}

func hasClass(tok html.Token, class string) bool {
	for _, c := range strings.Fields(attr(tok, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isHeading(tag string) bool {
	return tag == "h1" || tag == "h2" || tag == "h3" || tag == "h4"
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
