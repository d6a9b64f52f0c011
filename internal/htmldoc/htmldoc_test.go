package htmldoc

import (
	"strings"
	"testing"
)

const sample = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Docs</title></head>
<body>
<!-- DMS_STATE
{"documents":{}}
-->
<aside class="sidebar">
<div class="lists" id="categories">
<section class="category" data-category="Guides">
  <h2>Guides &amp; Setup</h2>
  <ul class="files">
    <li class="file" data-path="./a.txt" data-pdf="">
      <div class="meta">
        <div class="title"><a href="#" class="file-link">a</a></div>
        <div class="desc">First <b>file</b></div>
      </div>
    </li>
  </ul>
</section>
<section class="category">
  <h3>Model Training Notes</h3>
  <ul class="files"></ul>
</section>
<section class="category" data-category="Empty"><h2>Empty</h2></section>
</div>
</aside>
</body></html>`

func TestParseTree(t *testing.T) {
	doc := Parse([]byte(sample))
	if len(doc.Sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(doc.Sections))
	}
	g := doc.Sections[0]
	if g.Key != "Guides" || g.Heading != "Guides & Setup" {
		t.Errorf("section 0 = %q / %q", g.Key, g.Heading)
	}
	if !g.HasList() || len(g.Entries) != 1 {
		t.Fatalf("guides list=%v entries=%d", g.HasList(), len(g.Entries))
	}
	e := g.Entries[0]
	if e.Path != "./a.txt" || e.Title != "a" || e.Desc != "First file" {
		t.Errorf("entry = %+v", e)
	}
	block := sample[e.Start:e.End]
	if !strings.HasPrefix(block, `<li class="file"`) || !strings.HasSuffix(block, "</li>") {
		t.Errorf("entry block = %q", block)
	}
	if interior := sample[doc.Sections[1].ListOpenEnd:doc.Sections[1].ListCloseStart]; interior != "" {
		t.Errorf("empty list interior = %q", interior)
	}
	if doc.Sections[2].HasList() {
		t.Error("section without list reported a list")
	}
	if doc.Snapshot == nil || string(doc.Snapshot.Payload) != `{"documents":{}}` {
		t.Fatalf("snapshot = %+v", doc.Snapshot)
	}
	at, ok := doc.ContainerInsert()
	if !ok || !strings.HasPrefix(sample[at:], "</div>\n</aside>") {
		t.Errorf("container insert at %d: %q", at, sample[at:min(len(sample), at+20)])
	}
	if got := sample[doc.Sections[0].Start:doc.Sections[0].End]; !strings.HasSuffix(got, "</section>") {
		t.Errorf("section span = %q", got)
	}
}

func TestParseImplicitClose(t *testing.T) {
	src := `<body><section class="category" data-category="X"><ul class="files"><li class="file" data-path="./1"><li class="file" data-path="./2"></ul></section></body>`
	doc := Parse([]byte(src))
	if len(doc.Entries) != 2 {
		t.Fatalf("entries = %d", len(doc.Entries))
	}
	if got := src[doc.Entries[0].Start:doc.Entries[0].End]; got != `<li class="file" data-path="./1">` {
		t.Errorf("first entry = %q", got)
	}
	if got := src[doc.Sections[0].ListCloseStart:]; !strings.HasPrefix(got, "</ul>") {
		t.Errorf("list close = %q", got)
	}
}

func TestParseImplicitCloseStopsAtContent(t *testing.T) {
	src := "<ul class=\"files\">\n<li class=\"file\" data-path=\"./a\">text\n  </ul>"
	doc := Parse([]byte(src))
	if len(doc.Entries) != 1 {
		t.Fatalf("entries = %d", len(doc.Entries))
	}
	if got := src[doc.Entries[0].Start:doc.Entries[0].End]; got != `<li class="file" data-path="./a">text` {
		t.Errorf("entry = %q", got)
	}
}

func TestContainerFallbacks(t *testing.T) {
	doc := Parse([]byte(`<body><aside><p>x</p></aside></body>`))
	at, ok := doc.ContainerInsert()
	if !ok || !strings.HasPrefix(`<body><aside><p>x</p></aside></body>`[at:], "</aside>") {
		t.Errorf("aside anchor = %d %v", at, ok)
	}
	src := `<main><section class="category" data-category="A"><ul class="files"></ul></section><p>after</p></main>`
	doc = Parse([]byte(src))
	at, ok = doc.ContainerInsert()
	if !ok || !strings.HasPrefix(src[at:], "<p>after") {
		t.Errorf("section anchor = %q", src[at:])
	}
	if _, ok := Parse([]byte(`<p>nothing</p>`)).ContainerInsert(); ok {
		t.Error("expected no anchor")
	}
}

func TestLocateStrategies(t *testing.T) {
	doc := Parse([]byte(sample))
	cases := []struct {
		category string
		want     Strategy
		section  int
	}{
		{"guides", ExactKey, 0},
		{"Model Training Notes", HeadingText, 1},
		{"Training", HeadingText, 1},
		{"notes about models and training", KeywordOverlap, 1},
	}
	for _, c := range cases {
		m, ok := Locate(doc, c.category)
		if !ok {
			t.Errorf("%q: not found", c.category)
			continue
		}
		if m.Strategy != c.want || m.Section != doc.Sections[c.section] {
			t.Errorf("%q: got %v section %q", c.category, m.Strategy, m.Section.Label())
		}
	}
	if _, ok := Locate(doc, "Empty"); ok {
		t.Error("section without list must not match")
	}
	if _, ok := Locate(doc, "Scripts"); ok {
		t.Error("unrelated category matched")
	}
}

func TestLocateTieFirstDeclared(t *testing.T) {
	src := `<section class="category" data-category="Alpha Tools"><ul class="files"></ul></section>` +
		`<section class="category" data-category="Beta Tools"><ul class="files"></ul></section>`
	doc := Parse([]byte(src))
	m, ok := Locate(doc, "tools for gamma")
	if !ok || m.Section != doc.Sections[0] || m.Strategy != KeywordOverlap {
		t.Errorf("tie went to %+v", m)
	}
}

func TestSpliceDescending(t *testing.T) {
	src := []byte("0123456789")
	out, err := Splice(src, []Edit{
		{Start: 2, End: 4, Text: "ab"},
		{Start: 8, End: 8, Text: "X"},
		{Start: 8, End: 8, Text: "Y"},
		{Start: 0, End: 1, Text: ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "1ab4567XY89" {
		t.Errorf("out = %q", out)
	}
	if _, err := Splice(src, []Edit{{Start: 1, End: 5}, {Start: 3, End: 6}}); err == nil {
		t.Error("expected overlap error")
	}
	if _, err := Splice(src, []Edit{{Start: 5, End: 20}}); err == nil {
		t.Error("expected range error")
	}
}

func TestBlockStart(t *testing.T) {
	src := []byte("<ul>\n    <li>x</li>\n</ul>")
	i := strings.Index(string(src), "<li>")
	if got := BlockStart(src, i); got != 4 {
		t.Errorf("BlockStart = %d, want 4", got)
	}
}

func TestEmbedSnapshot(t *testing.T) {
	out, err := EmbedSnapshot([]byte("<html><body><p>x</p></body></html>"), []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	want := "<html><body>\n<!-- DMS_STATE\n{\"a\":1}\n-->\n<p>x</p></body></html>"
	if string(out) != want {
		t.Errorf("embed = %q", out)
	}
	again, err := EmbedSnapshot(out, []byte(`{"a":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(again), SnapshotMarker) != 1 {
		t.Errorf("snapshot duplicated: %q", again)
	}
	if p, ok := ExtractSnapshot(again); !ok || string(p) != `{"a":2}` {
		t.Errorf("payload = %q", p)
	}
	tail, _ := EmbedSnapshot([]byte("<p>no body</p>"), []byte(`{}`))
	if !strings.HasSuffix(string(tail), "-->\n") {
		t.Errorf("append = %q", tail)
	}
}
