package reconcile

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workspace"
)

// DefaultShell is the document used when no index exists yet.
const DefaultShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Document Index</title>
</head>
<body>
<aside class="sidebar">
<div class="lists" id="categories">
</div>
</aside>
<main id="viewer"></main>
</body>
</html>
`

const (
	entryIndent   = "    "
	sectionIndent = "  "
)

// entryView is everything needed to render one entry block.
type entryView struct {
	Path     string
	Title    string
	Summary  string
	Category string
	PDF      string
}

func (v entryView) html(indent string) string {
	title := v.Title
	if title == "" {
		title = models.Stem(v.Path)
	}
	var b strings.Builder
	b.WriteString(indent + `<li class="file" data-path="` + html.EscapeString(v.Path) + `" data-pdf="` + html.EscapeString(v.PDF) + "\">\n")
	b.WriteString(indent + "  <div class=\"meta\">\n")
	b.WriteString(indent + `    <div class="title"><a href="#" class="file-link">` + html.EscapeString(models.DisplayTitle(title)) + "</a></div>\n")
	b.WriteString(indent + `    <div class="desc">` + html.EscapeString(v.Summary) + "</div>\n")
	b.WriteString(indent + `    <div class="tags small-muted">` + html.EscapeString(models.TypeLabel(v.Path)+" · "+v.Category) + "</div>\n")
	b.WriteString(indent + "  </div>\n")
	b.WriteString(indent + "</li>")
	return b.String()
}

// entriesHTML renders views, each on its own line preceded by a newline.
func entriesHTML(views []entryView, indent string) string {
	var b strings.Builder
	for _, v := range views {
		b.WriteString("\n")
		b.WriteString(v.html(indent))
	}
	return b.String()
}

func sectionHTML(label string, views []entryView) string {
	esc := html.EscapeString(label)
	var b strings.Builder
	b.WriteString("\n<section class=\"category\" data-category=\"" + esc + "\">\n")
	b.WriteString(sectionIndent + "<h2>" + esc + "</h2>\n")
	b.WriteString(sectionIndent + `<ul class="files">`)
	b.WriteString(entriesHTML(views, entryIndent))
	b.WriteString("\n" + sectionIndent + "</ul>\n</section>")
	return b.String()
}

// pdfLink is the data-pdf target: a PDF links to itself, an OCR sidecar to a
// same-stem PDF at the root when one exists.
func pdfLink(path string, exists func(string) bool) string {
	if models.Ext(path) == ".pdf" {
		return path
	}
	if exists == nil || !strings.HasPrefix(path, "./"+workspace.SidecarDir+"/") {
		return ""
	}
	stem := models.Stem(path)
	for _, ext := range []string{".pdf", ".PDF"} {
		if c := "./" + stem + ext; exists(c) {
			return c
		}
	}
	return ""
}
