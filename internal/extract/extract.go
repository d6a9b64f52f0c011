// Package extract turns tracked files into plain text for summarization.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/parser"
	"github.com/starford/dms/internal/workspace"
)

// DefaultMaxChars caps the text handed to the summarizer.
const DefaultMaxChars = 2000

var textExts = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".py": true, ".js": true, ".json": true,
	".sh": true, ".csv": true, ".yaml": true, ".yml": true, ".log": true,
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// Text is the extracted content of one file.
type Text struct {
	Body string
	// Title and Category come from Markdown frontmatter when present.
	Title    string
	Category string
	// Placeholder is true when Body is a stand-in for unreadable content.
	Placeholder bool
	Truncated   bool
}

// Extractor reads files from a workspace.
type Extractor struct {
	ws       *workspace.Workspace
	maxChars int
}

// New creates an Extractor. maxChars <= 0 uses DefaultMaxChars.
func New(ws *workspace.Workspace, maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{ws: ws, maxChars: maxChars}
}

// IsImage reports whether p needs OCR before it can be summarized.
func IsImage(p string) bool { return imageExts[models.Ext(p)] }

// Extract returns the text of the file at logical path p.
func (e *Extractor) Extract(p string) (*Text, error) {
	ext := models.Ext(p)
	var (
		t   *Text
		err error
	)
	switch {
	case ext == ".md" || ext == ".markdown":
		t, err = e.markdown(p)
	case textExts[ext]:
		t, err = e.plain(p)
	case ext == ".html" || ext == ".htm":
		t, err = e.html(p)
	case ext == ".pdf":
		t, err = e.pdf(p)
	case ext == ".xlsx":
		t, err = e.xlsx(p)
	case imageExts[ext]:
		t, err = e.sidecar(p)
	default:
		t = placeholder(p)
	}
	if err != nil {
		return nil, err
	}
	if !t.Placeholder {
		t.Body, t.Truncated = truncate(strings.TrimSpace(t.Body), e.maxChars)
	}
	return t, nil
}

func placeholder(p string) *Text {
	return &Text{Body: fmt.Sprintf("[Binary file: %s]", path.Base(p)), Placeholder: true}
}

func (e *Extractor) read(p string) ([]byte, error) {
	data, err := e.ws.Store.Read(p)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return data, nil
}

func (e *Extractor) plain(p string) (*Text, error) {
	data, err := e.read(p)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}
	return &Text{Body: string(data)}, nil
}

func (e *Extractor) markdown(p string) (*Text, error) {
	t, err := e.plain(p)
	if err != nil {
		return nil, err
	}
	r := parser.Parse([]byte(t.Body))
	return &Text{Body: r.Body, Title: r.Title, Category: r.Category}, nil
}

func (e *Extractor) html(p string) (*Text, error) {
	data, err := e.read(p)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	z := html.NewTokenizer(bytes.NewReader(data))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
	return &Text{Body: strings.Join(strings.Fields(b.String()), " ")}, nil
}

func isHidden(tag string) bool { return tag == "script" || tag == "style" || tag == "head" }

func (e *Extractor) pdf(p string) (t *Text, err error) {
	// The PDF reader panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			e.ws.Log.Warn("pdf parser panicked, using placeholder", slog.String("path", p), slog.Any("panic", rec))
			t, err = placeholder(p), nil
		}
	}()
	f, r, err := pdf.Open(e.ws.Abs(models.RelPath(p)))
	if err != nil {
		e.ws.Log.Warn("pdf unreadable, using placeholder", slog.String("path", p), slog.String("error", err.Error()))
		return placeholder(p), nil
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		e.ws.Log.Warn("pdf text extraction failed", slog.String("path", p), slog.String("error", err.Error()))
		return placeholder(p), nil
	}
	var b strings.Builder
	if _, err := io.Copy(&b, io.LimitReader(plain, int64(e.maxChars)*4)); err != nil {
		return nil, fmt.Errorf("extract: pdf %s: %w", p, err)
	}
	if strings.TrimSpace(b.String()) == "" {
		return placeholder(p), nil
	}
	return &Text{Body: b.String()}, nil
}

func (e *Extractor) xlsx(p string) (*Text, error) {
	f, err := excelize.OpenFile(e.ws.Abs(models.RelPath(p)))
	if err != nil {
		e.ws.Log.Warn("spreadsheet unreadable, using placeholder", slog.String("path", p), slog.String("error", err.Error()))
		return placeholder(p), nil
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("extract: xlsx %s sheet %s: %w", p, sheet, err)
		}
		b.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
			if b.Len() > e.maxChars*2 {
				return &Text{Body: b.String()}, nil
			}
		}
	}
	return &Text{Body: b.String()}, nil
}

// sidecar reads the OCR output for an image when one exists.
func (e *Extractor) sidecar(p string) (*Text, error) {
	name := SidecarPath(p)
	if !e.ws.Store.Exists(name) {
		return placeholder(p), nil
	}
	return e.plain(name)
}

// SidecarPath is the logical path of the OCR text for image p. The sidecar
// tree mirrors the image's directory so equal stems in different folders
// never share a sidecar.
func SidecarPath(p string) string {
	name := models.Stem(p) + ".txt"
	if dir := path.Dir(strings.TrimPrefix(models.NormalizePath(p), "./")); dir != "." {
		name = dir + "/" + name
	}
	return "./" + workspace.SidecarDir + "/" + name
}

// Sidecars returns the sidecar paths owned by the images among paths. Such
// a sidecar is the image's text, not a document of its own.
func Sidecars(paths []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range paths {
		if IsImage(p) {
			out[SidecarPath(p)] = struct{}{}
		}
	}
	return out
}

func truncate(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]), true
}
