package scanner

import (
	"context"
	"testing"

	"github.com/starford/dms/internal/checksum"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/storage"
	"github.com/starford/dms/internal/testutil"
	"github.com/starford/dms/internal/workspace"
)

func setup(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Open(t.TempDir(), workspace.WithFilter(storage.Filter{Extensions: []string{".txt", ".md"}}))
	if err != nil {
		t.Fatal(err)
	}
	for p, c := range files {
		if err := ws.Store.Write(p, []byte(c)); err != nil {
			t.Fatal(err)
		}
	}
	return ws
}

func paths(refs []models.FileRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Path
	}
	return out
}

// vanishing deletes listed files just before they are hashed.
type vanishing struct {
	storage.Provider
	gone map[string]bool
}

func (v vanishing) Stat(path string) (models.FileRef, error) {
	if v.gone[path] {
		if err := v.Provider.Delete(path); err != nil {
			return models.FileRef{}, err
		}
	}
	return v.Provider.Stat(path)
}

func TestScanFileVanishesBeforeHash(t *testing.T) {
	ws := setup(t, map[string]string{"keep.txt": "k", "tracked.txt": "t", "fresh.txt": "f"})
	ws.Store = vanishing{Provider: ws.Store, gone: map[string]bool{"./tracked.txt": true, "./fresh.txt": true}}
	l := ledger.New()
	l.Merge("./tracked.txt", models.Entry{Hash: checksum.Sum([]byte("t"))})

	r, err := Scan(context.Background(), ws, l)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := paths(r.NewFiles); len(got) != 1 || got[0] != "./keep.txt" {
		t.Errorf("new = %v", got)
	}
	if len(r.ChangedFiles) != 0 {
		t.Errorf("changed = %v", paths(r.ChangedFiles))
	}
	if got := paths(r.MissingFiles); len(got) != 1 || got[0] != "./tracked.txt" {
		t.Errorf("missing = %v", got)
	}
}

func TestScanClassifies(t *testing.T) {
	ws := setup(t, map[string]string{"new.txt": "n", "same.txt": "s", "edit.md": "v2"})
	l := ledger.New()
	l.Merge("./same.txt", models.Entry{Hash: checksum.Sum([]byte("s"))})
	l.Merge("./edit.md", models.Entry{Hash: checksum.Sum([]byte("v1"))})
	l.Merge("./gone.txt", models.Entry{Hash: "sha256:old"})

	r, err := Scan(context.Background(), ws, l)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := paths(r.NewFiles); len(got) != 1 || got[0] != "./new.txt" {
		t.Errorf("new = %v", got)
	}
	if got := paths(r.ChangedFiles); len(got) != 1 || got[0] != "./edit.md" {
		t.Errorf("changed = %v", got)
	}
	if got := paths(r.MissingFiles); len(got) != 1 || got[0] != "./gone.txt" {
		t.Errorf("missing = %v", got)
	}
	if r.MissingFiles[0].Hash != checksum.Missing {
		t.Errorf("missing hash = %q", r.MissingFiles[0].Hash)
	}
	if l.Len() != 3 {
		t.Error("scan mutated the ledger")
	}
}

func TestScanHashStable(t *testing.T) {
	ws := setup(t, map[string]string{"a.txt": "content"})
	l := ledger.New()
	first, err := Scan(context.Background(), ws, l)
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range first.NewFiles {
		l.Merge(ref.Path, models.Entry{Hash: ref.Hash})
	}
	second, err := Scan(context.Background(), ws, l)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Empty() {
		t.Errorf("unchanged tree reported changes: %+v", second)
	}
}

func TestScanSkipsToolFiles(t *testing.T) {
	ws := setup(t, map[string]string{"a.txt": "a"})
	_ = ws.Store.Write(workspace.ReportFile, []byte("{}"))
	_ = ws.Store.Write("index.html", []byte("<html></html>"))
	r, err := Scan(context.Background(), ws, ledger.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NewFiles) != 1 {
		t.Errorf("new = %v", paths(r.NewFiles))
	}
}

func TestScanHonoursCancel(t *testing.T) {
	ws := setup(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Scan(ctx, ws, ledger.New()); err == nil {
		t.Error("expected context error")
	}
}

func TestRunCheckpointsReport(t *testing.T) {
	ws := setup(t, map[string]string{"a.txt": "a"})
	r, err := Run(context.Background(), ws)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.NewFiles) != 1 || !ws.Store.Exists(workspace.ReportFile) {
		t.Fatalf("report not written: %+v", r)
	}

	l := ledger.New()
	l.Merge("./a.txt", models.Entry{Hash: r.NewFiles[0].Hash})
	if err := ws.SaveLedger(l); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), ws); err != nil {
		t.Fatal(err)
	}
	if ws.Store.Exists(workspace.ReportFile) {
		t.Error("empty scan should retire the old report")
	}
}

func TestScanCountsImageOnce(t *testing.T) {
	ws := testutil.TestWorkspace(t, map[string]string{
		"scan.png":              "png",
		"md_outputs/scan.txt":   "ocr text of scan",
		"a/x.png":               "png",
		"b/x.jpg":               "jpg",
		"md_outputs/a/x.txt":    "text a",
		"md_outputs/b/x.txt":    "text b",
		"md_outputs/manual.txt": "converted by hand",
	})
	r, err := Scan(context.Background(), ws, ledger.New())
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, p := range paths(r.NewFiles) {
		got[p] = true
	}
	want := []string{"./scan.png", "./a/x.png", "./b/x.jpg", "./md_outputs/manual.txt"}
	if len(got) != len(want) {
		t.Fatalf("new = %v, want %v", paths(r.NewFiles), want)
	}
	for _, p := range want {
		if !got[p] {
			t.Errorf("%s not reported, new = %v", p, paths(r.NewFiles))
		}
	}
}
