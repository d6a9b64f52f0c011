package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/dms/internal/review"
	"github.com/starford/dms/internal/status"
	"github.com/starford/dms/internal/testutil"
)

func fakeOllama(t *testing.T, summary string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"phi3:mini"}]}`))
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]string{"response": summary})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testApp(t *testing.T, files map[string]string, baseURL string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := NewDefaultConfig()
	if baseURL != "" {
		cfg.Summarizer.BaseURL = baseURL
	}
	cfg.Summarizer.Breaker.Enabled = false
	cfg.Summarizer.Retry.MaxAttempts = 1
	var out bytes.Buffer
	app, err := New(WithConfig(cfg), WithRoot(dir), WithOutput(&out), WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app, &out
}

func runPipeline(t *testing.T, app *App) {
	t.Helper()
	ctx := context.Background()
	rep, err := app.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.NewFiles) != 2 {
		t.Fatalf("new files = %d, want 2", len(rep.NewFiles))
	}
	if err := app.Summarize(ctx, SummarizeOptions{}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if err := app.Review(ctx, ReviewOptions{Options: review.Options{ApproveAll: true}}); err != nil {
		t.Fatalf("Review: %v", err)
	}
	applied, err := app.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(applied.Placed) != 2 {
		t.Fatalf("placed = %d, want 2", len(applied.Placed))
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	srv := fakeOllama(t, "A setup guide for installing the toolchain.")
	app, out := testApp(t, map[string]string{
		"notes/setup.txt": "how to install everything",
		"tools/run.py":    "print('hi')",
	}, srv.URL)
	ctx := context.Background()

	runPipeline(t, app)

	index, ok := app.Workspace().ReadIndex()
	if !ok {
		t.Fatal("index not written")
	}
	for _, p := range []string{"./notes/setup.txt", "./tools/run.py"} {
		if !bytes.Contains(index, []byte(`data-path="`+p+`"`)) {
			t.Errorf("index lacks %s", p)
		}
	}

	out.Reset()
	if err := app.Status(ctx, true); err != nil {
		t.Fatalf("Status: %v", err)
	}
	var st status.Report
	if err := json.Unmarshal(out.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out.String())
	}
	if st.Documents != 2 || st.WithSummaries != 2 {
		t.Errorf("documents = %d with summaries = %d, want 2 and 2", st.Documents, st.WithSummaries)
	}

	out.Reset()
	if err := app.Search(ctx, "setup", 10, false); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(out.String(), "./notes/setup.txt") {
		t.Errorf("search output = %q", out.String())
	}

	out.Reset()
	rep, err := app.Scan(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if !rep.Empty() {
		t.Errorf("rescan after apply should be empty, got %+v", rep)
	}
}

func TestSummarizeBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	app, _ := testApp(t, map[string]string{"a.txt": "alpha"}, srv.URL)
	ctx := context.Background()
	if _, err := app.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if err := app.Summarize(ctx, SummarizeOptions{}); err == nil {
		t.Fatal("summarize should fail when the backend is down")
	}
}

func TestSummarizeNeedsScan(t *testing.T) {
	app, _ := testApp(t, map[string]string{"a.txt": "alpha"}, "")
	if err := app.Summarize(context.Background(), SummarizeOptions{}); err == nil {
		t.Fatal("summarize without a change report should fail")
	}
}

func TestDeleteEntryNeedsYes(t *testing.T) {
	srv := fakeOllama(t, "A short note.")
	app, out := testApp(t, map[string]string{
		"keep.txt": "keep",
		"drop.txt": "drop",
	}, srv.URL)
	runPipeline(t, app)
	ctx := context.Background()

	out.Reset()
	if err := app.DeleteEntry(ctx, DeleteOptions{Mode: DeletePattern, Target: "drop"}); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if !strings.Contains(out.String(), "--yes") {
		t.Errorf("dry listing should ask for --yes: %q", out.String())
	}
	if _, ok := app.Workspace().LoadLedger().Get("./drop.txt"); !ok {
		t.Fatal("entry removed without --yes")
	}

	if err := app.DeleteEntry(ctx, DeleteOptions{Mode: DeletePattern, Target: "drop", Yes: true, Render: true}); err != nil {
		t.Fatalf("DeleteEntry --yes: %v", err)
	}
	if _, ok := app.Workspace().LoadLedger().Get("./drop.txt"); ok {
		t.Fatal("entry still tracked")
	}
	index, _ := app.Workspace().ReadIndex()
	if bytes.Contains(index, []byte("./drop.txt")) {
		t.Error("rendered index still lists the deleted entry")
	}
	if !bytes.Contains(index, []byte("./keep.txt")) {
		t.Error("rendered index lost the kept entry")
	}
}

func TestDeleteEntryUnknownMode(t *testing.T) {
	app, _ := testApp(t, nil, "")
	if err := app.DeleteEntry(context.Background(), DeleteOptions{Mode: "everything"}); err == nil {
		t.Fatal("unknown mode should fail")
	}
}

func TestPreviewHandlerHidesToolFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>docs</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".dms_state.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := previewHandler(dir, "index.html")

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/index.html", http.StatusMovedPermanently},
		{"/.dms_state.json", http.StatusNotFound},
		{"/sub/../.dms_state.json", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}
