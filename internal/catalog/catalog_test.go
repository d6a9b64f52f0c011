package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleLedger() *ledger.Ledger {
	l := ledger.New()
	at := models.NewTimestamp(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	l.Merge("./setup.txt", models.Entry{Hash: "sha256:1", Category: "Guides", Title: "setup", Summary: "Install CUDA drivers", LastProcessed: at, SummaryApproved: true})
	l.Merge("./run.sh", models.Entry{Hash: "sha256:2", Category: "Scripts", Title: "run", Summary: "Bash launcher"})
	l.Merge("./lora.md", models.Entry{Hash: "sha256:3", Category: "Models", Title: "lora", Summary: "Training notes"})
	return l
}

func TestSchemaCreation(t *testing.T) {
	c := testCatalog(t)
	var n int
	if err := c.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
	if err := c.conn.QueryRow(`SELECT count(*) FROM apply_runs`).Scan(&n); err != nil {
		t.Fatalf("apply_runs table missing: %v", err)
	}
}

func TestSyncAndGet(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	if err := c.Sync(ctx, sampleLedger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	d, err := c.Get(ctx, "setup.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Category != "Guides" || !d.Approved || d.LastProcessed.Year() != 2024 {
		t.Errorf("doc = %+v", d)
	}
	if _, err := c.Get(ctx, "./nope.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncRemovesUntracked(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	l := sampleLedger()
	_ = c.Sync(ctx, l)

	l.Remove("./run.sh")
	e, _ := l.Get("./lora.md")
	e.Category = "Guides"
	l.Merge("./lora.md", e)
	if err := c.Sync(ctx, l); err != nil {
		t.Fatal(err)
	}

	docs, total, err := c.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || docs[0].Path != "./lora.md" || docs[0].Category != "Guides" {
		t.Errorf("docs = %+v total = %d", docs, total)
	}
	cats, _ := c.Categories(ctx)
	if len(cats) != 1 || cats[0].Name != "Guides" || cats[0].Count != 2 {
		t.Errorf("categories = %+v", cats)
	}
}

func TestListByCategory(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	_ = c.Sync(ctx, sampleLedger())
	docs, total, err := c.List(ctx, "scripts", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || docs[0].Path != "./run.sh" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestSearch_Basic(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	_ = c.Sync(ctx, sampleLedger())
	hits, err := c.Search(ctx, "CUDA", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "./setup.txt" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestRuns(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []string{"apply", "render", "apply"} {
		run := models.ApplyRun{ID: kind + string(rune('a'+i)), Kind: kind, At: models.NewTimestamp(base.Add(time.Duration(i) * time.Minute)), Applied: i}
		if err := c.RecordRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := c.Runs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Applied != 2 || runs[1].Kind != "render" {
		t.Errorf("runs = %+v", runs)
	}
	if !runs[0].At.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("at = %v", runs[0].At)
	}
}
