package docservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/checksum"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/testutil"
)

func TestGetDocument(t *testing.T) {
	ws := testutil.TestWorkspace(t, map[string]string{"my_notes.txt": "v2"})
	l := ledger.New()
	l.Merge("./my_notes.txt", models.Entry{Hash: checksum.Sum([]byte("v1")), Category: "Guides", Title: "my_notes", Summary: "notes"})
	l.Merge("./gone.pdf", models.Entry{Hash: checksum.Missing, Category: "Guides"})
	if err := ws.SaveLedger(l); err != nil {
		t.Fatal(err)
	}
	svc := New(ws, testutil.TestCatalog(t))
	ctx := context.Background()

	d, err := svc.GetDocument(ctx, "my_notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Exists || !d.Modified || d.DisplayTitle != "my notes" || d.Type != "TXT" {
		t.Errorf("detail = %+v", d)
	}

	d, err = svc.GetDocument(ctx, "./gone.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if d.Exists || d.Type != "PDF" {
		t.Errorf("detail = %+v", d)
	}

	if _, err := svc.GetDocument(ctx, "./nope.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRefreshFeedsSearch(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	l := ledger.New()
	l.Merge("./cuda.txt", models.Entry{Category: "Guides", Title: "cuda", Summary: "Install the CUDA toolkit"})
	_ = ws.SaveLedger(l)
	svc := New(ws, testutil.TestCatalog(t))
	ctx := context.Background()

	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	hits, err := svc.Search(ctx, "toolkit", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %+v err = %v", hits, err)
	}
	docs, total, err := svc.ListDocuments(ctx, "Guides", 10, 0)
	if err != nil || total != 1 || docs[0].Path != "./cuda.txt" {
		t.Errorf("docs = %+v total = %d err = %v", docs, total, err)
	}
	if st := svc.Status(ctx); st.Documents != 1 {
		t.Errorf("status documents = %d", st.Documents)
	}
}
