package ledger

import (
	"bytes"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/storage"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func tempStore(t *testing.T) *storage.FS {
	t.Helper()
	s, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMergeNormalizesKeys(t *testing.T) {
	l := New()
	if _, replaced := l.Merge("docs/a.txt", models.Entry{Hash: "sha256:1", Category: "Guides"}); replaced {
		t.Error("first Merge reported a replacement")
	}
	if _, ok := l.Get("./docs/a.txt"); !ok {
		t.Fatal("expected entry under normalized key")
	}
	prev, replaced := l.Merge("./docs/a.txt", models.Entry{Hash: "sha256:2", Category: "Guides"})
	if !replaced || prev.Hash != "sha256:1" {
		t.Errorf("Merge returned %+v, %v; want the sha256:1 entry", prev, replaced)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	if !l.Remove("docs/a.txt") || l.Len() != 0 {
		t.Error("Remove did not drop the entry")
	}
}

func TestRecomputeCategories(t *testing.T) {
	l := New()
	l.Merge("a", models.Entry{Category: "Scripts"})
	l.Merge("b", models.Entry{Category: "Guides"})
	l.Merge("c", models.Entry{Category: "Guides"})
	l.RecomputeCategories("Archive", " ", "Scripts")
	want := []string{"Archive", "Guides", "Scripts"}
	if !reflect.DeepEqual(l.Categories, want) {
		t.Errorf("categories = %v, want %v", l.Categories, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	l := New()
	l.Merge("./a.txt", models.Entry{
		Hash: "sha256:abc", Category: "Guides", Summary: "s", Title: "a",
		LastProcessed:   models.NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		SummaryApproved: true,
	})
	l.RecomputeCategories()
	if err := Save(s, ".dms_state.json", l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(s, ".dms_state.json", discard())
	a, _ := l.Marshal()
	b, _ := got.Marshal()
	if !bytes.Equal(a, b) {
		t.Errorf("round trip mismatch:\n%s\n%s", a, b)
	}
}

func TestLoadMalformedDegrades(t *testing.T) {
	s := tempStore(t)
	_ = s.Write(".dms_state.json", []byte("{not json"))
	l := Load(s, ".dms_state.json", discard())
	if l.Len() != 0 {
		t.Errorf("len = %d, want 0", l.Len())
	}
	if Load(s, "absent.json", discard()).Len() != 0 {
		t.Error("missing ledger should be empty")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New()
	l.Merge("./x.txt", models.Entry{Hash: "sha256:1", Category: "Guides", Summary: "ends with --> here", Title: "x"})
	l.RecomputeCategories()
	data, err := EncodeSnapshot(l)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "-->") {
		t.Fatalf("snapshot contains comment terminator: %s", data)
	}
	got, legacy, err := DecodeSnapshot(data)
	if err != nil || legacy {
		t.Fatalf("DecodeSnapshot: legacy=%v err=%v", legacy, err)
	}
	again, _ := EncodeSnapshot(got)
	if !bytes.Equal(data, again) {
		t.Errorf("snapshot changed:\n%s\n%s", data, again)
	}
}

func TestDecodeLegacySnapshot(t *testing.T) {
	raw := `{"processed_files":{"./a.txt":{"hash":"sha256:1","description":"old desc","last_processed":"2023-05-06T07:08:09.000001"}},"categories":["Guides"],"last_scan":"2023-05-06T07:08:09"}`
	l, legacy, err := DecodeSnapshot([]byte(raw))
	if err != nil || !legacy {
		t.Fatalf("legacy=%v err=%v", legacy, err)
	}
	e, ok := l.Get("./a.txt")
	if !ok {
		t.Fatal("missing entry")
	}
	if e.Summary != "old desc" || e.Title != "a" || !e.SummaryApproved {
		t.Errorf("entry = %+v", e)
	}
	if l.Metadata.LastScan.IsZero() {
		t.Error("last_scan not carried over")
	}
}
