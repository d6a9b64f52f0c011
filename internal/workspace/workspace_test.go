package workspace

import (
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC) }
}

func TestWriteIndexBacksUp(t *testing.T) {
	w, err := Open(t.TempDir(), WithClock(fixedClock()))
	if err != nil {
		t.Fatal(err)
	}
	backup, err := w.WriteIndex([]byte("first"))
	if err != nil || backup != "" {
		t.Fatalf("first write: backup=%q err=%v", backup, err)
	}
	backup, err = w.WriteIndex([]byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	if backup != "index.html.bak.20240601123045" {
		t.Errorf("backup = %q", backup)
	}
	old, _ := w.Store.Read(backup)
	if string(old) != "first" {
		t.Errorf("backup content = %q", old)
	}
}

func TestWriteIndexKeepsEveryBackupWithinOneSecond(t *testing.T) {
	w, err := Open(t.TempDir(), WithClock(fixedClock()))
	if err != nil {
		t.Fatal(err)
	}
	var backups []string
	for _, content := range []string{"original", "second", "third", "fourth"} {
		b, err := w.WriteIndex([]byte(content))
		if err != nil {
			t.Fatal(err)
		}
		if b != "" {
			backups = append(backups, b)
		}
	}
	want := map[string]string{
		"index.html.bak.20240601123045":   "original",
		"index.html.bak.20240601123045.1": "second",
		"index.html.bak.20240601123045.2": "third",
	}
	if len(backups) != len(want) {
		t.Fatalf("backups = %v", backups)
	}
	for _, b := range backups {
		data, err := w.Store.Read(b)
		if err != nil || string(data) != want[b] {
			t.Errorf("%s = %q, %v; want %q", b, data, err, want[b])
		}
	}
	if w.Filter.Allows("index.html.bak.20240601123045.1") {
		t.Error("numbered backup is scannable")
	}
}

func TestDiscardArchives(t *testing.T) {
	w, err := Open(t.TempDir(), WithClock(fixedClock()), WithArchive(true))
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Store.Write(ReportFile, []byte("{}"))
	if err := w.Discard(ReportFile); err != nil {
		t.Fatal(err)
	}
	if w.Store.Exists(ReportFile) {
		t.Error("report still present")
	}
	if !w.Store.Exists(ArchiveDir + "/20240601123045/" + ReportFile) {
		t.Error("report not archived")
	}
	if err := w.Discard(DraftsFile); err != nil {
		t.Errorf("discarding absent checkpoint: %v", err)
	}
}

func TestReservedNamesFiltered(t *testing.T) {
	w, err := Open(t.TempDir(), WithIndexFile("home.html"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"home.html", LedgerFile, CatalogFile, "home.html.bak.20240601120000"} {
		if w.Filter.Allows(name) {
			t.Errorf("%s should be reserved", name)
		}
	}
	for _, name := range []string{"notes.txt", "docs/home.html", "sub/" + LedgerFile, "old/home.html.bak.20240601120000"} {
		if !w.Filter.Allows(name) {
			t.Errorf("%s filtered, only root-level names are reserved", name)
		}
	}
}
