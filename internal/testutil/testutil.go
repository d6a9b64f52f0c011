// Package testutil provides shared test helpers for setting up document roots and catalogs.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/dms/internal/catalog"
	"github.com/starford/dms/internal/storage"
	"github.com/starford/dms/internal/workspace"
)

// Epoch is the instant returned by Clock.
var Epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Clock returns a clock that advances one second per reading, starting at Epoch.
func Clock() func() time.Time {
	t := Epoch
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestWorkspace creates a temporary document root holding files.
func TestWorkspace(t *testing.T, files map[string]string, opts ...workspace.Option) *workspace.Workspace {
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
	base := []workspace.Option{
		workspace.WithLogger(Logger()),
		workspace.WithClock(Clock()),
		workspace.WithFilter(storage.Filter{Extensions: []string{".txt", ".md", ".pdf", ".xlsx", ".png", ".jpg"}}),
	}
	ws, err := workspace.Open(dir, append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

// TestCatalog opens a temporary SQLite catalog that is automatically closed.
func TestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
