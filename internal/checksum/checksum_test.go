package checksum

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSumIsTagged(t *testing.T) {
	got := Sum([]byte("hello"))
	want := "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestFileMatchesSum(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, size, err := File(p)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != Sum([]byte("hello")) {
		t.Errorf("File = %q, want %q", got, Sum([]byte("hello")))
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
}

func TestFileMissing(t *testing.T) {
	got, _, err := File(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
	if got != Missing {
		t.Errorf("hash = %q, want %q", got, Missing)
	}
	if !strings.HasPrefix(got, Prefix) {
		t.Errorf("sentinel must carry the algorithm prefix")
	}
}
