package storage

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects candidate files during List.
type Filter struct {
	// Extensions is a lowercase allow-list including the dot. Empty allows all.
	Extensions []string
	// Exclude holds doublestar patterns matched against the slash path
	// relative to the root (no "./" prefix).
	Exclude []string
	// Reserved holds root-relative slash paths that are always skipped.
	// A file with the same name in a subdirectory is an ordinary file.
	Reserved []string
}

// Allows reports whether the relative slash path passes the filter.
func (f Filter) Allows(rel string) bool {
	if f.reserved(rel) {
		return false
	}
	if f.excluded(rel) {
		return false
	}
	if len(f.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(rel))
	for _, e := range f.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory should not be descended into.
func (f Filter) SkipDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	if strings.HasPrefix(path.Base(rel), ".") || f.reserved(rel) {
		return true
	}
	return f.excluded(rel) || f.excluded(rel+"/")
}

func (f Filter) reserved(rel string) bool {
	for _, r := range f.Reserved {
		if rel == r {
			return true
		}
	}
	return false
}

func (f Filter) excluded(rel string) bool {
	for _, pattern := range f.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
