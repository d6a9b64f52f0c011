// Package models defines the domain types shared by the pipeline stages.
package models

import (
	"path"
	"path/filepath"
	"strings"
)

// FileRef identifies one file observed by a scan.
type FileRef struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Entry is the ledger record for one tracked file.
type Entry struct {
	Hash            string    `json:"hash"`
	Category        string    `json:"category"`
	Summary         string    `json:"summary"`
	Title           string    `json:"title"`
	LastProcessed   Timestamp `json:"last_processed"`
	SummaryApproved bool      `json:"summary_approved"`
}

// NormalizePath converts a relative path into the logical form used as the
// ledger key: forward slashes, cleaned, "./" prefixed.
func NormalizePath(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." {
		return ""
	}
	return "./" + strings.TrimPrefix(p, "./")
}

// RelPath strips the logical "./" prefix and returns a system-native path
// relative to the document root.
func RelPath(logical string) string {
	return filepath.FromSlash(strings.TrimPrefix(NormalizePath(logical), "./"))
}

// Stem returns the file name without its final extension.
func Stem(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Ext returns the lowercase extension including the dot.
func Ext(p string) string {
	return strings.ToLower(path.Ext(filepath.ToSlash(p)))
}

// DisplayTitle turns a filename-derived title into readable text.
func DisplayTitle(title string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(title)
}

// TypeLabel is the short uppercase file type shown next to an entry.
func TypeLabel(p string) string {
	ext := strings.ToUpper(strings.TrimPrefix(Ext(p), "."))
	switch ext {
	case "TEXT":
		return "TXT"
	case "":
		return "FILE"
	}
	return ext
}
