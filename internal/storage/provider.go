// Package storage defines the document-root file-system abstraction.
package storage

import "github.com/starford/dms/internal/models"

// Provider is the interface for document-root file operations. Every path is
// a logical "./"-prefixed path or a plain path relative to the root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns the logical paths of every candidate file under dir.
	List(dir string, f Filter) ([]string, error)
	// Stat hashes the file at path. A vanished file yields a Missing hash
	// and an error wrapping fs.ErrNotExist.
	Stat(path string) (models.FileRef, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
