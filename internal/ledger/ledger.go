// Package ledger holds the authoritative per-document metadata store.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/storage"
)

// Metadata carries run bookkeeping alongside the documents.
type Metadata struct {
	LastScan             models.Timestamp `json:"last_scan"`
	LastApply            models.Timestamp `json:"last_apply"`
	MigratedFromEmbedded bool             `json:"migrated_from_embedded,omitempty"`
	MigrationDate        models.Timestamp `json:"migration_date"`
	BootstrapVersion     string           `json:"bootstrap_version,omitempty"`
	LastRunID            string           `json:"last_run_id,omitempty"`
}

// Ledger maps logical paths to entries.
type Ledger struct {
	Documents  map[string]models.Entry `json:"documents"`
	Categories []string                `json:"categories"`
	Metadata   Metadata                `json:"metadata"`
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{Documents: map[string]models.Entry{}, Categories: []string{}}
}

// Len returns the number of tracked documents.
func (l *Ledger) Len() int { return len(l.Documents) }

// Get returns the entry stored for path.
func (l *Ledger) Get(path string) (models.Entry, bool) {
	e, ok := l.Documents[models.NormalizePath(path)]
	return e, ok
}

// Merge is the explicit update path for a document: it stores e under path
// and returns the entry it replaced, if any, so callers can report it.
func (l *Ledger) Merge(path string, e models.Entry) (models.Entry, bool) {
	if l.Documents == nil {
		l.Documents = map[string]models.Entry{}
	}
	key := models.NormalizePath(path)
	prev, ok := l.Documents[key]
	l.Documents[key] = e
	return prev, ok
}

// Remove deletes path and reports whether it was tracked.
func (l *Ledger) Remove(path string) bool {
	key := models.NormalizePath(path)
	if _, ok := l.Documents[key]; !ok {
		return false
	}
	delete(l.Documents, key)
	return true
}

// Paths returns every tracked path in sorted order.
func (l *Ledger) Paths() []string {
	out := make([]string, 0, len(l.Documents))
	for p := range l.Documents {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ByCategory groups the sorted paths by entry category.
func (l *Ledger) ByCategory() map[string][]string {
	out := map[string][]string{}
	for _, p := range l.Paths() {
		c := l.Documents[p].Category
		out[c] = append(out[c], p)
	}
	return out
}

// RecomputeCategories rebuilds the derived category set from the entries
// plus any extra labels, such as the sections present in the document.
func (l *Ledger) RecomputeCategories(extra ...string) {
	set := map[string]struct{}{}
	for _, e := range l.Documents {
		if c := strings.TrimSpace(e.Category); c != "" {
			set[c] = struct{}{}
		}
	}
	for _, c := range extra {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	l.Categories = make([]string, 0, len(set))
	for c := range set {
		l.Categories = append(l.Categories, c)
	}
	sort.Strings(l.Categories)
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Documents:  make(map[string]models.Entry, len(l.Documents)),
		Categories: append([]string{}, l.Categories...),
		Metadata:   l.Metadata,
	}
	for k, v := range l.Documents {
		c.Documents[k] = v
	}
	return c
}

// Marshal encodes the ledger as indented JSON.
func (l *Ledger) Marshal() ([]byte, error) {
	if l.Documents == nil {
		l.Documents = map[string]models.Entry{}
	}
	if l.Categories == nil {
		l.Categories = []string{}
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a ledger and normalizes its keys.
func Unmarshal(data []byte) (*Ledger, error) {
	l := New()
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("ledger: decode: %w", err)
	}
	l.normalize()
	return l, nil
}

func (l *Ledger) normalize() {
	docs := make(map[string]models.Entry, len(l.Documents))
	for p, e := range l.Documents {
		if key := models.NormalizePath(p); key != "" {
			docs[key] = e
		}
	}
	l.Documents = docs
	if l.Categories == nil {
		l.Categories = []string{}
	}
}

// Exists reports whether the ledger file is present.
func Exists(store storage.Provider, name string) bool {
	return store.Exists(name)
}

// Load reads the ledger file. A missing file yields an empty ledger; a
// malformed one logs a warning and also yields an empty ledger.
func Load(store storage.Provider, name string, log *slog.Logger) *Ledger {
	data, err := store.Read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("ledger unreadable, starting empty", slog.String("file", name), slog.String("error", err.Error()))
		}
		return New()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return New()
	}
	l, err := Unmarshal(data)
	if err != nil {
		log.Warn("ledger malformed, starting empty", slog.String("file", name), slog.String("error", err.Error()))
		return New()
	}
	return l
}

// Save writes the ledger atomically.
func Save(store storage.Provider, name string, l *Ledger) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	if err := store.Write(name, data); err != nil {
		return fmt.Errorf("ledger: save: %w", err)
	}
	return nil
}
