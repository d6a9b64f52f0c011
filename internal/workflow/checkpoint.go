// Package workflow holds the checkpoints passed between pipeline stages and
// the state machine that guards the order in which stages may run.
package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/storage"
)

// ChangeReport is the scan result: files new, changed or missing relative
// to the ledger. The three lists are disjoint.
type ChangeReport struct {
	Timestamp    models.Timestamp `json:"timestamp"`
	NewFiles     []models.FileRef `json:"new_files"`
	ChangedFiles []models.FileRef `json:"changed_files"`
	MissingFiles []models.FileRef `json:"missing_files"`
}

// Pending returns new and changed files, in that order.
func (r *ChangeReport) Pending() []models.FileRef {
	out := make([]models.FileRef, 0, len(r.NewFiles)+len(r.ChangedFiles))
	out = append(out, r.NewFiles...)
	return append(out, r.ChangedFiles...)
}

// Empty reports whether nothing changed.
func (r *ChangeReport) Empty() bool {
	return len(r.NewFiles) == 0 && len(r.ChangedFiles) == 0 && len(r.MissingFiles) == 0
}

// PendingSummary is one generated (draft) or approved summary.
type PendingSummary struct {
	File      models.FileRef   `json:"file"`
	Summary   string           `json:"summary"`
	Category  string           `json:"category"`
	Title     string           `json:"title"`
	Timestamp models.Timestamp `json:"timestamp"`
}

// PendingSet is the shape shared by the drafts and approved checkpoints.
type PendingSet struct {
	Timestamp models.Timestamp `json:"timestamp"`
	Summaries []PendingSummary `json:"summaries"`
}

// Has reports whether path already has a summary in the set.
func (s *PendingSet) Has(path string) bool {
	return s.index(path) >= 0
}

// Put adds item, replacing any summary with the same path in place.
func (s *PendingSet) Put(item PendingSummary) {
	item.File.Path = models.NormalizePath(item.File.Path)
	if i := s.index(item.File.Path); i >= 0 {
		s.Summaries[i] = item
		return
	}
	s.Summaries = append(s.Summaries, item)
}

// Remove drops path and reports whether it was present.
func (s *PendingSet) Remove(path string) bool {
	i := s.index(path)
	if i < 0 {
		return false
	}
	s.Summaries = append(s.Summaries[:i], s.Summaries[i+1:]...)
	return true
}

// Len returns the number of summaries.
func (s *PendingSet) Len() int { return len(s.Summaries) }

func (s *PendingSet) index(path string) int {
	key := models.NormalizePath(path)
	for i, it := range s.Summaries {
		if models.NormalizePath(it.File.Path) == key {
			return i
		}
	}
	return -1
}

// load decodes name into v. It reports false when the file is absent or
// malformed; damage is logged and treated as absent.
func load(store storage.Provider, name string, v any, log *slog.Logger) bool {
	data, err := store.Read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("checkpoint unreadable", slog.String("file", name), slog.String("error", err.Error()))
		}
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn("checkpoint malformed, ignoring", slog.String("file", name), slog.String("error", err.Error()))
		return false
	}
	return true
}

func save(store storage.Provider, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workflow: marshal %s: %w", name, err)
	}
	if err := store.Write(name, append(data, '\n')); err != nil {
		return fmt.Errorf("workflow: save %s: %w", name, err)
	}
	return nil
}

// LoadReport reads a change report. ok is false when none is usable.
func LoadReport(store storage.Provider, name string, log *slog.Logger) (*ChangeReport, bool) {
	var r ChangeReport
	if !load(store, name, &r, log) {
		return &ChangeReport{}, false
	}
	normalizeRefs(r.NewFiles)
	normalizeRefs(r.ChangedFiles)
	normalizeRefs(r.MissingFiles)
	return &r, true
}

// SaveReport writes a change report.
func SaveReport(store storage.Provider, name string, r *ChangeReport) error {
	if r.NewFiles == nil {
		r.NewFiles = []models.FileRef{}
	}
	if r.ChangedFiles == nil {
		r.ChangedFiles = []models.FileRef{}
	}
	if r.MissingFiles == nil {
		r.MissingFiles = []models.FileRef{}
	}
	return save(store, name, r)
}

// LoadPending reads a drafts or approved checkpoint. A missing or damaged
// file yields an empty set with ok false.
func LoadPending(store storage.Provider, name string, log *slog.Logger) (*PendingSet, bool) {
	var s PendingSet
	if !load(store, name, &s, log) {
		return &PendingSet{Summaries: []PendingSummary{}}, false
	}
	for i := range s.Summaries {
		s.Summaries[i].File.Path = models.NormalizePath(s.Summaries[i].File.Path)
	}
	if s.Summaries == nil {
		s.Summaries = []PendingSummary{}
	}
	return &s, true
}

// SavePending writes a drafts or approved checkpoint.
func SavePending(store storage.Provider, name string, s *PendingSet) error {
	if s.Summaries == nil {
		s.Summaries = []PendingSummary{}
	}
	return save(store, name, s)
}

func normalizeRefs(refs []models.FileRef) {
	for i := range refs {
		refs[i].Path = models.NormalizePath(refs[i].Path)
	}
}
