// Package docservice is the read-side shared by the preview API and the MCP
// server. The ledger is authoritative for single-document lookups; listing
// and search go through the catalog.
package docservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/catalog"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/status"
	"github.com/starford/dms/internal/workspace"
)

// DocumentDetail is one ledger entry plus the state of its file on disk.
type DocumentDetail struct {
	Path          string    `json:"path"`
	Title         string    `json:"title"`
	DisplayTitle  string    `json:"display_title"`
	Category      string    `json:"category"`
	Summary       string    `json:"summary"`
	Hash          string    `json:"hash"`
	Type          string    `json:"type"`
	LastProcessed time.Time `json:"last_processed"`
	Approved      bool      `json:"summary_approved"`
	Exists        bool      `json:"exists"`
	Size          int64     `json:"size"`
	Modified      bool      `json:"modified"`
}

// Service answers document queries for one workspace.
type Service struct {
	ws  *workspace.Workspace
	cat *catalog.Catalog
}

// New creates a Service.
func New(ws *workspace.Workspace, cat *catalog.Catalog) *Service {
	return &Service{ws: ws, cat: cat}
}

// Refresh re-syncs the catalog from the ledger.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cat.Sync(ctx, s.ws.LoadLedger())
}

// GetDocument returns the entry at path.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	key := models.NormalizePath(path)
	e, ok := s.ws.LoadLedger().Get(key)
	if !ok {
		return nil, fmt.Errorf("docservice: %s: %w", key, apperr.ErrNotFound)
	}
	d := &DocumentDetail{
		Path:          key,
		Title:         e.Title,
		DisplayTitle:  models.DisplayTitle(e.Title),
		Category:      e.Category,
		Summary:       e.Summary,
		Hash:          e.Hash,
		Type:          models.TypeLabel(key),
		LastProcessed: e.LastProcessed.Time,
		Approved:      e.SummaryApproved,
	}
	ref, err := s.ws.Store.Stat(key)
	switch {
	case err == nil:
		d.Exists = true
		d.Size = ref.Size
		d.Modified = ref.Hash != e.Hash
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("docservice: stat %s: %w", key, err)
	}
	return d, nil
}

// ListDocuments returns one page of catalogued documents.
func (s *Service) ListDocuments(ctx context.Context, category string, limit, offset int) ([]catalog.Document, int, error) {
	return s.cat.List(ctx, category, limit, offset)
}

// Search matches query against the catalog.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]catalog.Hit, error) {
	return s.cat.Search(ctx, query, limit)
}

// Categories returns per-category document counts.
func (s *Service) Categories(ctx context.Context) ([]catalog.CategoryCount, error) {
	return s.cat.Categories(ctx)
}

// Runs returns recent document rewrites.
func (s *Service) Runs(ctx context.Context, limit int) ([]models.ApplyRun, error) {
	return s.cat.Runs(ctx, limit)
}

// Status builds the workspace status report.
func (s *Service) Status(_ context.Context) *status.Report {
	return status.Build(s.ws)
}

// Root returns the document root directory.
func (s *Service) Root() string { return s.ws.Root() }

// IndexFile returns the rendered document's name relative to the root.
func (s *Service) IndexFile() string { return s.ws.IndexFile }
