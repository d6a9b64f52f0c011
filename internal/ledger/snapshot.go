package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/starford/dms/internal/models"
)

// legacySnapshot is the embedded-only layout written before the ledger
// moved to its own file.
type legacySnapshot struct {
	ProcessedFiles map[string]legacyEntry `json:"processed_files"`
	Categories     []string               `json:"categories"`
	LastScan       models.Timestamp       `json:"last_scan"`
	BootstrapVer   string                 `json:"bootstrap_version"`
}

type legacyEntry struct {
	Hash            string           `json:"hash"`
	Category        string           `json:"category"`
	Summary         string           `json:"summary"`
	Description     string           `json:"description"`
	Title           string           `json:"title"`
	LastProcessed   models.Timestamp `json:"last_processed"`
	SummaryApproved *bool            `json:"summary_approved"`
}

// DecodeSnapshot decodes an embedded snapshot in either the current or the
// legacy layout. legacy is true for the latter; legacy entries carry no
// category, the caller resolves one from the document.
func DecodeSnapshot(data []byte) (l *Ledger, legacy bool, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	if _, ok := probe["documents"]; ok {
		l, err := Unmarshal(data)
		return l, false, err
	}
	if _, ok := probe["processed_files"]; !ok {
		return nil, false, fmt.Errorf("ledger: decode snapshot: no documents or processed_files")
	}

	var old legacySnapshot
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, true, fmt.Errorf("ledger: decode legacy snapshot: %w", err)
	}
	l = New()
	l.Categories = append(l.Categories, old.Categories...)
	l.Metadata.LastScan = old.LastScan
	l.Metadata.BootstrapVersion = old.BootstrapVer
	for p, e := range old.ProcessedFiles {
		summary := e.Description
		if summary == "" {
			summary = e.Summary
		}
		title := e.Title
		if title == "" {
			title = models.Stem(p)
		}
		approved := true
		if e.SummaryApproved != nil {
			approved = *e.SummaryApproved
		}
		l.Merge(p, models.Entry{
			Hash:            e.Hash,
			Category:        e.Category,
			Summary:         summary,
			Title:           title,
			LastProcessed:   e.LastProcessed,
			SummaryApproved: approved,
		})
	}
	return l, true, nil
}

// EncodeSnapshot encodes the ledger compactly for embedding. The encoder
// escapes <, > and & so the payload can never close an HTML comment.
func EncodeSnapshot(l *Ledger) ([]byte, error) {
	if l.Documents == nil {
		l.Documents = map[string]models.Entry{}
	}
	if l.Categories == nil {
		l.Categories = []string{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	return data, nil
}
