// Package review promotes drafted summaries to the approved checkpoint,
// either interactively or driven by flags.
package review

import (
	"fmt"
	"strings"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

// Edit overrides the non-empty fields of a draft on approval.
type Edit struct {
	Summary  string
	Category string
	Title    string
}

func (e Edit) apply(item workflow.PendingSummary) workflow.PendingSummary {
	if s := strings.TrimSpace(e.Summary); s != "" {
		item.Summary = s
	}
	if c := strings.TrimSpace(e.Category); c != "" {
		item.Category = c
	}
	if t := strings.TrimSpace(e.Title); t != "" {
		item.Title = t
	}
	return item
}

// Session holds the drafts under review and the approved set they move to.
// Nothing is written until Save.
type Session struct {
	ws       *workspace.Workspace
	drafts   *workflow.PendingSet
	approved *workflow.PendingSet
	rejected int
}

// Open starts a session. It fails with apperr.ErrNoCheckpoint when there is
// nothing to review.
func Open(ws *workspace.Workspace) (*Session, error) {
	drafts, err := workflow.ForReview(ws)
	if err != nil {
		return nil, err
	}
	approved, _ := workflow.LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	return &Session{ws: ws, drafts: drafts, approved: approved}, nil
}

// Drafts returns the summaries still awaiting a decision.
func (s *Session) Drafts() []workflow.PendingSummary {
	return append([]workflow.PendingSummary(nil), s.drafts.Summaries...)
}

// Approved returns the number of approved summaries.
func (s *Session) Approved() int { return s.approved.Len() }

// Rejected returns the number of drafts rejected in this session.
func (s *Session) Rejected() int { return s.rejected }

func (s *Session) find(path string) (workflow.PendingSummary, error) {
	key := models.NormalizePath(path)
	for _, it := range s.drafts.Summaries {
		if it.File.Path == key {
			return it, nil
		}
	}
	return workflow.PendingSummary{}, fmt.Errorf("review: no draft for %s: %w", key, apperr.ErrNotFound)
}

// Approve moves the draft for path to the approved set with edit applied.
func (s *Session) Approve(path string, edit Edit) error {
	item, err := s.find(path)
	if err != nil {
		return err
	}
	s.drafts.Remove(item.File.Path)
	s.approved.Put(edit.apply(item))
	return nil
}

// Reject drops the draft for path. The file stays in the change report, so
// the next summarize run drafts it again.
func (s *Session) Reject(path string) error {
	item, err := s.find(path)
	if err != nil {
		return err
	}
	s.drafts.Remove(item.File.Path)
	s.rejected++
	return nil
}

// ApproveAll approves every remaining draft unchanged.
func (s *Session) ApproveAll() int {
	n := 0
	for _, it := range s.Drafts() {
		if s.Approve(it.File.Path, Edit{}) == nil {
			n++
		}
	}
	return n
}

// Save writes the approved set and the remaining drafts. An emptied drafts
// checkpoint is discarded.
func (s *Session) Save() error {
	now := models.NewTimestamp(s.ws.Now())
	if s.approved.Len() > 0 {
		s.approved.Timestamp = now
		if err := workflow.SavePending(s.ws.Store, workspace.ApprovedFile, s.approved); err != nil {
			return err
		}
	}
	if s.drafts.Len() == 0 {
		return s.ws.Discard(workspace.DraftsFile)
	}
	s.drafts.Timestamp = now
	return workflow.SavePending(s.ws.Store, workspace.DraftsFile, s.drafts)
}

// Options drives a non-interactive review. Reject and Edits are applied
// before ApproveAll.
type Options struct {
	ApproveAll bool
	Approve    []string
	Reject     []string
	Edits      map[string]Edit
}

// Result summarizes a review.
type Result struct {
	Approved  int
	Rejected  int
	Remaining int
}

// Apply runs a non-interactive review and saves it.
func (s *Session) Apply(opts Options) (*Result, error) {
	for _, p := range opts.Reject {
		if err := s.Reject(p); err != nil {
			return nil, err
		}
	}
	for p, e := range opts.Edits {
		if err := s.Approve(p, e); err != nil {
			return nil, err
		}
	}
	for _, p := range opts.Approve {
		if err := s.Approve(p, Edit{}); err != nil {
			return nil, err
		}
	}
	if opts.ApproveAll {
		s.ApproveAll()
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return &Result{Approved: s.approved.Len(), Rejected: s.rejected, Remaining: s.drafts.Len()}, nil
}
