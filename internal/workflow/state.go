package workflow

import (
	"fmt"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/workspace"
)

// State is the pipeline position derived from the checkpoints on disk.
type State int

const (
	Clean State = iota
	Scanned
	Drafted
	Approved
	Applied
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Scanned:
		return "scanned"
	case Drafted:
		return "drafted"
	case Approved:
		return "approved"
	case Applied:
		return "applied"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Next describes the stage an operator should run from s.
func (s State) Next() string {
	switch s {
	case Clean:
		return "run scan to detect new or changed files"
	case Scanned:
		return "run summarize to draft summaries for the change report"
	case Drafted:
		return "run review to approve or edit the drafts"
	case Approved:
		return "run apply to merge approved entries into the index"
	default:
		return "run scan after adding or editing files"
	}
}

// Detect inspects the checkpoints present in the workspace. The furthest
// checkpoint present wins.
func Detect(ws *workspace.Workspace, l *ledger.Ledger) State {
	switch {
	case ws.Store.Exists(workspace.ApprovedFile):
		return Approved
	case ws.Store.Exists(workspace.DraftsFile):
		return Drafted
	case ws.Store.Exists(workspace.ReportFile):
		return Scanned
	case l != nil && !l.Metadata.LastApply.IsZero():
		return Applied
	}
	return Clean
}

// ForSummarize returns the change report Summarize consumes. A report written
// before the last apply is stale.
func ForSummarize(ws *workspace.Workspace, l *ledger.Ledger) (*ChangeReport, error) {
	r, ok := LoadReport(ws.Store, workspace.ReportFile, ws.Log)
	if !ok {
		return nil, fmt.Errorf("workflow: summarize needs a change report, run scan first: %w", apperr.ErrNoCheckpoint)
	}
	if last := l.Metadata.LastApply; !last.IsZero() && r.Timestamp.Before(last.Time) {
		return nil, fmt.Errorf("workflow: change report from %s predates last apply %s, rescan: %w",
			r.Timestamp.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"), apperr.ErrStaleCheckpoint)
	}
	return r, nil
}

// ForReview returns the drafts Review consumes.
func ForReview(ws *workspace.Workspace) (*PendingSet, error) {
	s, ok := LoadPending(ws.Store, workspace.DraftsFile, ws.Log)
	if !ok || s.Len() == 0 {
		return nil, fmt.Errorf("workflow: review needs drafts, run summarize first: %w", apperr.ErrNoCheckpoint)
	}
	return s, nil
}

// ForApply returns the approved set Apply consumes.
func ForApply(ws *workspace.Workspace) (*PendingSet, error) {
	s, ok := LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	if !ok || s.Len() == 0 {
		return nil, fmt.Errorf("workflow: apply needs approved summaries, run review first: %w", apperr.ErrNoCheckpoint)
	}
	return s, nil
}
