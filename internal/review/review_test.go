package review

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/dms/internal/apperr"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/testutil"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

func seedDrafts(t *testing.T, ws *workspace.Workspace, paths ...string) {
	t.Helper()
	set := &workflow.PendingSet{}
	for _, p := range paths {
		set.Put(workflow.PendingSummary{
			File:     models.FileRef{Path: p, Hash: "sha256:" + p},
			Summary:  "draft for " + p,
			Category: "Guides",
			Title:    models.Stem(p),
		})
	}
	if err := workflow.SavePending(ws.Store, workspace.DraftsFile, set); err != nil {
		t.Fatal(err)
	}
}

func TestOpenWithoutDrafts(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	if _, err := Open(ws); !errors.Is(err, apperr.ErrNoCheckpoint) {
		t.Fatalf("err = %v, want ErrNoCheckpoint", err)
	}
}

func TestApplyApproveAll(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	seedDrafts(t, ws, "./a.txt", "./b.txt")
	s, err := Open(ws)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Apply(Options{ApproveAll: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Approved != 2 || res.Remaining != 0 {
		t.Errorf("res = %+v", res)
	}
	if ws.Store.Exists(workspace.DraftsFile) {
		t.Error("drafts checkpoint should be discarded once empty")
	}
	approved, ok := workflow.LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	if !ok || approved.Len() != 2 {
		t.Fatalf("approved = %d", approved.Len())
	}
}

func TestApplyEditRejectAndKeep(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	seedDrafts(t, ws, "./a.txt", "./b.txt", "./c.txt")
	s, _ := Open(ws)
	res, err := s.Apply(Options{
		Reject: []string{"b.txt"},
		Edits:  map[string]Edit{"./a.txt": {Category: "Scripts", Summary: "  edited  "}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Approved != 1 || res.Rejected != 1 || res.Remaining != 1 {
		t.Errorf("res = %+v", res)
	}
	approved, _ := workflow.LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	got := approved.Summaries[0]
	if got.Category != "Scripts" || got.Summary != "edited" || got.Title != "a" {
		t.Errorf("approved = %+v", got)
	}
	drafts, _ := workflow.LoadPending(ws.Store, workspace.DraftsFile, ws.Log)
	if drafts.Len() != 1 || !drafts.Has("./c.txt") {
		t.Errorf("drafts = %+v", drafts.Summaries)
	}
}

func TestApplyUnknownPath(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	seedDrafts(t, ws, "./a.txt")
	s, _ := Open(ws)
	if _, err := s.Apply(Options{Reject: []string{"./zzz.txt"}}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelDecisions(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	seedDrafts(t, ws, "./a.txt", "./b.txt", "./c.txt")
	s, _ := Open(ws)

	var m tea.Model = NewModel(s)
	m, _ = m.Update(key("c"))
	cur := m.(Model)
	if cur.editing != fieldCategory || cur.input.Value() != "Guides" {
		t.Fatalf("editing = %v value = %q", cur.editing, cur.input.Value())
	}
	cur.input.SetValue("Models")
	m, _ = cur.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(key("a"))
	m, _ = m.Update(key("r"))
	m, cmd := m.Update(key("s"))
	if !m.(Model).done || cmd == nil {
		t.Fatal("model should quit after the last draft")
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	approved, _ := workflow.LoadPending(ws.Store, workspace.ApprovedFile, ws.Log)
	if approved.Len() != 1 || approved.Summaries[0].Category != "Models" {
		t.Errorf("approved = %+v", approved.Summaries)
	}
	drafts, _ := workflow.LoadPending(ws.Store, workspace.DraftsFile, ws.Log)
	if drafts.Len() != 1 || !drafts.Has("./c.txt") {
		t.Errorf("drafts = %+v", drafts.Summaries)
	}
	if s.Rejected() != 1 {
		t.Errorf("rejected = %d", s.Rejected())
	}
}
