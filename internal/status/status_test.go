package status

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/testutil"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

func TestBuildEmptyRoot(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	r := Build(ws)
	if r.LedgerPresent || r.IndexPresent || r.Documents != 0 {
		t.Errorf("report = %+v", r)
	}
	if r.State != "clean" || r.LastScan != nil {
		t.Errorf("state = %q last_scan = %v", r.State, r.LastScan)
	}
}

func TestBuildCountsAndState(t *testing.T) {
	ws := testutil.TestWorkspace(t, map[string]string{"index.html": "<html></html>"})
	l := ledger.New()
	l.Merge("./a.txt", models.Entry{Category: "Guides", Summary: "a"})
	l.Merge("./b.txt", models.Entry{Category: "Guides"})
	l.Merge("./c.sh", models.Entry{Category: "Scripts", Summary: "c"})
	l.Metadata.LastApply = models.NewTimestamp(testutil.Epoch)
	l.Metadata.MigratedFromEmbedded = true
	if err := ws.SaveLedger(l); err != nil {
		t.Fatal(err)
	}
	_ = workflow.SavePending(ws.Store, workspace.DraftsFile, &workflow.PendingSet{
		Summaries: []workflow.PendingSummary{{File: models.FileRef{Path: "./d.txt"}}},
	})

	r := Build(ws)
	if r.Documents != 3 || r.WithSummaries != 2 {
		t.Errorf("documents = %d summaries = %d", r.Documents, r.WithSummaries)
	}
	if len(r.Categories) != 2 || r.Categories[0].Name != "Guides" || r.Categories[0].Documents != 2 {
		t.Errorf("categories = %+v", r.Categories)
	}
	if r.State != "drafted" || r.Pending.Drafts != 1 || !strings.Contains(r.Next, "review") {
		t.Errorf("state = %q next = %q pending = %+v", r.State, r.Next, r.Pending)
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["migrated_from_embedded"] != true || decoded["last_scan"] != nil {
		t.Errorf("json = %s", buf.String())
	}

	buf.Reset()
	if err := WriteText(&buf, r); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Guides", "drafted", "embedded state"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestNextSuggestsCleanupForMissingOnly(t *testing.T) {
	ws := testutil.TestWorkspace(t, nil)
	_ = workflow.SaveReport(ws.Store, workspace.ReportFile, &workflow.ChangeReport{
		MissingFiles: []models.FileRef{{Path: "./gone.txt"}},
	})
	if r := Build(ws); !strings.Contains(r.Next, "cleanup") {
		t.Errorf("next = %q", r.Next)
	}
}
