package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dms/internal/docservice"
	"github.com/starford/dms/internal/ledger"
	"github.com/starford/dms/internal/models"
	"github.com/starford/dms/internal/testutil"
	"github.com/starford/dms/internal/workflow"
	"github.com/starford/dms/internal/workspace"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	ws := testutil.TestWorkspace(t, map[string]string{"setup.txt": "steps"})
	l := ledger.New()
	l.Merge("./setup.txt", models.Entry{Category: "Guides", Title: "setup", Summary: "Install the toolkit"})
	l.Merge("./run.sh", models.Entry{Category: "Scripts", Title: "run", Summary: "Launcher"})
	if err := ws.SaveLedger(l); err != nil {
		t.Fatal(err)
	}
	_ = workflow.SaveReport(ws.Store, workspace.ReportFile, &workflow.ChangeReport{
		NewFiles: []models.FileRef{{Path: "./new.txt"}},
	})
	svc := docservice.New(ws, testutil.TestCatalog(t))
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(svc, "test")
}

// callTool dispatches to the handler directly; mcp-go has no in-process
// call helper.
func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "get_document":
		result, err = srv.getDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "workflow_status":
		result, err = srv.workflowStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchDocuments(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "search_documents", map[string]any{"query": "toolkit"})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	var hits []map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0]["path"] != "./setup.txt" {
		t.Errorf("hits = %v", hits)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := testServer(t)
	if r := callTool(t, srv, "search_documents", map[string]any{}); !r.IsError {
		t.Error("expected error without query")
	}
}

func TestGetDocument(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_document", map[string]any{"path": "setup.txt"})
	if !strings.Contains(resultText(r), `"category": "Guides"`) {
		t.Errorf("result = %s", resultText(r))
	}
	if r := callTool(t, srv, "get_document", map[string]any{"path": "nope.txt"}); !r.IsError {
		t.Error("expected error for untracked document")
	}
}

func TestListDocumentsByCategory(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_documents", map[string]any{"category": "Scripts"})
	var docs []map[string]any
	_ = json.Unmarshal([]byte(resultText(r)), &docs)
	if len(docs) != 1 || docs[0]["path"] != "./run.sh" {
		t.Errorf("docs = %v", docs)
	}
}

func TestWorkflowStatus(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "workflow_status", nil)
	var st map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatal(err)
	}
	if st["state"] != "scanned" || st["documents"] != float64(2) {
		t.Errorf("status = %v", st)
	}
}
