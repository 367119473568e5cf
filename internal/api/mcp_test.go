package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rlmlab/rlmtrace/internal/engine"
	"github.com/rlmlab/rlmtrace/internal/recorder"
	"github.com/rlmlab/rlmtrace/internal/store"
	"github.com/rlmlab/rlmtrace/internal/trace"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	s := store.New(t.TempDir())
	rec := recorder.New(s)
	if _, err := rec.Record(engine.RunResult{
		Steps: []engine.Step{
			{Reasoning: "look", Code: "print(len(x))", Output: "10"},
			{Code: `SUBMIT("10")`, Output: ""},
		},
		Answer: "10",
	}, "demo-run", "gpt-4o-mini", "How many rows?", nil); err != nil {
		t.Fatalf("seeding trace: %v", err)
	}
	return MCPDeps{Traces: s}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_ListRuns(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpListRuns(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_runs", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var runs []trace.Summary
	if err := json.Unmarshal([]byte(toolText(t, result)), &runs); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "demo-run" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestMCPTool_ListRunsEmpty(t *testing.T) {
	deps := MCPDeps{Traces: store.New(t.TempDir())}
	handler := mcpListRuns(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_runs", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
}

func TestMCPTool_GetTrace(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpGetTrace(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_trace", map[string]interface{}{
		"run_id": "demo-run",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var tr trace.Trace
	if err := json.Unmarshal([]byte(toolText(t, result)), &tr); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if tr.RunID != "demo-run" || len(tr.Iterations) != 2 {
		t.Fatalf("unexpected trace: %+v", tr)
	}
	if !tr.Iterations[1].IsFinal {
		t.Error("submit step not marked final")
	}
}

func TestMCPTool_GetTrace_Absent(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpGetTrace(deps)

	for _, runID := range []string{"missing", "../../etc/passwd"} {
		result, err := handler(context.Background(), makeCallToolRequest("get_trace", map[string]interface{}{
			"run_id": runID,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Errorf("get_trace(%q) should be a tool error", runID)
		}
		if !strings.Contains(toolText(t, result), "no trace") {
			t.Errorf("unexpected message: %s", toolText(t, result))
		}
	}
}

func TestMCPTool_GetTrace_MissingArg(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpGetTrace(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_trace", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("missing run_id should be a tool error")
	}
}

func TestMCPResource_Runs(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpResourceRuns(deps)

	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "traces://runs"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if !strings.Contains(tc.Text, "demo-run") {
		t.Errorf("resource missing run: %s", tc.Text)
	}
}
