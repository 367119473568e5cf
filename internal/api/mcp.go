package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rlmlab/rlmtrace/internal/trace"
)

// TraceReader abstracts the store's read path for the MCP layer.
type TraceReader interface {
	List() []trace.Summary
	Load(runID string) (trace.Trace, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Traces TraceReader
}

// NewMCPServer creates an MCP server exposing the stored traces as tools
// and resources, so an agent client can browse recorded runs.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"rlmtrace",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rlmtrace — recorded RLM run traces: list them, then fetch one by run id."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List recorded RLM runs with summary metadata."),
		),
		mcpListRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("get_trace",
			mcp.WithDescription("Fetch the full trace of one recorded run."),
			mcp.WithString("run_id", mcp.Description("Run identifier from list_runs"), mcp.Required()),
		),
		mcpGetTrace(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"traces://runs",
			"Recorded Runs",
			mcp.WithResourceDescription("Summaries of all recorded RLM runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRuns(deps),
	)

	return s
}

func mcpListRuns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runs := deps.Traces.List()
		if len(runs) == 0 {
			return mcpText("[]"), nil
		}
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpGetTrace(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		t, err := deps.Traces.Load(runID)
		if err != nil {
			return mcpError(fmt.Sprintf("no trace for run %q", runID)), nil
		}
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal trace: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpResourceRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(deps.Traces.List(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshalling runs: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
