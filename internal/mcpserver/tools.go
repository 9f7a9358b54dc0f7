package mcpserver

import (
	"context"
	"fmt"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const maxTopK = 100

// newServer builds an MCP server with the memory and context tools bound
// to backend.
func newServer(name, version string, backend Backend, readOnly bool) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Long-term memory and live conversation context of a campus guide robot."),
	)
	t := tools{backend: backend}

	s.AddTool(mcp.NewTool("search_memory",
		mcp.WithDescription("Search long-term memories by relevance to a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free text to match")),
		mcp.WithNumber("top_k", mcp.Description("Maximum results"), mcp.Min(1), mcp.Max(maxTopK), mcp.DefaultNumber(memory.DefaultTopK)),
		mcp.WithString("memory_type", mcp.Description("Only return memories of this type")),
		mcp.WithString("student_id", mcp.Description("Only return memories about this student")),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.searchMemory)

	s.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the conversation state of a session."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.getSession)

	if readOnly {
		return s
	}

	s.AddTool(mcp.NewTool("insert_memory",
		mcp.WithDescription("Store a long-term memory."),
		mcp.WithString("text", mcp.Required(), mcp.MinLength(1)),
		mcp.WithString("memory_type", mcp.Required(), mcp.Description("For example fact, event or preference")),
		mcp.WithString("student_id", mcp.Description("Student the memory is about")),
		mcp.WithNumber("timestamp", mcp.Description("Unix seconds; defaults to now")),
	), t.insertMemory)

	s.AddTool(mcp.NewTool("update_context",
		mcp.WithDescription("Update who the robot is talking to, where it is and what it senses."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("student_id"),
		mcp.WithString("student_name"),
		mcp.WithString("location"),
		mcp.WithObject("environment_data", mcp.Description("Merged into the session environment")),
	), t.updateContext)

	return s
}

type tools struct {
	backend Backend
}

type searchResult struct {
	Count    int             `json:"count"`
	Memories []memory.Record `json:"memories"`
}

func (t tools) searchMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := memory.SearchOptions{
		TopK:       req.GetInt("top_k", memory.DefaultTopK),
		MemoryType: req.GetString("memory_type", ""),
		StudentID:  req.GetString("student_id", ""),
	}
	if opts.TopK < 1 {
		return mcp.NewToolResultError("top_k must be at least 1"), nil
	}

	records, err := t.backend.SearchMemory(ctx, query, opts)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("search failed", err), nil
	}
	if records == nil {
		records = []memory.Record{}
	}
	return jsonResult(searchResult{Count: len(records), Memories: records})
}

func (t tools) insertMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	memType, err := req.RequireString("memory_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := t.backend.InsertMemory(ctx, memory.Record{
		Text:       text,
		MemoryType: memType,
		StudentID:  req.GetString("student_id", ""),
		Timestamp:  int64(req.GetFloat("timestamp", 0)),
	})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("insert failed", err), nil
	}
	return jsonResult(rec)
}

func (t tools) getSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := t.backend.Session(id)
	if err != nil {
		return mcp.NewToolResultErrorFromErr(fmt.Sprintf("session %q", id), err), nil
	}
	return jsonResult(sess)
}

func (t tools) updateContext(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u := brain.ContextUpdate{
		SessionID:   id,
		StudentID:   req.GetString("student_id", ""),
		StudentName: req.GetString("student_name", ""),
		Location:    req.GetString("location", ""),
	}
	if env, ok := req.GetArguments()["environment_data"].(map[string]any); ok {
		u.Environment = env
	}

	sess, err := t.backend.UpdateContext(u)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("update failed", err), nil
	}
	return jsonResult(sess)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	res, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("encode result", err), nil
	}
	return res, nil
}
