package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
)

// GetTaskProgressTool handles the get_task_progress MCP tool.
type GetTaskProgressTool struct {
	engine *lifecycle.Engine
}

// NewGetTaskProgressTool creates a GetTaskProgressTool.
func NewGetTaskProgressTool(engine *lifecycle.Engine) *GetTaskProgressTool {
	return &GetTaskProgressTool{engine: engine}
}

// Definition returns the MCP tool definition for get_task_progress.
func (t *GetTaskProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("get_task_progress",
		mcp.WithDescription(
			"Get a task with its full progress history (oldest first) and verification record.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID to retrieve"),
		),
	)
}

// Handle processes the get_task_progress tool call.
func (t *GetTaskProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tk, err := t.engine.Get(ctx, stringArg(req, "task_id"))
	if err != nil {
		return failure(err)
	}
	return jsonResult(map[string]any{
		"task":           tk,
		"progress_count": len(tk.ProgressUpdates),
		"is_verified":    tk.Verification != nil,
	})
}
