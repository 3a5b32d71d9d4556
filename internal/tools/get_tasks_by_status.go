package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/task"
)

// GetTasksByStatusTool handles the get_tasks_by_status MCP tool.
type GetTasksByStatusTool struct {
	engine *lifecycle.Engine
}

// NewGetTasksByStatusTool creates a GetTasksByStatusTool.
func NewGetTasksByStatusTool(engine *lifecycle.Engine) *GetTasksByStatusTool {
	return &GetTasksByStatusTool{engine: engine}
}

// Definition returns the MCP tool definition for get_tasks_by_status.
func (t *GetTasksByStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_tasks_by_status",
		mcp.WithDescription(
			"List tasks whose current status is one of the given statuses, most recently updated first.",
		),
		mcp.WithArray("statuses",
			mcp.Required(),
			mcp.Description("Status values to match"),
			mcp.Items(map[string]any{"type": "string", "enum": statusNames()}),
		),
		mcp.WithString("channel",
			mcp.Description("Only tasks linked to this channel. 'slack_channel' is accepted too."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tasks to return (default 50, max 100)"),
			mcp.Min(1),
			mcp.Max(store.MaxListLimit),
		),
	)
}

// Handle processes the get_tasks_by_status tool call.
func (t *GetTasksByStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses, ok, err := stringsArg(req, "statuses")
	if err != nil {
		return failure(err)
	}
	if !ok || len(statuses) == 0 {
		return failure(task.Invalid("statuses", "at least one status is required"))
	}
	limit, err := intArg(req, store.DefaultListLimit, "limit")
	if err != nil {
		return failure(err)
	}

	tasks, err := t.engine.List(ctx, lifecycle.ListInput{
		Statuses: statuses,
		Channel:  stringArg(req, "channel", "slack_channel"),
		Limit:    limit,
	})
	if err != nil {
		return failure(err)
	}
	return jsonResult(map[string]any{
		"count": len(tasks),
		"tasks": tasks,
	})
}
