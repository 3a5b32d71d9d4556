package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
)

// AddProgressUpdateTool handles the add_progress_update MCP tool.
type AddProgressUpdateTool struct {
	engine *lifecycle.Engine
}

// NewAddProgressUpdateTool creates an AddProgressUpdateTool.
func NewAddProgressUpdateTool(engine *lifecycle.Engine) *AddProgressUpdateTool {
	return &AddProgressUpdateTool{engine: engine}
}

// Definition returns the MCP tool definition for add_progress_update.
func (t *AddProgressUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("add_progress_update",
		mcp.WithDescription(
			"Append a progress note to a task's log. The task's updated_at moves with the note. "+
				"Status is not changed; use update_task_status for that.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID the note belongs to"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Update content"),
		),
		mcp.WithString("source",
			mcp.Description("Where the note came from (default: agent)"),
			mcp.Enum("slack", "agent", "manual"),
		),
		mcp.WithNumber("sentiment_score",
			mcp.Description("Sentiment from -1 (negative) to 1 (positive)"),
			mcp.Min(-1),
			mcp.Max(1),
		),
		mcp.WithString("agent_analysis",
			mcp.Description("Agent analysis of the note"),
		),
		mcp.WithBoolean("notify",
			mcp.Description("Post the note into the task's Slack thread (default: false)"),
		),
	)
}

// Handle processes the add_progress_update tool call.
func (t *AddProgressUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sentiment, err := floatArg(req, "sentiment_score")
	if err != nil {
		return failure(err)
	}
	notify, err := boolArg(req, false, "notify", "notify_slack")
	if err != nil {
		return failure(err)
	}

	res, err := t.engine.AddProgress(ctx, lifecycle.ProgressInput{
		TaskID:         stringArg(req, "task_id"),
		Content:        stringArg(req, "content"),
		Source:         stringArg(req, "source"),
		SentimentScore: sentiment,
		Analysis:       stringArg(req, "agent_analysis", "analysis"),
		Notify:         notify,
	})
	if err != nil {
		return failure(err)
	}

	fields := map[string]any{"update": res.Update}
	if res.Notification != nil {
		fields["notification"] = res.Notification
	}
	return jsonResult(fields)
}
