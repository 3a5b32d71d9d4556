package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
)

// CreateTaskTool handles the create_task MCP tool.
type CreateTaskTool struct {
	engine *lifecycle.Engine
}

// NewCreateTaskTool creates a CreateTaskTool.
func NewCreateTaskTool(engine *lifecycle.Engine) *CreateTaskTool {
	return &CreateTaskTool{engine: engine}
}

// Definition returns the MCP tool definition for create_task.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription(
			"Create a new task in the defined state. The task is linked to a Slack channel; "+
				"by default a task alert is posted there and the delivery result is returned under 'notification'.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("channel",
			mcp.Required(),
			mcp.Description("Slack channel for notifications (e.g. '#eng'). 'slack_channel' is accepted too."),
		),
		mcp.WithString("description",
			mcp.Description("Detailed task description"),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority (default: medium)"),
			mcp.Enum("low", "medium", "high", "critical"),
		),
		mcp.WithString("due_date",
			mcp.Description("Due date as YYYY-MM-DD (RFC3339 is truncated to its date)"),
		),
		mcp.WithString("assignee",
			mcp.Description("Assigned person or team"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for categorization"),
			mcp.WithStringItems(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Free-form key/value metadata"),
		),
		mcp.WithString("thread_ts",
			mcp.Description("Existing Slack thread to post updates into"),
		),
		mcp.WithBoolean("notify",
			mcp.Description("Post a task alert to the channel (default: true)"),
		),
	)
}

// Handle processes the create_task tool call.
func (t *CreateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, _, err := stringsArg(req, "tags")
	if err != nil {
		return failure(err)
	}
	metadata, _, err := objectArg(req, "metadata")
	if err != nil {
		return failure(err)
	}
	notify, err := boolArg(req, true, "notify", "notify_slack")
	if err != nil {
		return failure(err)
	}

	res, err := t.engine.Create(ctx, lifecycle.CreateInput{
		Title:       stringArg(req, "title"),
		Description: stringArg(req, "description"),
		Channel:     stringArg(req, "channel", "slack_channel"),
		Priority:    stringArg(req, "priority"),
		DueDate:     stringArg(req, "due_date"),
		Assignee:    stringArg(req, "assignee"),
		Tags:        tags,
		Metadata:    metadata,
		ThreadTS:    stringArg(req, "thread_ts"),
		Notify:      notify,
	})
	if err != nil {
		return failure(err)
	}
	return resultFields(res), nil
}

// resultFields renders a lifecycle result, leaving out an absent notification.
func resultFields(res *lifecycle.Result) *mcp.CallToolResult {
	fields := map[string]any{"task": res.Task}
	if res.Notification != nil {
		fields["notification"] = res.Notification
	}
	out, err := jsonResult(fields)
	if err != nil {
		return failureResult(ErrTypeInternal, err.Error())
	}
	return out
}
