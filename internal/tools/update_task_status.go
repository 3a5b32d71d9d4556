package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
	"github.com/HendryAvila/pmtools/internal/task"
)

// UpdateTaskStatusTool handles the update_task_status MCP tool.
type UpdateTaskStatusTool struct {
	engine *lifecycle.Engine
}

// NewUpdateTaskStatusTool creates an UpdateTaskStatusTool.
func NewUpdateTaskStatusTool(engine *lifecycle.Engine) *UpdateTaskStatusTool {
	return &UpdateTaskStatusTool{engine: engine}
}

// Definition returns the MCP tool definition for update_task_status.
func (t *UpdateTaskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("update_task_status",
		mcp.WithDescription(
			"Change a task's status and/or edit its fields in one atomic write. "+
				"Optionally append a progress note and attach a verification record; "+
				"a verification always leaves the task completed. Any status may follow any other.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID to update"),
		),
		mcp.WithString("status",
			mcp.Description("New status"),
			mcp.Enum(statusNames()...),
		),
		mcp.WithString("progress_note",
			mcp.Description("Progress note appended with source 'agent'"),
		),
		mcp.WithNumber("sentiment_score",
			mcp.Description("Sentiment of the progress note, from -1 (negative) to 1 (positive)"),
			mcp.Min(-1),
			mcp.Max(1),
		),
		mcp.WithString("agent_analysis",
			mcp.Description("Agent analysis stored with the progress note"),
		),
		mcp.WithObject("verification",
			mcp.Description("Verification record: {verified_by, method (manual|automated|hybrid), evidence: [..]}"),
		),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("assignee", mcp.Description("New assignee; empty string clears it")),
		mcp.WithString("priority",
			mcp.Description("New priority"),
			mcp.Enum("low", "medium", "high", "critical"),
		),
		mcp.WithString("due_date", mcp.Description("New due date (YYYY-MM-DD); empty string clears it")),
		mcp.WithArray("tags",
			mcp.Description("Replacement tag list"),
			mcp.WithStringItems(),
		),
		mcp.WithObject("metadata", mcp.Description("Replacement metadata object")),
		mcp.WithString("thread_ts", mcp.Description("Slack thread for future updates")),
		mcp.WithBoolean("notify",
			mcp.Description("Post the update into the task's Slack thread (default: false)"),
		),
	)
}

// Handle processes the update_task_status tool call.
func (t *UpdateTaskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := lifecycle.UpdateInput{
		TaskID:       stringArg(req, "task_id"),
		Status:       stringArg(req, "status"),
		ProgressNote: stringArg(req, "progress_note"),
		Analysis:     stringArg(req, "agent_analysis", "analysis"),
		Title:        optionalString(req, "title"),
		Description:  optionalString(req, "description"),
		Assignee:     optionalString(req, "assignee"),
		Priority:     stringArg(req, "priority"),
		DueDate:      optionalString(req, "due_date"),
		ThreadTS:     optionalString(req, "thread_ts"),
	}

	var err error
	if in.SentimentScore, err = floatArg(req, "sentiment_score"); err != nil {
		return failure(err)
	}
	if tags, ok, err := stringsArg(req, "tags"); err != nil {
		return failure(err)
	} else if ok {
		in.Tags = &tags
	}
	if in.Metadata, _, err = objectArg(req, "metadata"); err != nil {
		return failure(err)
	}
	if v, ok, err := objectArg(req, "verification"); err != nil {
		return failure(err)
	} else if ok {
		if in.Verification, err = verificationInput(v); err != nil {
			return failure(err)
		}
	}
	if in.Notify, err = boolArg(req, false, "notify", "notify_slack"); err != nil {
		return failure(err)
	}

	res, err := t.engine.UpdateStatus(ctx, in)
	if err != nil {
		return failure(err)
	}
	return resultFields(res), nil
}

// verificationInput reads a verification object. Unknown keys are rejected.
func verificationInput(v map[string]any) (*lifecycle.VerificationInput, error) {
	in := &lifecycle.VerificationInput{}
	for k, val := range v {
		switch k {
		case "verified_by":
			in.VerifiedBy = stringOf(val)
		case "method":
			in.Method = stringOf(val)
		case "evidence":
			ev, err := toStrings("verification.evidence", val)
			if err != nil {
				return nil, err
			}
			in.Evidence = ev
		case "verified_at":
			// Always stamped by the server.
		default:
			return nil, task.Invalid("verification", "unexpected key %q", k)
		}
	}
	return in, nil
}

func statusNames() []string {
	out := make([]string, len(task.Statuses))
	for i, s := range task.Statuses {
		out[i] = string(s)
	}
	return out
}
