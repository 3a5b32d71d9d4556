package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
)

// VerifyTaskCompletionTool handles the verify_task_completion MCP tool.
type VerifyTaskCompletionTool struct {
	engine *lifecycle.Engine
}

// NewVerifyTaskCompletionTool creates a VerifyTaskCompletionTool.
func NewVerifyTaskCompletionTool(engine *lifecycle.Engine) *VerifyTaskCompletionTool {
	return &VerifyTaskCompletionTool{engine: engine}
}

// Definition returns the MCP tool definition for verify_task_completion.
func (t *VerifyTaskCompletionTool) Definition() mcp.Tool {
	return mcp.NewTool("verify_task_completion",
		mcp.WithDescription(
			"Record how a task was verified and mark it completed. A task holds at most one "+
				"verification: a new one replaces the old record and its evidence entirely.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID to verify"),
		),
		mcp.WithString("verified_by",
			mcp.Description("Who verified the task, e.g. 'user' or 'agent' (default: agent)"),
		),
		mcp.WithString("method",
			mcp.Description("Verification method (default: automated)"),
			mcp.Enum("manual", "automated", "hybrid"),
		),
		mcp.WithArray("evidence",
			mcp.Description("Evidence supporting the verification (e.g. 'ci-pass', PR links)"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("notify",
			mcp.Description("Post the verification result to the task's channel (default: true)"),
		),
	)
}

// Handle processes the verify_task_completion tool call.
func (t *VerifyTaskCompletionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	evidence, _, err := stringsArg(req, "evidence")
	if err != nil {
		return failure(err)
	}
	notify, err := boolArg(req, true, "notify", "notify_slack")
	if err != nil {
		return failure(err)
	}

	res, err := t.engine.SetVerification(ctx, lifecycle.VerifyInput{
		TaskID:     stringArg(req, "task_id"),
		VerifiedBy: stringArg(req, "verified_by"),
		Method:     stringArg(req, "method"),
		Evidence:   evidence,
		Notify:     notify,
	})
	if err != nil {
		return failure(err)
	}
	return resultFields(res), nil
}
