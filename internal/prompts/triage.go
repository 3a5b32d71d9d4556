package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// TriagePrompt handles the pm-triage MCP prompt.
// It walks the AI through blocked and due-soon work.
type TriagePrompt struct{}

// NewTriagePrompt creates a TriagePrompt.
func NewTriagePrompt() *TriagePrompt {
	return &TriagePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *TriagePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("pm-triage",
		mcp.WithPromptDescription(
			"Review blocked tasks and tasks due soon, and decide what to do with each.",
		),
		mcp.WithArgument("channel",
			mcp.ArgumentDescription("Limit triage to one Slack channel"),
		),
	)
}

// Handle processes the pm-triage prompt request.
func (p *TriagePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	channel := argOr(req, "channel", "")
	filter := ""
	if channel != "" {
		filter = fmt.Sprintf(" and channel='%s'", channel)
	}

	return &mcp.GetPromptResult{
		Description: "Triage blocked and due-soon tasks",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Let's triage.\n\n" +
						"1. Run `get_tasks_by_status` with statuses=['blocked']" + filter + "\n" +
						"2. Run `generate_boss_report` with include_highlights=false" + filter + " to see overdue and due-soon work\n" +
						"3. For each task, run `get_task_progress` and read the latest notes\n" +
						"4. Propose one action per task: unblock, reassign, change due date, or close\n" +
						"5. Only after I confirm, apply the changes with `update_task_status`, adding a progress_note that records the decision",
				),
			},
		},
	}, nil
}
