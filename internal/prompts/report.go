// Package prompts implements MCP prompt handlers for task tracking.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tool calls. Unlike tools
// (which the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReportPrompt handles the pm-report MCP prompt.
// It asks the AI to generate the boss report and present it.
type ReportPrompt struct{}

// NewReportPrompt creates a ReportPrompt.
func NewReportPrompt() *ReportPrompt {
	return &ReportPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReportPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("pm-report",
		mcp.WithPromptDescription(
			"Generate the boss report: what got done, what is in flight, "+
				"and what is blocked or about to slip.",
		),
		mcp.WithArgument("window",
			mcp.ArgumentDescription("daily (default), weekly, or a YYYY-MM-DD:YYYY-MM-DD range"),
		),
		mcp.WithArgument("channel",
			mcp.ArgumentDescription("Limit the report to one Slack channel"),
		),
		mcp.WithArgument("push",
			mcp.ArgumentDescription("'yes' to also post the report to Slack"),
		),
	)
}

// Handle processes the pm-report prompt request.
func (p *ReportPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	window := argOr(req, "window", "daily")
	channel := argOr(req, "channel", "")
	push := argOr(req, "push", "no") == "yes"

	call := fmt.Sprintf("`generate_boss_report` with window='%s'", window)
	scope := "all channels"
	if channel != "" {
		call += fmt.Sprintf(", channel='%s'", channel)
		scope = channel
	}
	if push {
		call += ", push=true"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("PM report (%s, %s)", window, scope),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run " + call + ".\n\n" +
						"Then:\n" +
						"1. Lead with the completed / in progress / blocked counts\n" +
						"2. List the highlights as written\n" +
						"3. List the risks, blocked items first, and suggest one next step for each\n" +
						"4. If a push was requested, tell me whether delivery succeeded and how many attempts it took",
				),
			},
		},
	}, nil
}

// argOr returns the named prompt argument or def when it is missing or empty.
func argOr(req mcp.GetPromptRequest, name, def string) string {
	if args := req.Params.Arguments; args != nil {
		if v, ok := args[name]; ok && v != "" {
			return v
		}
	}
	return def
}
