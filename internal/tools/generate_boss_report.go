package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/report"
)

// GenerateBossReportTool handles the generate_boss_report MCP tool.
type GenerateBossReportTool struct {
	agg            *report.Aggregator
	defaultChannel string
}

// NewGenerateBossReportTool creates a GenerateBossReportTool. defaultChannel
// is where a pushed report goes when the call names no channel.
func NewGenerateBossReportTool(agg *report.Aggregator, defaultChannel string) *GenerateBossReportTool {
	return &GenerateBossReportTool{agg: agg, defaultChannel: defaultChannel}
}

// Definition returns the MCP tool definition for generate_boss_report.
func (t *GenerateBossReportTool) Definition() mcp.Tool {
	return mcp.NewTool("generate_boss_report",
		mcp.WithDescription(
			"Summarize task state: counts per status (current snapshot), highlights (tasks completed "+
				"in the window, most recent first) and risks (blocked, overdue and due-soon tasks). "+
				"Returns the report and its rendered Slack payload; set push to also deliver it.",
		),
		mcp.WithString("channel",
			mcp.Description("Only tasks linked to this channel (omit for all). 'slack_channel' is accepted too."),
		),
		mcp.WithString("window",
			mcp.Description("daily (default), weekly, custom, or a YYYY-MM-DD:YYYY-MM-DD range"),
		),
		mcp.WithString("start", mcp.Description("Custom window start (YYYY-MM-DD or RFC3339)")),
		mcp.WithString("end", mcp.Description("Custom window end; a bare date covers the whole day")),
		mcp.WithBoolean("include_highlights", mcp.Description("Include highlights (default: true)")),
		mcp.WithBoolean("include_risks", mcp.Description("Include risks (default: true)")),
		mcp.WithNumber("lookahead_days",
			mcp.Description("Days ahead that count as due soon (default: 3). 'days_for_due_soon' is accepted too."),
			mcp.Min(1),
		),
		mcp.WithNumber("max_items",
			mcp.Description("Maximum highlights and risks each (default: 5)"),
			mcp.Min(1),
		),
		mcp.WithBoolean("push", mcp.Description("Deliver the report to Slack (default: false)")),
		mcp.WithString("push_channel", mcp.Description("Channel to deliver to (default: channel, then the configured default)")),
	)
}

// Handle processes the generate_boss_report tool call.
func (t *GenerateBossReportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := report.Options{
		Window:  stringArg(req, "window"),
		Start:   stringArg(req, "start"),
		End:     stringArg(req, "end"),
		Channel: stringArg(req, "channel", "slack_channel"),
	}

	var err error
	if opts.IncludeHighlights, err = boolArg(req, true, "include_highlights"); err != nil {
		return failure(err)
	}
	if opts.IncludeRisks, err = boolArg(req, true, "include_risks"); err != nil {
		return failure(err)
	}
	if opts.LookaheadDays, err = intArg(req, 0, "lookahead_days", "days_for_due_soon"); err != nil {
		return failure(err)
	}
	if opts.MaxItems, err = intArg(req, 0, "max_items"); err != nil {
		return failure(err)
	}
	push, err := boolArg(req, false, "push")
	if err != nil {
		return failure(err)
	}

	r, err := t.agg.Generate(ctx, opts)
	if err != nil {
		return failure(err)
	}

	fields := map[string]any{
		"report":  r,
		"payload": r.Payload(),
	}
	if push {
		dest := notify.Destination{Channel: stringArg(req, "push_channel")}
		if dest.Channel == "" {
			dest.Channel = opts.Channel
		}
		if dest.Channel == "" {
			dest.Channel = t.defaultChannel
		}
		fields["notification"] = t.agg.Publish(ctx, r, dest)
	}
	return jsonResult(fields)
}
