package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/task"
)

// pushReserved are push_to_slack arguments that are never message data.
var pushReserved = map[string]bool{
	"payload": true, "message": true, "message_type": true, "data": true,
	"text": true, "channel": true, "thread_ts": true,
}

// PushToSlackTool handles the push_to_slack MCP tool.
type PushToSlackTool struct {
	dispatcher *notify.Dispatcher
}

// NewPushToSlackTool creates a PushToSlackTool.
func NewPushToSlackTool(d *notify.Dispatcher) *PushToSlackTool {
	return &PushToSlackTool{dispatcher: d}
}

// Definition returns the MCP tool definition for push_to_slack.
func (t *PushToSlackTool) Definition() mcp.Tool {
	return mcp.NewTool("push_to_slack",
		mcp.WithDescription(
			"Deliver a message to Slack through the incoming webhook, retrying with exponential backoff. "+
				"Give either a ready payload ({text, blocks}), a message_type with its data, or plain text.",
		),
		mcp.WithObject("payload",
			mcp.Description("Pre-built message: {\"text\": ..., \"blocks\": [...]}"),
		),
		mcp.WithString("message_type",
			mcp.Description("Render a typed message from data"),
			mcp.Enum(
				string(notify.KindTaskAlert),
				string(notify.KindProgressUpdate),
				string(notify.KindBossReport),
				string(notify.KindVerificationResult),
			),
		),
		mcp.WithObject("data",
			mcp.Description(
				"Fields for message_type. task_alert: task_title, priority, assignee, due_date, description. "+
					"progress_update: task_title, status, content, sentiment_score, dashboard_link. "+
					"boss_report: date, title, completed_count, in_progress_count, blocked_count, highlights, risks. "+
					"verification_result: task_title, verification_status, confidence_score, summary, verified_by, method, timestamp.",
			),
		),
		mcp.WithString("text", mcp.Description("Plain text message")),
		mcp.WithString("channel", mcp.Description("Target channel (default: configured channel)")),
		mcp.WithString("thread_ts", mcp.Description("Thread to reply into")),
	)
}

// Handle processes the push_to_slack tool call.
func (t *PushToSlackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dest := notify.Destination{
		Channel:  stringArg(req, "channel"),
		ThreadTS: stringArg(req, "thread_ts"),
	}

	p, err := t.payload(req)
	if err != nil {
		return failure(err)
	}

	res := t.dispatcher.Deliver(ctx, p, dest)
	if !res.Success {
		data, _ := json.Marshal(map[string]any{
			"success":    false,
			"error":      res.Error,
			"error_type": "delivery",
			"delivery":   res,
		})
		return mcp.NewToolResultError(string(data)), nil
	}
	return jsonResult(map[string]any{"delivery": res})
}

// payload resolves the message from, in order: payload, message_type with
// data (or with the remaining top-level arguments), and text.
func (t *PushToSlackTool) payload(req mcp.CallToolRequest) (notify.Payload, error) {
	raw, ok, err := objectArg(req, "payload")
	if err != nil {
		return notify.Payload{}, err
	}
	if !ok {
		if raw, ok, err = objectArg(req, "message"); err != nil {
			return notify.Payload{}, err
		}
	}
	if ok {
		return notify.DecodePayload(raw)
	}

	if kind := stringArg(req, "message_type"); kind != "" {
		data, ok, err := objectArg(req, "data")
		if err != nil {
			return notify.Payload{}, err
		}
		if !ok {
			data = map[string]any{}
			for k, v := range req.GetArguments() {
				if !pushReserved[k] {
					data[k] = v
				}
			}
		}
		m, err := notify.DecodeMessage(kind, data)
		if err != nil {
			return notify.Payload{}, err
		}
		return notify.Render(m), nil
	}

	if text := stringArg(req, "text"); text != "" {
		return notify.Payload{Text: text}, nil
	}
	return notify.Payload{}, task.Invalid("payload", "give payload, message_type with data, or text")
}
