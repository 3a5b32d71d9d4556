package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/pmtools/internal/lifecycle"
	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/task"
)

// Registry maps tool names, aliases included, to handlers. It backs both
// MCP registration and the plain (name, args) call path.
type Registry struct {
	handlers map[string]Handler
	aliases  map[string]string
	names    []string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: map[string]Handler{},
		aliases:  map[string]string{},
		logger:   logger,
	}
}

// Deps are the components the task tools run against.
type Deps struct {
	Engine     *lifecycle.Engine
	Reports    *report.Aggregator
	Dispatcher *notify.Dispatcher
	Logger     *slog.Logger
}

// NewTaskRegistry registers every task tool with its aliases.
func NewTaskRegistry(d Deps) *Registry {
	r := NewRegistry(d.Logger)
	r.Add(NewCreateTaskTool(d.Engine))
	r.Add(NewUpdateTaskStatusTool(d.Engine))
	r.Add(NewAddProgressUpdateTool(d.Engine))
	r.Add(NewGetTaskProgressTool(d.Engine), "get_task_by_id")
	r.Add(NewGetTasksByStatusTool(d.Engine), "list_tasks")
	r.Add(NewGenerateBossReportTool(d.Reports, d.Dispatcher.DefaultChannel()))
	r.Add(NewPushToSlackTool(d.Dispatcher), "send_notification")
	r.Add(NewVerifyTaskCompletionTool(d.Engine), "set_verification")
	return r
}

// Add registers h under its definition's name and every alias.
func (r *Registry) Add(h Handler, aliases ...string) {
	name := h.Definition().Name
	r.handlers[name] = h
	r.names = append(r.names, name)
	for _, a := range aliases {
		r.handlers[a] = h
		r.aliases[a] = name
	}
}

// Names lists canonical tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Definitions returns tool schemas for every name, aliases last and sorted.
func (r *Registry) Definitions() []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(r.handlers))
	for _, n := range r.names {
		defs = append(defs, r.handlers[n].Definition())
	}
	aliases := make([]string, 0, len(r.aliases))
	for a := range r.aliases {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	for _, a := range aliases {
		def := r.handlers[a].Definition()
		def.Name = a
		def.Description = fmt.Sprintf("Alias of %s. %s", r.aliases[a], def.Description)
		defs = append(defs, def)
	}
	return defs
}

// ServerTools returns the definitions paired with their handlers for
// server.MCPServer.AddTools.
func (r *Registry) ServerTools() []server.ServerTool {
	defs := r.Definitions()
	out := make([]server.ServerTool, 0, len(defs))
	for _, def := range defs {
		out = append(out, server.ServerTool{Tool: def, Handler: r.handlers[def.Name].Handle})
	}
	return out
}

// Call invokes the named tool with args. It always returns a result:
// unknown names and handler errors become failure results.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	h, ok := r.handlers[name]
	if !ok {
		return failureResult(ErrTypeUnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := h.Handle(ctx, req)
	if err != nil {
		errType := ErrTypeInternal
		if task.IsStorage(err) {
			errType = ErrTypeStorage
		}
		r.logger.Error("tool call failed", "tool", name, "error", err)
		return failureResult(errType, err.Error())
	}
	return res
}

// ResultText returns the first text content of a result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
