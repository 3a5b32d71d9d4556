// Package resources implements MCP resource handlers for task tracking.
//
// Resources provide read-only JSON views the host can pull in as context.
// They use URI-based addressing (pm://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/task"
)

// Resource URIs.
const (
	SummaryURI     = "pm://tasks/summary"
	DailyReportURI = "pm://report/daily"
)

// Counter reports how many tasks sit in each status.
type Counter interface {
	CountByStatus(ctx context.Context, channel string) (map[task.Status]int, error)
}

// Handler manages task resource endpoints.
type Handler struct {
	counter Counter
	reports *report.Aggregator
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(counter Counter, reports *report.Aggregator) *Handler {
	return &Handler{counter: counter, reports: reports}
}

// SummaryResource returns the MCP resource definition for status counts.
func (h *Handler) SummaryResource() mcp.Resource {
	return mcp.NewResource(
		SummaryURI,
		"Task Summary",
		mcp.WithResourceDescription("Number of tasks in each status, plus the total"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSummary returns the status counts as JSON.
func (h *Handler) HandleSummary(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	counts, err := h.counter.CountByStatus(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return jsonContents(req.Params.URI, map[string]any{
		"counts": counts,
		"total":  total,
	})
}

// DailyReportResource returns the MCP resource definition for the daily report.
func (h *Handler) DailyReportResource() mcp.Resource {
	return mcp.NewResource(
		DailyReportURI,
		"Daily PM Report",
		mcp.WithResourceDescription("The boss report for the last 24 hours across all channels"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleDailyReport generates the daily report and returns it as JSON.
func (h *Handler) HandleDailyReport(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	r, err := h.reports.Generate(ctx, report.DefaultOptions())
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonContents(req.Params.URI, r)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
