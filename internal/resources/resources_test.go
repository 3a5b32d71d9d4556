package resources

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/task"
)

type brokenCounter struct{}

func (brokenCounter) CountByStatus(context.Context, string) (map[task.Status]int, error) {
	return nil, errors.New("disk on fire")
}

func newHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	s, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "tasks.db")})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewHandler(s, report.New(s, nil)), s
}

func readText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T", contents[0])
	}
	return tc.Text
}

func TestHandleSummary(t *testing.T) {
	h, s := newHandler(t)
	ctx := context.Background()
	if err := s.Insert(ctx, &task.Task{ID: "t1", Title: "one", Status: task.StatusBlocked, Priority: task.PriorityLow, Channel: "#c"}); err != nil {
		t.Fatal(err)
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = SummaryURI
	contents, err := h.HandleSummary(ctx, req)
	if err != nil {
		t.Fatalf("HandleSummary: %v", err)
	}

	var doc struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}
	if err := json.Unmarshal([]byte(readText(t, contents)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Total != 1 || doc.Counts["blocked"] != 1 || len(doc.Counts) != len(task.Statuses) {
		t.Errorf("summary = %+v", doc)
	}
}

func TestHandleSummary_StoreError(t *testing.T) {
	h := NewHandler(brokenCounter{}, nil)
	if _, err := h.HandleSummary(context.Background(), mcp.ReadResourceRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleDailyReport(t *testing.T) {
	h, _ := newHandler(t)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = DailyReportURI
	contents, err := h.HandleDailyReport(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleDailyReport: %v", err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(readText(t, contents)), &r); err != nil {
		t.Fatal(err)
	}
	if r.Title != "Daily PM Report" || len(r.Highlights) != 1 || r.Highlights[0] != report.NoHighlights {
		t.Errorf("report = %+v", r)
	}
}

func TestResourceDefinitions(t *testing.T) {
	h, _ := newHandler(t)
	if h.SummaryResource().URI != SummaryURI || h.DailyReportResource().URI != DailyReportURI {
		t.Error("resource URIs mismatch")
	}
}
