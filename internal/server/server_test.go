package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/pmtools/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Store.Path = filepath.Join(t.TempDir(), "tasks.db")
	cfg.Slack.WebhookURL = ""
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, cleanup, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(cleanup)
	return app
}

func TestNew_WiresComponents(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	if app.MCP == nil || app.Registry == nil || app.Engine == nil || app.Reports == nil {
		t.Fatalf("app not fully wired: %+v", app)
	}
	if app.Scheduler != nil {
		t.Error("scheduler should be off without a schedule")
	}
	if len(app.Registry.Names()) != 8 {
		t.Errorf("tools = %v", app.Registry.Names())
	}
}

func TestNew_WithSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Schedule = "0 9 * * 1-5"
	app := newTestApp(t, cfg)
	if app.Scheduler == nil {
		t.Fatal("scheduler should be created")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Slack.MaxAttempts = 0

	_, cleanup, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	cleanup()
}

func TestServerInstructions_MentionTools(t *testing.T) {
	text := serverInstructions()
	for _, name := range []string{"create_task", "update_task_status", "verify_task_completion", "generate_boss_report"} {
		if !bytes.Contains([]byte(text), []byte(name)) {
			t.Errorf("instructions do not mention %s", name)
		}
	}
}

// ─── Gateway ─────────────────────────────────────────────────────────────────

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	g := NewGateway(newTestApp(t, testConfig(t)), "127.0.0.1:0", nil)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, doc
}

func postCall(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/tools/call", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, doc
}

func TestGateway_Health(t *testing.T) {
	srv := newGateway(t)
	code, doc := getJSON(t, srv.URL+"/health")
	if code != http.StatusOK || doc["status"] != "ok" {
		t.Errorf("health = %d %v", code, doc)
	}
	if doc["slack_configured"] != false || doc["schema_version"] == nil {
		t.Errorf("health = %v", doc)
	}
}

func TestGateway_Tools(t *testing.T) {
	srv := newGateway(t)
	_, doc := getJSON(t, srv.URL+"/tools")
	if defs := doc["tools"].([]any); len(defs) != 12 {
		t.Errorf("tools = %d, want 8 plus 4 aliases", len(defs))
	}
}

func TestGateway_CallRoundTrip(t *testing.T) {
	srv := newGateway(t)

	code, doc := postCall(t, srv.URL, `{"name":"create_task","arguments":{"title":"Ship v1","channel":"#eng"}}`)
	if code != http.StatusOK || doc["success"] != true {
		t.Fatalf("create = %d %v", code, doc)
	}
	n := doc["notification"].(map[string]any)
	if n["success"] != false || n["attempts"] != float64(0) {
		t.Errorf("unconfigured webhook should fail without attempts: %v", n)
	}

	id := doc["task"].(map[string]any)["id"].(string)
	_, doc = postCall(t, srv.URL, `{"name":"get_task_by_id","arguments":{"task_id":"`+id+`"}}`)
	if doc["success"] != true || doc["task"].(map[string]any)["title"] != "Ship v1" {
		t.Errorf("get = %v", doc)
	}
}

func TestGateway_CallFailures(t *testing.T) {
	srv := newGateway(t)

	code, doc := postCall(t, srv.URL, `not json`)
	if code != http.StatusBadRequest || doc["success"] != false {
		t.Errorf("bad body = %d %v", code, doc)
	}

	_, doc = postCall(t, srv.URL, `{"name":"nope"}`)
	if doc["success"] != false || doc["error_type"] != "unknown_tool" {
		t.Errorf("unknown tool = %v", doc)
	}

	_, doc = postCall(t, srv.URL, `{"name":"get_task_progress","arguments":{"task_id":"task-x"}}`)
	if doc["error_type"] != "not_found" {
		t.Errorf("not found = %v", doc)
	}
}

func TestGateway_CallStorageFailureIs500(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	srv := httptest.NewServer(NewGateway(app, "127.0.0.1:0", nil).Handler())
	t.Cleanup(srv.Close)

	code, doc := postCall(t, srv.URL, `{"name":"get_task_progress","arguments":{"task_id":"task-x"}}`)
	if code != http.StatusOK {
		t.Errorf("not found status = %d, want 200", code)
	}

	if err := app.Store.Close(); err != nil {
		t.Fatal(err)
	}
	code, doc = postCall(t, srv.URL, `{"name":"get_task_progress","arguments":{"task_id":"task-x"}}`)
	if code != http.StatusInternalServerError || doc["error_type"] != "storage" {
		t.Errorf("storage failure = %d %v, want 500 storage", code, doc)
	}
}

func TestCallStatus(t *testing.T) {
	tests := []struct {
		name string
		res  *mcp.CallToolResult
		want int
	}{
		{"success", mcp.NewToolResultText(`{"success":true}`), http.StatusOK},
		{"validation", mcp.NewToolResultError(`{"success":false,"error_type":"validation"}`), http.StatusOK},
		{"not found", mcp.NewToolResultError(`{"success":false,"error_type":"not_found"}`), http.StatusOK},
		{"unknown tool", mcp.NewToolResultError(`{"success":false,"error_type":"unknown_tool"}`), http.StatusOK},
		{"storage", mcp.NewToolResultError(`{"success":false,"error_type":"storage"}`), http.StatusInternalServerError},
		{"internal", mcp.NewToolResultError(`{"success":false,"error_type":"internal"}`), http.StatusInternalServerError},
		{"unparseable", mcp.NewToolResultError(`boom`), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callStatus(tt.res); got != tt.want {
				t.Errorf("callStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGateway_ShutdownWithoutStart(t *testing.T) {
	g := NewGateway(newTestApp(t, testConfig(t)), "127.0.0.1:0", nil)
	if err := g.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
