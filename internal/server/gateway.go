package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/pmtools/internal/tools"
)

// maxCallBody bounds a /tools/call request body.
const maxCallBody = 1 << 20

// Gateway exposes the tool surface over HTTP: a plain JSON call endpoint
// and the streamable MCP transport.
type Gateway struct {
	app        *App
	httpServer *http.Server
	logger     *slog.Logger
}

// callRequest is the body of POST /tools/call.
type callRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewGateway creates the HTTP gateway for app listening on addr.
func NewGateway(app *App, addr string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{app: app, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", g.handleHealth)
	r.Get("/tools", g.handleTools)
	r.Post("/tools/call", g.handleCall)
	r.Handle("/mcp", server.NewStreamableHTTPServer(app.MCP))

	g.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler returns the router, for tests and embedding.
func (g *Gateway) Handler() http.Handler { return g.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return err
	}
	g.logger.Info("pmtools gateway listening", "addr", ln.Addr().String())
	if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.httpServer.Shutdown(ctx)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":           "ok",
		"version":          Version,
		"slack_configured": g.app.Dispatcher.Configured(),
	}
	code := http.StatusOK
	if v, err := g.app.Store.SchemaVersion(); err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		status["schema_version"] = v
	}
	writeJSON(w, code, status)
}

func (g *Gateway) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": g.app.Registry.Definitions()})
}

func (g *Gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "invalid request body: " + err.Error(), "error_type": tools.ErrTypeValidation,
		})
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	res := g.app.Registry.Call(r.Context(), req.Name, req.Arguments)
	g.logger.Debug("tool call", "tool", req.Name, "is_error", res.IsError)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(callStatus(res))
	_, _ = w.Write([]byte(tools.ResultText(res)))
}

// callStatus answers 500 for storage and internal failures. Validation and
// not-found results are structured answers and stay 200.
func callStatus(res *mcp.CallToolResult) int {
	if !res.IsError {
		return http.StatusOK
	}
	var doc struct {
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal([]byte(tools.ResultText(res)), &doc); err != nil {
		return http.StatusInternalServerError
	}
	switch doc.ErrorType {
	case tools.ErrTypeStorage, tools.ErrTypeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
