// Package tools implements the MCP tool handlers for task tracking.
//
// Each tool is a struct that receives its dependencies at construction
// and exposes Definition (the MCP schema) and Handle (the mcp-go handler).
// Handlers answer with a JSON document carrying a "success" flag:
// validation and not-found failures come back as error results, never as
// protocol errors. Storage failures are returned as the handler's error.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/HendryAvila/pmtools/internal/task"
)

// Handler is a single MCP tool.
type Handler interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Error types reported in failure results.
const (
	ErrTypeValidation  = "validation"
	ErrTypeNotFound    = "not_found"
	ErrTypeStorage     = "storage"
	ErrTypeUnknownTool = "unknown_tool"
	ErrTypeInternal    = "internal"
)

// ─── Results ─────────────────────────────────────────────────────────────────

// jsonResult wraps fields in a success document.
func jsonResult(fields map[string]any) (*mcp.CallToolResult, error) {
	doc := map[string]any{"success": true}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// failureResult builds an error result with the standard failure shape.
func failureResult(errType, msg string) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]any{
		"success":    false,
		"error":      msg,
		"error_type": errType,
	})
	return mcp.NewToolResultError(string(data))
}

// failure maps err onto a tool response. Validation and not-found errors
// become error results; anything else is returned as-is.
func failure(err error) (*mcp.CallToolResult, error) {
	switch {
	case task.IsValidation(err):
		var ve *task.ValidationError
		errors.As(err, &ve)
		return failureResult(ErrTypeValidation, ve.Error()), nil
	case task.IsNotFound(err):
		var nf *task.NotFoundError
		errors.As(err, &nf)
		return failureResult(ErrTypeNotFound, nf.Error()), nil
	}
	return nil, err
}

// ─── Arguments ───────────────────────────────────────────────────────────────

// lookup returns the first present argument among keys. Later keys are
// accepted spellings of the first.
func lookup(req mcp.CallToolRequest, keys ...string) (any, bool) {
	args := req.GetArguments()
	for _, k := range keys {
		if v, ok := args[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringArg(req mcp.CallToolRequest, keys ...string) string {
	v, ok := lookup(req, keys...)
	if !ok {
		return ""
	}
	return cast.ToString(v)
}

// optionalString distinguishes an absent argument (nil) from an empty one.
func optionalString(req mcp.CallToolRequest, keys ...string) *string {
	v, ok := lookup(req, keys...)
	if !ok {
		return nil
	}
	s := cast.ToString(v)
	return &s
}

func intArg(req mcp.CallToolRequest, def int, keys ...string) (int, error) {
	v, ok := lookup(req, keys...)
	if !ok {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, task.Invalid(keys[0], "%v is not an integer", v)
	}
	return n, nil
}

func boolArg(req mcp.CallToolRequest, def bool, keys ...string) (bool, error) {
	v, ok := lookup(req, keys...)
	if !ok {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, task.Invalid(keys[0], "%v is not a boolean", v)
	}
	return b, nil
}

func floatArg(req mcp.CallToolRequest, key string) (*float64, error) {
	v, ok := lookup(req, key)
	if !ok {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, task.Invalid(key, "%v is not a number", v)
	}
	return &f, nil
}

// stringsArg reads a list of strings. Besides a JSON array it accepts a
// JSON-array string or a comma-separated string. The bool reports presence.
func stringsArg(req mcp.CallToolRequest, key string) ([]string, bool, error) {
	v, ok := lookup(req, key)
	if !ok {
		return nil, false, nil
	}
	out, err := toStrings(key, v)
	return out, true, err
}

func toStrings(field string, v any) ([]string, error) {
	if s, isStr := v.(string); isStr {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "[") {
			var out []string
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, task.Invalid(field, "not a list of strings: %v", err)
			}
			return out, nil
		}
		out := []string{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, task.Invalid(field, "not a list of strings")
	}
	return out, nil
}

func stringOf(v any) string {
	return cast.ToString(v)
}

// objectArg reads an object argument, accepting a JSON-object string too.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, bool, error) {
	v, ok := lookup(req, key)
	if !ok {
		return nil, false, nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, true, task.Invalid(key, "must be an object")
	}
	return m, true, nil
}
