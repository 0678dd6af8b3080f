package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler executes a tool call. args is the raw JSON argument object from
// the model; the returned string is the serialized result appended to the
// conversation.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a registered auxiliary function the model may invoke.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema for the argument object.
	Parameters map[string]interface{}
	Handler    Handler
	// EmptyResult reports whether a serialized result represents an
	// explicitly-empty result set. Used by the redundant-call guard.
	EmptyResult func(result string) bool
}

// Registry maps tool names to their definitions and handlers. Dispatch
// never returns an error: every failure mode is serialized into the result
// payload so one bad call cannot abort its batch.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; exists {
		slog.Warn("tool already registered, overwriting", "tool", t.Name)
	} else {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	slog.Info("registered tool", "tool", t.Name)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tools)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch looks up and executes the named tool, returning a serialized
// result or a serialized error payload.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) string {
	tool, ok := r.Lookup(name)
	if !ok {
		slog.Error("dispatch of unknown tool", "tool", name)
		return errorPayload(fmt.Sprintf("tool %q not found", name), "")
	}

	if !json.Valid([]byte(argsJSON)) {
		slog.Error("invalid tool arguments", "tool", name, "args", argsJSON)
		return errorPayload(fmt.Sprintf("invalid JSON arguments for tool %q", name), "")
	}

	result, err := tool.Handler(ctx, json.RawMessage(argsJSON))
	if err != nil {
		slog.Error("tool execution failed", "tool", name, "error", err)
		return errorPayload(fmt.Sprintf("failed to execute tool %q", name), err.Error())
	}
	slog.Info("tool executed", "tool", name)
	return result
}

func errorPayload(msg, details string) string {
	payload := map[string]string{"error": msg}
	if details != "" {
		payload["details"] = details
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
