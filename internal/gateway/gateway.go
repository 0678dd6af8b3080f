// Package gateway mediates all model calls: it holds the concurrency gate,
// drives the tool-call loop, and maps every failure into a tagged Result so
// callers never have to parse error text.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Message is one turn in a model conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request is a single raw completion request.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []Tool
	MaxTokens   int64
	Temperature float64
}

// Response is a single raw completion response.
type Response struct {
	Text        string
	ToolCalls   []ToolCall
	Annotations int
}

// TextGenerator performs one completion round trip. Implementations wrap
// the sentinel errors in result.go where the upstream distinguishes those
// failure modes.
type TextGenerator interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// CallSpec describes one logical generation call.
type CallSpec struct {
	System string
	User   string
	// MaxToolIterations bounds the number of completion rounds; 0 means
	// a single round with no tool use.
	MaxToolIterations int
	Timeout           time.Duration
}

// Gateway serializes model access behind a weighted semaphore so that at
// most maxConcurrent calls are in flight regardless of how many goroutines
// submit work.
type Gateway struct {
	gen         TextGenerator
	registry    *Registry
	sem         *semaphore.Weighted
	model       string
	maxTokens   int64
	temperature float64
}

func New(gen TextGenerator, registry *Registry, maxConcurrent int, model string, maxTokens int64, temperature float64) *Gateway {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gateway{
		gen:         gen,
		registry:    registry,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate runs one logical call: acquire a concurrency slot, apply the
// call deadline, and iterate the tool loop until the model produces text or
// the iteration budget runs out. It always returns a Result; the error
// return is reserved for context cancellation before the call started.
func (g *Gateway) Generate(ctx context.Context, spec CallSpec) Result {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Fail(ReasonTimeout, "cancelled while waiting for a slot: %v", err)
	}
	defer g.sem.Release(1)

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	messages := []Message{
		{Role: "system", Content: spec.System},
		{Role: "user", Content: spec.User},
	}

	var tools []Tool
	if spec.MaxToolIterations > 0 {
		tools = g.registry.Tools()
	}

	// Tool calls from the previous round that returned an explicitly-empty
	// result, keyed by (name, args). Repeating one of these in the next
	// round is blocked without execution.
	prevEmpty := make(map[string]bool)

	rounds := spec.MaxToolIterations
	if rounds < 1 {
		rounds = 1
	}

	var lastText string
	for i := 0; i < rounds; i++ {
		resp, err := g.gen.Complete(ctx, Request{
			Model:       g.model,
			Messages:    messages,
			Tools:       tools,
			MaxTokens:   g.maxTokens,
			Temperature: g.temperature,
		})
		if err != nil {
			return classify(ctx, err)
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				return Fail(ReasonEmptyResponse, "model returned no text and no tool calls")
			}
			return Ok(resp.Text)
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		lastEmpty := make(map[string]bool)
		for _, call := range resp.ToolCalls {
			key := call.Name + "\x00" + call.Arguments

			if prevEmpty[key] {
				slog.Warn("blocking redundant tool call", "tool", call.Name)
				messages = append(messages, Message{
					Role:       "tool",
					Content:    redundantCallPayload(call.Name),
					ToolCallID: call.ID,
					Name:       call.Name,
				})
				lastEmpty[key] = true
				continue
			}

			result := g.registry.Dispatch(ctx, call.Name, call.Arguments)
			messages = append(messages, Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})

			empty := false
			if tool, ok := g.registry.Lookup(call.Name); ok && tool.EmptyResult != nil {
				empty = tool.EmptyResult(result)
			}
			lastEmpty[key] = empty
		}
		prevEmpty = lastEmpty
	}

	slog.Warn("tool iteration budget exhausted", "rounds", rounds)
	if lastText != "" {
		return Ok(lastText + fmt.Sprintf("\n[warning: max tool iterations (%d) reached]", rounds))
	}
	return Fail(ReasonOther, "no text produced within %d tool iterations", rounds)
}

// redundantCallPayload is the tool result for a call repeated right after
// it returned an empty result set.
func redundantCallPayload(name string) string {
	b, _ := json.Marshal(map[string]string{
		"error": "redundant call blocked",
		"message": fmt.Sprintf("tool %q already returned an empty result for these arguments; "+
			"answer with the information you already have", name),
	})
	return string(b)
}

// classify maps a completion error to a failure Result.
func classify(ctx context.Context, err error) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Fail(ReasonTimeout, "call deadline exceeded: %v", err)
	case errors.Is(err, context.Canceled):
		return Fail(ReasonTimeout, "call cancelled: %v", err)
	case errors.Is(err, ErrEmptyResponse):
		return Fail(ReasonEmptyResponse, "%v", err)
	case errors.Is(err, ErrContextLength):
		return Fail(ReasonUpstream, "%v", err)
	case errors.Is(err, ErrSchemaViolation):
		return Fail(ReasonSerialization, "%v", err)
	default:
		return Fail(ReasonUpstream, "%v", err)
	}
}
