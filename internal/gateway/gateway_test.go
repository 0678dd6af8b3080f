package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeGen scripts Complete responses and records every request.
type fakeGen struct {
	mu       sync.Mutex
	requests []Request
	respond  func(call int, req Request) (Response, error)
}

func (f *fakeGen) Complete(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()
	return f.respond(call, req)
}

func (f *fakeGen) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func textOnly(text string) func(int, Request) (Response, error) {
	return func(int, Request) (Response, error) {
		return Response{Text: text}, nil
	}
}

func TestGenerateReturnsText(t *testing.T) {
	gen := &fakeGen{respond: textOnly("a report")}
	g := New(gen, NewRegistry(), 2, "test-model", 1024, 0.5)

	res := g.Generate(context.Background(), CallSpec{System: "sys", User: "usr"})
	if !res.OK() {
		t.Fatalf("expected success, got %v", res)
	}
	if res.Text != "a report" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if gen.calls() != 1 {
		t.Errorf("expected 1 completion call, got %d", gen.calls())
	}

	req := gen.requests[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Errorf("unexpected message layout: %+v", req.Messages)
	}
	if req.Model != "test-model" {
		t.Errorf("unexpected model %q", req.Model)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	gen := &fakeGen{respond: textOnly("")}
	g := New(gen, NewRegistry(), 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u"})
	if res.OK() {
		t.Fatal("expected failure for empty response")
	}
	if res.Reason != ReasonEmptyResponse {
		t.Errorf("expected empty-response reason, got %s", res.Reason)
	}
}

func TestConcurrencyCap(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	gen := &fakeGen{respond: func(int, Request) (Response, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return Response{Text: "ok"}, nil
	}}
	g := New(gen, NewRegistry(), 2, "m", 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := g.Generate(context.Background(), CallSpec{System: "s", User: "u"}); !res.OK() {
				t.Errorf("unexpected failure: %v", res)
			}
		}()
	}
	wg.Wait()

	if maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", maxSeen)
	}
	if gen.calls() != 5 {
		t.Errorf("expected 5 calls, got %d", gen.calls())
	}
}

func TestToolLoop(t *testing.T) {
	registry := NewRegistry()
	toolCalls := 0
	registry.Register(Tool{
		Name:       "lookup",
		Parameters: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			toolCalls++
			return `{"price": 42}`, nil
		},
	})

	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		if call == 1 {
			return Response{ToolCalls: []ToolCall{{ID: "c1", Name: "lookup", Arguments: `{"symbol":"X"}`}}}, nil
		}
		return Response{Text: "final answer"}, nil
	}}
	g := New(gen, registry, 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 3})
	if !res.OK() || res.Text != "final answer" {
		t.Fatalf("expected final answer, got %v", res)
	}
	if toolCalls != 1 {
		t.Errorf("expected 1 tool execution, got %d", toolCalls)
	}
	if gen.calls() != 2 {
		t.Errorf("expected 2 completion rounds, got %d", gen.calls())
	}

	// Second round must carry the assistant tool call and its result
	second := gen.requests[1].Messages
	var sawAssistant, sawTool bool
	for _, m := range second {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 {
			sawAssistant = true
		}
		if m.Role == "tool" && m.ToolCallID == "c1" && m.Content == `{"price": 42}` {
			sawTool = true
		}
	}
	if !sawAssistant || !sawTool {
		t.Errorf("tool exchange missing from second round: %+v", second)
	}
}

func TestMaxIterationsFallbackWithText(t *testing.T) {
	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		return Response{
			Text:      "partial findings",
			ToolCalls: []ToolCall{{ID: "c", Name: "missing", Arguments: `{}`}},
		}, nil
	}}
	g := New(gen, NewRegistry(), 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 2})
	if !res.OK() {
		t.Fatalf("expected fallback success, got %v", res)
	}
	if gen.calls() != 2 {
		t.Errorf("expected exactly 2 rounds, got %d", gen.calls())
	}
	if !strings.Contains(res.Text, "partial findings") {
		t.Errorf("expected last assistant text in fallback, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "max tool iterations (2) reached") {
		t.Errorf("expected iteration warning, got %q", res.Text)
	}
}

func TestMaxIterationsNoText(t *testing.T) {
	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		return Response{ToolCalls: []ToolCall{{ID: "c", Name: "missing", Arguments: `{}`}}}, nil
	}}
	g := New(gen, NewRegistry(), 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 2})
	if res.OK() {
		t.Fatal("expected failure when no text was ever produced")
	}
	if res.Reason != ReasonOther {
		t.Errorf("unexpected reason %s", res.Reason)
	}
}

func TestRedundantEmptyCallIsBlocked(t *testing.T) {
	registry := NewRegistry()
	executions := 0
	registry.Register(Tool{
		Name:       "search",
		Parameters: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			executions++
			return "[]", nil
		},
		EmptyResult: func(result string) bool { return result == "[]" },
	})

	// The model repeats the identical call right after it came back empty.
	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		if call <= 2 {
			return Response{ToolCalls: []ToolCall{{ID: "c", Name: "search", Arguments: `{"q":"x"}`}}}, nil
		}
		return Response{Text: "answered without tools"}, nil
	}}
	g := New(gen, registry, 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 3})
	if !res.OK() || res.Text != "answered without tools" {
		t.Fatalf("expected final text, got %v", res)
	}

	// The repeat must be short-circuited, not re-executed.
	if executions != 1 {
		t.Errorf("expected 1 tool execution, got %d", executions)
	}

	// Round 3 sees the blocked-call error as the repeat's tool result.
	third := gen.requests[2].Messages
	blocked := false
	for _, m := range third {
		if m.Role == "tool" && strings.Contains(m.Content, "redundant call blocked") {
			blocked = true
		}
	}
	if !blocked {
		t.Error("expected blocked-call tool result before round 3")
	}
}

func TestRepeatWithDifferentArgumentsIsNotBlocked(t *testing.T) {
	registry := NewRegistry()
	executions := 0
	registry.Register(Tool{
		Name:       "search",
		Parameters: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			executions++
			return "[]", nil
		},
		EmptyResult: func(result string) bool { return result == "[]" },
	})

	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		switch call {
		case 1:
			return Response{ToolCalls: []ToolCall{{ID: "c1", Name: "search", Arguments: `{"q":"x"}`}}}, nil
		case 2:
			return Response{ToolCalls: []ToolCall{{ID: "c2", Name: "search", Arguments: `{"q":"y"}`}}}, nil
		default:
			return Response{Text: "done"}, nil
		}
	}}
	g := New(gen, registry, 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 3})
	if !res.OK() || res.Text != "done" {
		t.Fatalf("expected final text, got %v", res)
	}
	if executions != 2 {
		t.Errorf("expected both distinct calls executed, got %d", executions)
	}
}

func TestRepeatAfterNonEmptyResultIsNotBlocked(t *testing.T) {
	registry := NewRegistry()
	executions := 0
	registry.Register(Tool{
		Name:       "lookup",
		Parameters: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			executions++
			return `{"price": 42}`, nil
		},
		EmptyResult: func(result string) bool { return false },
	})

	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		if call <= 2 {
			return Response{ToolCalls: []ToolCall{{ID: "c", Name: "lookup", Arguments: `{}`}}}, nil
		}
		return Response{Text: "done"}, nil
	}}
	g := New(gen, registry, 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", MaxToolIterations: 3})
	if !res.OK() {
		t.Fatalf("expected success, got %v", res)
	}
	if executions != 2 {
		t.Errorf("expected repeat of non-empty call to execute, got %d executions", executions)
	}
}

func TestGenerateTimeout(t *testing.T) {
	gen := &fakeGen{respond: func(call int, req Request) (Response, error) {
		return Response{}, context.DeadlineExceeded
	}}
	g := New(gen, NewRegistry(), 1, "m", 0, 0)

	res := g.Generate(context.Background(), CallSpec{System: "s", User: "u", Timeout: time.Millisecond})
	if res.OK() {
		t.Fatal("expected timeout failure")
	}
	if res.Reason != ReasonTimeout {
		t.Errorf("expected timeout reason, got %s", res.Reason)
	}
}

func TestClassifySentinelErrors(t *testing.T) {
	cases := []struct {
		err    error
		reason Reason
	}{
		{ErrEmptyResponse, ReasonEmptyResponse},
		{ErrContextLength, ReasonUpstream},
		{ErrSchemaViolation, ReasonSerialization},
		{errors.New("boom"), ReasonUpstream},
	}
	for _, tc := range cases {
		gen := &fakeGen{respond: func(int, Request) (Response, error) {
			return Response{}, tc.err
		}}
		g := New(gen, NewRegistry(), 1, "m", 0, 0)
		res := g.Generate(context.Background(), CallSpec{System: "s", User: "u"})
		if res.OK() {
			t.Fatalf("expected failure for %v", tc.err)
		}
		if res.Reason != tc.reason {
			t.Errorf("error %v: expected reason %s, got %s", tc.err, tc.reason, res.Reason)
		}
	}
}

func TestGenerateCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGen{respond: textOnly("never")}
	g := New(gen, NewRegistry(), 1, "m", 0, 0)

	res := g.Generate(ctx, CallSpec{System: "s", User: "u"})
	if res.OK() {
		t.Fatal("expected failure for cancelled context")
	}
}
