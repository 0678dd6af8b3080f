package gateway

import (
	"errors"
	"fmt"
)

// Reason classifies why a generation call failed.
type Reason string

const (
	ReasonTimeout           Reason = "timeout"
	ReasonUpstream          Reason = "upstream-error"
	ReasonEmptyResponse     Reason = "empty-response"
	ReasonMalformedToolCall Reason = "malformed-tool-call"
	ReasonSerialization     Reason = "serialization-error"
	ReasonOther             Reason = "other"
)

// Result is the tagged outcome of a generation call. A zero Reason means
// success; failures never carry text and successes never carry a reason.
type Result struct {
	Text    string
	Reason  Reason
	Message string
}

func Ok(text string) Result {
	return Result{Text: text}
}

func Fail(reason Reason, format string, args ...interface{}) Result {
	return Result{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the call produced usable text.
func (r Result) OK() bool {
	return r.Reason == ""
}

func (r Result) String() string {
	if r.OK() {
		return "ok"
	}
	return fmt.Sprintf("failed(%s): %s", r.Reason, r.Message)
}

// Sentinel errors the TextGenerator implementation may wrap so the gateway
// can classify upstream failures that the capability surfaces distinctly.
var (
	ErrEmptyResponse   = errors.New("empty response from model")
	ErrContextLength   = errors.New("context length exceeded")
	ErrSchemaViolation = errors.New("structured output schema violation")
)
