// Package executor runs a single stage: builds the turn request, invokes an
// agent, streams tool-call events, and returns normalized output plus token
// usage. The engine treats an Executor as opaque beyond this contract — it
// never inspects how a stage ran, only what it produced.
//
// Two variants share the contract: InProcessExecutor runs inside the
// engine's own process against internal/llmclient; SandboxExecutor posts
// the same request to a long-lived HTTP server inside a per-task
// container. Grounded on internal/executor/client_factory.go's
// options-factory pattern and internal/executor/claude_executor.go's
// TurnExecutor abstraction, retargeted from the Claude CLI subprocess
// wrapper to the stage contract above.
package executor

import (
	"context"
	"strings"
	"time"
)

// Request is a single stage invocation.
type Request struct {
	SystemPrompt string
	UserPrompt   string

	Model       string
	MaxTurns    int
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	AllowedTools []string
	SkillDirs    []string
	Workdir      string
}

// ToolCall records one tool invocation made while executing a stage.
type ToolCall struct {
	ID            string
	Name          string
	Args          string
	Status        string // success, error
	DurationMs    int64
	ResultPreview string
}

// Result is the normalized output of a stage execution.
type Result struct {
	TextContent  string
	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64
	ToolCalls    []ToolCall
	Err          *Failure
}

// FailureCategory classifies an executor error for retry/redirect decisions.
type FailureCategory string

const (
	FailureTransient FailureCategory = "transient"
	FailureToolError FailureCategory = "tool_error"
	FailureResource  FailureCategory = "resource"
	FailureSemantic  FailureCategory = "semantic"
	FailureUnknown   FailureCategory = "unknown"
)

// Failure is the single exception type an executor raises. Partial output
// (PartialText/PartialTokens) is preserved so the engine can still persist
// usage for a stage that failed mid-turn.
type Failure struct {
	Category      FailureCategory
	Message       string
	Cause         error
	PartialText   string
	PartialTokens int64
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return f.Message + ": " + f.Cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Cause }

var transientMarkers = []string{"timeout", "deadline exceeded", "connection refused", "connection reset", "eof", "502", "503", "504", "rate limit", "rate-limited"}
var toolErrorMarkers = []string{"invalid tool", "unknown tool", "tool not found", "malformed tool call", "tool schema"}
var resourceMarkers = []string{"circuit breaker", "circuit_breaker", "quota", "out of memory", "oom", "429", "resource exhausted"}
var semanticMarkers = []string{"quality", "logic error", "content policy", "incoherent", "contradicts"}

// ClassifyFailure matches error text against the predicate sets in
// decreasing specificity: resource and tool_error markers are checked
// before the more generic transient bucket so "429 rate limit" (a
// resource signal) isn't mis-bucketed as transient.
func ClassifyFailure(err error) FailureCategory {
	if err == nil {
		return FailureUnknown
	}
	return classifyText(err.Error())
}

func classifyText(text string) FailureCategory {
	text = strings.ToLower(text)
	for _, m := range resourceMarkers {
		if strings.Contains(text, m) {
			return FailureResource
		}
	}
	for _, m := range toolErrorMarkers {
		if strings.Contains(text, m) {
			return FailureToolError
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(text, m) {
			return FailureTransient
		}
	}
	for _, m := range semanticMarkers {
		if strings.Contains(text, m) {
			return FailureSemantic
		}
	}
	return FailureUnknown
}

// NewFailure wraps cause, classifying it via ClassifyFailure. When cause is
// nil (e.g. a structured error string reported by a sandboxed executor),
// the message itself is classified instead.
func NewFailure(message string, cause error) *Failure {
	category := ClassifyFailure(cause)
	if cause == nil {
		category = classifyText(message)
	}
	return &Failure{Category: category, Message: message, Cause: cause}
}

// Executor runs a single stage and returns its result.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// truncateTail truncates s to maxLen, keeping the end (the most relevant
// part of a long tool result or error message).
func truncateTail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "...(truncated)...\n" + s[len(s)-maxLen:]
}
