package executor

import (
	"context"
	"time"

	"github.com/randalmurphal/orc/internal/llmclient"
)

// InProcessExecutor runs a stage in the engine's own process against an
// llmclient.Client. It makes a single completion call and runs no tools;
// Request.Workdir is not read.
//
// Grounded on internal/executor/client_factory.go's ClientFactory
// (model/workdir/timeout baseline options applied to every call) and
// internal/executor/claude_executor.go's TurnExecutor (ExecuteTurn /
// session bookkeeping), collapsed to the single schema-free stage contract
// this engine needs — no session resume, no JSON-schema client variant,
// since contract extraction (C6) runs as a separate pass over the raw
// text rather than constraining the stage call itself.
type InProcessExecutor struct {
	client       llmclient.Client
	defaultModel string
	timeout      time.Duration
	onEvent      EventCallback
}

// InProcessOption configures an InProcessExecutor.
type InProcessOption func(*InProcessExecutor)

// WithDefaultModel sets the model used when a Request doesn't override it.
func WithDefaultModel(model string) InProcessOption {
	return func(e *InProcessExecutor) { e.defaultModel = model }
}

// WithTimeout sets the default call timeout, used when Request.Timeout is zero.
func WithTimeout(d time.Duration) InProcessOption {
	return func(e *InProcessExecutor) { e.timeout = d }
}

// WithEventCallback wires a callback to receive turn/tool lifecycle events.
func WithEventCallback(cb EventCallback) InProcessOption {
	return func(e *InProcessExecutor) { e.onEvent = cb }
}

// NewInProcessExecutor constructs an InProcessExecutor around client.
func NewInProcessExecutor(client llmclient.Client, opts ...InProcessOption) *InProcessExecutor {
	e := &InProcessExecutor{client: client, defaultModel: "claude-3-5-sonnet-latest", timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req as a single completion turn. The in-process executor
// does not itself dispatch tool calls (those are the concern of the
// caller's agent harness, when one is wired); it reports zero tool calls
// for a plain completion and surfaces usage/error per the Executor contract.
func (e *InProcessExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	emit(e.onEvent, ExecEvent{Kind: EventTurnStart, Turn: 1})

	resp, err := e.client.Complete(ctx, llmclient.CompletionRequest{
		Messages: []llmclient.Message{
			{Role: llmclient.RoleUser, Content: req.SystemPrompt + "\n\n" + req.UserPrompt},
		},
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		failure := NewFailure("in-process executor call failed", err)
		emit(e.onEvent, ExecEvent{Kind: EventTurnEnd, Turn: 1, TextDelta: ""})
		return &Result{Err: failure}, failure
	}

	emit(e.onEvent, ExecEvent{Kind: EventTurnEnd, Turn: 1, TextDelta: resp.Content})

	return &Result{
		TextContent:  resp.Content,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
