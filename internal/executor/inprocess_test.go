package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/llmclient"
)

type fakeLLMClient struct {
	resp *llmclient.CompletionResponse
	err  error
	reqs []llmclient.CompletionRequest
}

func (f *fakeLLMClient) Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestInProcessExecutorSuccess(t *testing.T) {
	fake := &fakeLLMClient{resp: &llmclient.CompletionResponse{Content: "done", InputTokens: 10, OutputTokens: 5}}
	var events []ExecEvent
	e := NewInProcessExecutor(fake, WithEventCallback(func(ev ExecEvent) { events = append(events, ev) }))

	result, err := e.Execute(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "do it"})
	require.NoError(t, err)
	assert.Equal(t, "done", result.TextContent)
	assert.Equal(t, int64(15), result.TotalTokens)
	assert.Nil(t, result.Err)

	require.Len(t, events, 2)
	assert.Equal(t, EventTurnStart, events[0].Kind)
	assert.Equal(t, EventTurnEnd, events[1].Kind)
	assert.Equal(t, "done", events[1].TextDelta)
}

func TestInProcessExecutorFailure(t *testing.T) {
	fake := &fakeLLMClient{err: errors.New("connection reset")}
	e := NewInProcessExecutor(fake)

	result, err := e.Execute(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "do it"})
	require.Error(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Err)
	assert.Equal(t, FailureTransient, result.Err.Category)
}

func TestInProcessExecutorUsesDefaultModel(t *testing.T) {
	fake := &fakeLLMClient{resp: &llmclient.CompletionResponse{Content: "ok"}}
	e := NewInProcessExecutor(fake, WithDefaultModel("claude-haiku"))

	_, err := e.Execute(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "claude-haiku", fake.reqs[0].Model)
}

func TestInProcessExecutorRequestModelOverridesDefault(t *testing.T) {
	fake := &fakeLLMClient{resp: &llmclient.CompletionResponse{Content: "ok"}}
	e := NewInProcessExecutor(fake, WithDefaultModel("claude-haiku"))

	_, err := e.Execute(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u", Model: "claude-opus"})
	require.NoError(t, err)
	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "claude-opus", fake.reqs[0].Model)
}
