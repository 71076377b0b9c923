package contracts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, req llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmclient.CompletionResponse{Content: f.content}, nil
}

func TestExtractDisabledReturnsNil(t *testing.T) {
	e := New(nil, false, nil)
	assert.Nil(t, e.Extract(context.Background(), "test", "tests passed: 10"))
}

func TestExtractNoClientFallsBackToMinimal(t *testing.T) {
	e := New(nil, true, nil)
	raw := e.Extract(context.Background(), "test", "all green\nmore detail")
	var b Base
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, "all green", b.Summary)
	assert.Equal(t, StatusPass, b.Status)
}

func TestExtractParsesKindSpecificFields(t *testing.T) {
	payload := `{"summary":"tests ran","status":"pass","confidence":0.9,"artifacts":[],"metadata":{},"tests_passed":12,"tests_failed":1,"test_framework":"go test"}`
	e := New(&fakeLLM{content: payload}, true, nil)
	raw := e.Extract(context.Background(), "test", "irrelevant")
	var tc Test
	require.NoError(t, json.Unmarshal(raw, &tc))
	assert.Equal(t, 12, tc.TestsPassed)
	assert.Equal(t, 1, tc.TestsFailed)
	assert.Equal(t, "go test", tc.TestFramework)
}

func TestExtractStripsMarkdownFence(t *testing.T) {
	payload := "```json\n{\"summary\":\"ok\",\"status\":\"pass\",\"confidence\":1,\"artifacts\":[],\"metadata\":{}}\n```"
	e := New(&fakeLLM{content: payload}, true, nil)
	raw := e.Extract(context.Background(), "signoff", "irrelevant")
	var b Base
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, "ok", b.Summary)
}

func TestExtractDegradesOnUnparsableResponse(t *testing.T) {
	e := New(&fakeLLM{content: "not json at all"}, true, nil)
	raw := e.Extract(context.Background(), "code", "fallback summary line\nrest")
	var b Base
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, "fallback summary line", b.Summary)
}
