package executor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxExecutorExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		var req sandboxRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.SystemPrompt)

		resp := sandboxResponse{
			TextContent: "all good",
			TotalTokens: 42,
			ToolCalls: []sandboxToolCall{
				{ToolName: "bash", Args: `{"cmd":"ls"}`, DurationMs: 12, ResultPreview: "file1\nfile2", Status: "success", ToolCallID: "tc-1"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewSandboxExecutor(srv.URL, nil)
	result, err := e.Execute(t.Context(), Request{SystemPrompt: "sys", UserPrompt: "go", AllowedTools: []string{"bash"}})
	require.NoError(t, err)
	assert.Equal(t, "all good", result.TextContent)
	assert.Equal(t, int64(42), result.TotalTokens)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "bash", result.ToolCalls[0].Name)
	assert.Nil(t, result.Err)
}

func TestSandboxExecutorExecuteReportsStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := sandboxResponse{TextContent: "partial", TotalTokens: 7, Error: "unknown tool: frobnicate"}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewSandboxExecutor(srv.URL, nil)
	result, err := e.Execute(t.Context(), Request{SystemPrompt: "sys", UserPrompt: "go"})
	require.Error(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, FailureToolError, result.Err.Category)
	assert.Equal(t, "partial", result.Err.PartialText)
	assert.Equal(t, int64(7), result.Err.PartialTokens)
}

func TestSandboxExecutorExecuteServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("container overloaded"))
	}))
	defer srv.Close()

	e := NewSandboxExecutor(srv.URL, nil)
	result, err := e.Execute(t.Context(), Request{SystemPrompt: "sys", UserPrompt: "go"})
	require.Error(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, FailureTransient, result.Err.Category)
}

func TestSandboxExecutorHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewSandboxExecutor(srv.URL, nil)
	assert.True(t, e.Healthy(t.Context()))
}

func TestSandboxExecutorHealthyFailsOnDown(t *testing.T) {
	e := NewSandboxExecutor("http://127.0.0.1:1", nil)
	assert.False(t, e.Healthy(t.Context()))
}
