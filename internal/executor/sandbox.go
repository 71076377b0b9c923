package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SandboxExecutor posts a stage request to the long-lived HTTP server
// inside a task's sandbox container and reports back the same structured
// response an in-process executor would.
//
// Wire contract (spec'd, no teacher precedent for the client side — the
// teacher never ran agents in a remote container): POST /execute with a
// JSON body, GET /health for readiness. net/http is used directly per
// DESIGN.md's C3 entry: a two-route internal service client gains nothing
// from a third-party HTTP client in this pack.
type SandboxExecutor struct {
	baseURL string
	client  *http.Client
}

// NewSandboxExecutor constructs a SandboxExecutor targeting baseURL (the
// per-task container's address, e.g. "http://127.0.0.1:9001").
func NewSandboxExecutor(baseURL string, httpClient *http.Client) *SandboxExecutor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &SandboxExecutor{baseURL: baseURL, client: httpClient}
}

// Healthy reports whether the sandbox's /health endpoint returns 200.
func (e *SandboxExecutor) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type sandboxRequest struct {
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	Model        string   `json:"model"`
	MaxTurns     int      `json:"max_turns"`
	EnableTools  bool     `json:"enable_tools"`
	AllowedTools []string `json:"allowed_tools"`
	SkillDirs    []string `json:"skill_dirs"`
	Workdir      string   `json:"workdir"`
	Timeout      int      `json:"timeout"`
}

type sandboxToolCall struct {
	ToolName      string `json:"tool_name"`
	Args          string `json:"args"`
	DurationMs    int64  `json:"duration_ms"`
	ResultPreview string `json:"result_preview"`
	Status        string `json:"status"`
	ToolCallID    string `json:"tool_call_id"`
}

type sandboxResponse struct {
	TextContent string            `json:"text_content"`
	TotalTokens int64             `json:"total_tokens"`
	ToolCalls   []sandboxToolCall `json:"tool_calls"`
	Error       string            `json:"error"`
}

// Execute posts req to the sandbox's /execute endpoint.
func (e *SandboxExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	body, err := json.Marshal(sandboxRequest{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Model:        req.Model,
		MaxTurns:     req.MaxTurns,
		EnableTools:  len(req.AllowedTools) > 0,
		AllowedTools: req.AllowedTools,
		SkillDirs:    req.SkillDirs,
		Workdir:      req.Workdir,
		Timeout:      int(timeout.Seconds()),
	})
	if err != nil {
		return nil, NewFailure("marshal sandbox request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, NewFailure("build sandbox request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		failure := NewFailure("sandbox executor call failed", err)
		return &Result{Err: failure}, failure
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFailure("read sandbox response", err)
	}

	if resp.StatusCode >= 500 {
		failure := NewFailure(fmt.Sprintf("sandbox returned %d: %s", resp.StatusCode, string(raw)), nil)
		return &Result{Err: failure}, failure
	}

	var sr sandboxResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, NewFailure("decode sandbox response", err)
	}

	result := &Result{
		TextContent: sr.TextContent,
		TotalTokens: sr.TotalTokens,
		ToolCalls:   make([]ToolCall, 0, len(sr.ToolCalls)),
	}
	for _, tc := range sr.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:            tc.ToolCallID,
			Name:          tc.ToolName,
			Args:          tc.Args,
			Status:        tc.Status,
			DurationMs:    tc.DurationMs,
			ResultPreview: truncateTail(tc.ResultPreview, 2000),
		})
	}

	if sr.Error != "" {
		failure := NewFailure(sr.Error, nil)
		failure.PartialText = sr.TextContent
		failure.PartialTokens = sr.TotalTokens
		result.Err = failure
		return result, failure
	}

	return result, nil
}
