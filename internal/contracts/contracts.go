// Package contracts extracts a typed structured summary from a stage's raw
// output text, per stage kind, for use by conditions, gates and routing.
//
// Grounded on original_source/platform/app/worker/contracts.py (no teacher Go
// precedent exists for this component).
package contracts

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/tidwall/gjson"
)

// Status is the pass/fail/partial outcome of a stage as self-assessed by the
// extraction call.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusPartial Status = "partial"
)

// Base is the common structured-output shape every stage kind produces.
type Base struct {
	Summary    string         `json:"summary"`
	Status     Status         `json:"status"`
	Confidence float64        `json:"confidence"`
	Artifacts  []string       `json:"artifacts"`
	Metadata   map[string]any `json:"metadata"`
}

func defaultBase() Base {
	return Base{Status: StatusPass, Confidence: 1.0, Artifacts: []string{}, Metadata: map[string]any{}}
}

// Parse, Spec, Code, Test, Review, Smoke and Doc mirror the kind-specific
// subtypes of the Python reference's pydantic hierarchy via struct embedding.

type Parse struct {
	Base
	Requirements    []string `json:"requirements"`
	Risks           []string `json:"risks"`
	SuggestedStages []string `json:"suggested_stages"`
}

type Spec struct {
	Base
	Interfaces  []string `json:"interfaces"`
	DataModels  []string `json:"data_models"`
	TechChoices []string `json:"tech_choices"`
}

type Code struct {
	Base
	FilesModified []string `json:"files_modified"`
	LinesChanged  int      `json:"lines_changed"`
	Language      string   `json:"language"`
}

type Test struct {
	Base
	TestsPassed   int      `json:"tests_passed"`
	TestsFailed   int      `json:"tests_failed"`
	Coverage      *float64 `json:"coverage,omitempty"`
	TestFramework string   `json:"test_framework"`
}

type Review struct {
	Base
	IssuesCritical int      `json:"issues_critical"`
	IssuesMajor    int      `json:"issues_major"`
	IssuesMinor    int      `json:"issues_minor"`
	BlockingIssues []string `json:"blocking_issues"`
}

type Smoke struct {
	Base
	ScenariosPassed int `json:"scenarios_passed"`
	ScenariosFailed int `json:"scenarios_failed"`
}

type Doc struct {
	Base
	DocTypes []string `json:"doc_types"`
}

// StageKinds lists every recognized stage kind, in registry iteration order.
var StageKinds = []string{"parse", "spec", "code", "test", "review", "smoke", "doc", "signoff", "approve"}

// newForKind returns a freshly defaulted contract value for the given kind,
// or the bare Base for signoff/approve/unknown kinds.
func newForKind(kind string) any {
	switch kind {
	case "parse":
		return &Parse{Base: defaultBase()}
	case "spec":
		return &Spec{Base: defaultBase()}
	case "code":
		return &Code{Base: defaultBase()}
	case "test":
		return &Test{Base: defaultBase()}
	case "review":
		return &Review{Base: defaultBase()}
	case "smoke":
		return &Smoke{Base: defaultBase()}
	case "doc":
		return &Doc{Base: defaultBase()}
	default:
		b := defaultBase()
		return &b
	}
}

// Extractor pulls structured data out of raw stage text via a schema-hinted
// LLM call, falling back to a minimal Base summary on any failure.
type Extractor struct {
	client  llmclient.Client
	enabled bool
	logger  *slog.Logger
}

// New constructs an Extractor. enabled corresponds to STAGE_CONTRACTS_ENABLED.
func New(client llmclient.Client, enabled bool, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, enabled: enabled, logger: logger}
}

// Extract returns the canonical JSON encoding of the stage's structured
// output, or nil if extraction is disabled.
func (e *Extractor) Extract(ctx context.Context, stageKind, rawOutput string) json.RawMessage {
	if !e.enabled {
		return nil
	}
	if e.client == nil {
		return e.minimalFallback(rawOutput)
	}

	truncated := rawOutput
	if len(truncated) > 8000 {
		truncated = truncated[:8000]
	}
	prompt := "你是一个结构化数据提取助手。请从以下【" + stageKind + "】阶段的产出中提取结构化信息。\n\n---\n" +
		truncated + "\n---\n\n请严格按以下 JSON 格式回复（不要添加 markdown 代码块标记）。"

	resp, err := e.client.Complete(ctx, llmclient.CompletionRequest{
		Messages:    []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err != nil {
		e.logger.Warn("structured output extraction failed", "stage", stageKind, "error", err)
		return e.minimalFallback(rawOutput)
	}

	content := stripMarkdownFence(resp.Content)
	target := newForKind(stageKind)
	if err := json.Unmarshal([]byte(content), target); err != nil {
		// Lenient recovery: pull whatever fields gjson can find before
		// degrading all the way to the minimal base.
		if recovered, ok := lenientRecover(content, stageKind); ok {
			return recovered
		}
		e.logger.Warn("structured output parse failed", "stage", stageKind, "error", err)
		return e.minimalFallback(rawOutput)
	}

	encoded, err := json.Marshal(target)
	if err != nil {
		return e.minimalFallback(rawOutput)
	}
	return encoded
}

func (e *Extractor) minimalFallback(rawOutput string) json.RawMessage {
	summary := rawOutput
	if idx := strings.IndexByte(summary, '\n'); idx >= 0 {
		summary = summary[:idx]
	}
	summary = strings.TrimSpace(summary)
	if len(summary) > 200 {
		summary = summary[:200]
	}
	b := defaultBase()
	b.Summary = summary
	encoded, err := json.Marshal(b)
	if err != nil {
		return nil
	}
	return encoded
}

func stripMarkdownFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	rest := content
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}

// lenientRecover uses gjson to pull the base fields out of a response that
// failed strict JSON unmarshal (e.g. trailing commentary around the JSON
// object), building a best-effort Base rather than discarding everything.
func lenientRecover(content, stageKind string) (json.RawMessage, bool) {
	if !gjson.Valid(content) {
		return nil, false
	}
	summary := gjson.Get(content, "summary").String()
	if summary == "" {
		return nil, false
	}
	b := defaultBase()
	b.Summary = summary
	if s := gjson.Get(content, "status").String(); s != "" {
		b.Status = Status(s)
	}
	if c := gjson.Get(content, "confidence"); c.Exists() {
		b.Confidence = c.Float()
	}
	encoded, err := json.Marshal(b)
	if err != nil {
		return nil, false
	}
	return encoded, true
}
