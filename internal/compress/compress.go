// Package compress produces L0/L1/L2 compression levels for stage outputs and
// builds the sliding-window prior-context list injected into subsequent
// stage prompts.
//
// Grounded on original_source/platform/app/worker/compressor.py (no teacher
// Go precedent exists for this component).
package compress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/orc/internal/llmclient"
)

const (
	l0FallbackChars = 200
	l1FallbackChars = 1500

	levelPrefixL1 = "[摘要]"
	levelPrefixL0 = "[概要]"
)

// Output holds all three compression levels for a single stage's output.
type Output struct {
	StageName string
	L0        string // one-line summary
	L1        string // bullet points
	L2        string // full original text
}

// PriorContextEntry is one entry of the prior-context list injected into a
// stage prompt.
type PriorContextEntry struct {
	Stage  string
	Output string
}

// Accumulator collects compressed outputs in stage-completion order and
// builds sliding-window prior context for the next stage to execute.
type Accumulator struct {
	outputs []Output
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// Add appends a stage's compressed output, in completion order.
func (a *Accumulator) Add(o Output) { a.outputs = append(a.outputs, o) }

// Len reports how many stage outputs have been accumulated.
func (a *Accumulator) Len() int { return len(a.outputs) }

// BuildPriorContext builds the prior-context list for the stage about to
// execute at currentIndex (0-based, counting only stages that have already
// been added to the accumulator). Distance-based level selection:
//
//	distance 0 (immediately preceding) -> full L2
//	distance 1                         -> L1 prefixed with [摘要]
//	distance >= 2                      -> L0 prefixed with [概要]
//
// Stages named in fullContextStages always receive full L2 regardless of
// distance (the `context_from` override in spec.md §4.5).
func (a *Accumulator) BuildPriorContext(currentIndex int, fullContextStages []string) []PriorContextEntry {
	full := make(map[string]bool, len(fullContextStages))
	for _, s := range fullContextStages {
		full[s] = true
	}

	result := make([]PriorContextEntry, 0, len(a.outputs))
	for i, o := range a.outputs {
		if i >= currentIndex {
			break
		}
		distance := currentIndex - i - 1
		var text string
		switch {
		case full[o.StageName] || distance <= 0:
			text = o.L2
		case distance == 1:
			text = levelPrefixL1 + "\n" + o.L1
		default:
			text = levelPrefixL0 + " " + o.L0
		}
		result = append(result, PriorContextEntry{Stage: o.StageName, Output: text})
	}
	return result
}

// Compressor produces L0/L1/L2 triples for raw stage output, using the LLM
// when enabled and falling back to truncation otherwise or on error.
type Compressor struct {
	client  llmclient.Client
	enabled bool
	logger  *slog.Logger
}

// New constructs a Compressor. client may be nil; enabled gates whether the
// LLM path is attempted at all (MEMORY_COMPRESSION_ENABLED in spec §6).
func New(client llmclient.Client, enabled bool, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{client: client, enabled: enabled, logger: logger}
}

// Compress produces an Output for the given stage's raw text.
func (c *Compressor) Compress(ctx context.Context, stageName, output string) Output {
	if !c.enabled || c.client == nil {
		return Output{StageName: stageName, L0: fallbackL0(output), L1: fallbackL1(output), L2: output}
	}

	l0, l1, err := c.llmCompress(ctx, stageName, output)
	if err != nil {
		c.logger.Warn("llm compression failed, using fallback", "stage", stageName, "error", err)
		return Output{StageName: stageName, L0: fallbackL0(output), L1: fallbackL1(output), L2: output}
	}
	return Output{StageName: stageName, L0: l0, L1: l1, L2: output}
}

type compressionResponse struct {
	L0 string `json:"l0"`
	L1 string `json:"l1"`
}

func (c *Compressor) llmCompress(ctx context.Context, stageName, output string) (string, string, error) {
	truncated := output
	if len(truncated) > 6000 {
		truncated = truncated[:6000]
	}
	prompt := fmt.Sprintf(
		"你是一个技术文档压缩助手。请对以下【%s】阶段的产出进行两级压缩：\n\n---\n%s\n---\n\n"+
			`请严格按以下 JSON 格式回复（不要添加 markdown 代码块标记）：`+
			`{"l0": "一句话概括该阶段产出（不超过50字）", "l1": "要点摘要，用换行分隔的3-5个要点（每个要点不超过80字）"}`,
		stageName, truncated,
	)

	resp, err := c.client.Complete(ctx, llmclient.CompletionRequest{
		Messages:    []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   600,
	})
	if err != nil {
		return "", "", err
	}

	var data compressionResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &data); err != nil {
		return "", "", fmt.Errorf("parse llm compression response: %w", err)
	}
	return data.L0, data.L1, nil
}

// fallbackL0 returns the first line, truncated; falls back to the first 200
// chars of the raw output when the first line is empty (SPEC_FULL.md
// supplemented feature 7).
func fallbackL0(output string) string {
	firstLine := output
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		firstLine = output[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if len(firstLine) > l0FallbackChars {
		return firstLine[:l0FallbackChars] + "..."
	}
	if firstLine != "" {
		return firstLine
	}
	if len(output) > l0FallbackChars {
		return strings.TrimSpace(output[:l0FallbackChars])
	}
	return strings.TrimSpace(output)
}

// fallbackL1 returns the first 1500 characters plus an ellipsis marker.
func fallbackL1(output string) string {
	if len(output) <= l1FallbackChars {
		return output
	}
	return output[:l1FallbackChars] + "\n..."
}
