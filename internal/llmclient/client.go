// Package llmclient defines the narrow LLM client interface consumed by the
// gate evaluator, the compressor and the contract extractor, backed by the
// Anthropic SDK.
//
// This replaces the teacher's private github.com/randalmurphal/llmkit/v2
// module (a local `replace ... => ../llmkit` dependency that does not exist
// in this workspace and is not a fetchable published module — see
// DESIGN.md's "LLM client" entry).
package llmclient

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Role is a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is one schema-constrained or free-form completion call.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	// JSONSchema, when set, constrains the response to the given JSON Schema
	// document via a forced tool call.
	JSONSchema string
}

// CompletionResponse is the normalized response shape.
type CompletionResponse struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Client is the interface the engine's LLM-backed components depend on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

const defaultModel = "claude-3-5-sonnet-latest"
const defaultMaxTokens = 4096

// AnthropicClient backs Client with the Anthropic SDK.
type AnthropicClient struct {
	sdk   anthropic.Client
	model string
}

// New constructs an AnthropicClient. apiKey may be empty to pick up
// ANTHROPIC_API_KEY from the environment, matching the SDK's default option
// resolution.
func New(apiKey, model string) *AnthropicClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultModel
	}
	return &AnthropicClient{sdk: anthropic.NewClient(opts...), model: model}
}

// Complete issues a single completion call, optionally constrained to a JSON
// Schema via a forced single-tool call named "respond".
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  toSDKMessages(req.Messages),
	}

	if req.JSONSchema != "" {
		return c.completeWithSchema(ctx, params, req.JSONSchema)
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return toResponse(msg), nil
}

func (c *AnthropicClient) completeWithSchema(ctx context.Context, params anthropic.MessageNewParams, schema string) (*CompletionResponse, error) {
	params.Tools = []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "respond",
				Description: anthropic.String("Emit the structured response"),
				InputSchema: anthropic.ToolInputSchemaParam{},
			},
		},
	}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: "respond"},
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, block := range msg.Content {
		if block.Type == "tool_use" {
			return &CompletionResponse{
				Content:      string(block.Input),
				InputTokens:  msg.Usage.InputTokens,
				OutputTokens: msg.Usage.OutputTokens,
			}, nil
		}
	}
	return nil, errors.New("anthropic response contained no tool_use block for schema-constrained call")
}

func toSDKMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func toResponse(msg *anthropic.Message) *CompletionResponse {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &CompletionResponse{
		Content:      text,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
}
