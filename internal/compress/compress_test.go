package compress

import (
	"context"
	"testing"

	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackCompression(t *testing.T) {
	c := New(nil, false, nil)
	out := c.Compress(context.Background(), "parse", "line one\nline two\nline three")
	assert.Equal(t, "line one", out.L0)
	assert.Equal(t, "line one\nline two\nline three", out.L1)
	assert.Equal(t, "line one\nline two\nline three", out.L2)
}

func TestFallbackL0EmptyFirstLine(t *testing.T) {
	out := fallbackL0("\n\nsecond paragraph text")
	assert.NotEmpty(t, out)
}

func TestFallbackL1Truncates(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	out := fallbackL1(string(long))
	assert.Len(t, out, l1FallbackChars+len("\n..."))
}

func TestBuildPriorContextDistanceLevels(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Output{StageName: "parse", L0: "p0", L1: "p1", L2: "p2"})
	acc.Add(Output{StageName: "spec", L0: "s0", L1: "s1", L2: "s2"})
	acc.Add(Output{StageName: "coding", L0: "c0", L1: "c1", L2: "c2"})

	ctx := acc.BuildPriorContext(3, nil)
	require.Len(t, ctx, 3)
	assert.Equal(t, "coding", ctx[2].Stage)
	assert.Equal(t, "c2", ctx[2].Output) // distance 0 -> L2
	assert.Contains(t, ctx[1].Output, "s1")
	assert.Contains(t, ctx[1].Output, levelPrefixL1)
	assert.Contains(t, ctx[0].Output, "p0")
	assert.Contains(t, ctx[0].Output, levelPrefixL0)
}

func TestBuildPriorContextFullContextOverride(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Output{StageName: "parse", L0: "p0", L1: "p1", L2: "p2"})
	acc.Add(Output{StageName: "spec", L0: "s0", L1: "s1", L2: "s2"})

	ctx := acc.BuildPriorContext(2, []string{"parse"})
	assert.Equal(t, "p2", ctx[0].Output) // overridden to full L2 despite distance 1
}

func TestBuildPriorContextProducesExactlyIEntries(t *testing.T) {
	acc := NewAccumulator()
	for i := 0; i < 5; i++ {
		acc.Add(Output{StageName: "s", L0: "0", L1: "1", L2: "2"})
	}
	ctx := acc.BuildPriorContext(3, nil)
	assert.Len(t, ctx, 3)
}

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

func TestLLMCompressionFallsBackOnBadJSON(t *testing.T) {
	c := New(&fakeLLM{content: "not json"}, true, nil)
	out := c.Compress(context.Background(), "parse", "hello world")
	assert.Equal(t, "hello world", out.L0)
}

func TestLLMCompressionUsesParsedFields(t *testing.T) {
	c := New(&fakeLLM{content: `{"l0":"short","l1":"bullets"}`}, true, nil)
	out := c.Compress(context.Background(), "parse", "hello world")
	assert.Equal(t, "short", out.L0)
	assert.Equal(t, "bullets", out.L1)
	assert.Equal(t, "hello world", out.L2)
}
