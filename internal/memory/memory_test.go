package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/task"
)

type fakeStore struct {
	entries map[task.MemoryBucket][]*task.MemoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[task.MemoryBucket][]*task.MemoryEntry{}}
}

func (f *fakeStore) AppendMemories(_ context.Context, entries []*task.MemoryEntry) error {
	for _, e := range entries {
		f.entries[e.Bucket] = append(f.entries[e.Bucket], e)
	}
	return nil
}

func (f *fakeStore) LoadMemories(_ context.Context, projectID string, bucket task.MemoryBucket) ([]*task.MemoryEntry, error) {
	var out []*task.MemoryEntry
	for _, e := range f.entries[bucket] {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) TrimMemories(_ context.Context, _ string, bucket task.MemoryBucket, keep int) error {
	if len(f.entries[bucket]) > keep {
		f.entries[bucket] = f.entries[bucket][len(f.entries[bucket])-keep:]
	}
	return nil
}

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, _ llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmclient.CompletionResponse{Content: f.response}, nil
}

func TestGetMemoryForRole_NoAccessReturnsEmpty(t *testing.T) {
	svc := New(newFakeStore(), nil, true, nil)
	text, err := svc.GetMemoryForRole(context.Background(), "proj-1", "unknown-role")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestGetMemoryForRole_FormatsByBucket(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.AppendMemories(context.Background(), []*task.MemoryEntry{
		{ProjectID: "proj-1", Bucket: task.BucketPatterns, Content: "use functional options"},
		{ProjectID: "proj-1", Bucket: task.BucketIssues, Content: "flaky retry on 429"},
	}))

	svc := New(store, nil, true, nil)
	text, err := svc.GetMemoryForRole(context.Background(), "proj-1", "coding")
	require.NoError(t, err)
	assert.Contains(t, text, "### patterns")
	assert.Contains(t, text, "- use functional options")
	assert.Contains(t, text, "### issues")
}

func TestExtractAndStore_DisabledIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeLLM{response: `[{"category":"patterns","content":"x"}]`}, false, nil)
	svc.ExtractAndStore(context.Background(), "proj-1", "task-1", "Add retries", []StageOutput{{Stage: "coding", Output: "used exponential backoff"}})
	loaded, err := store.LoadMemories(context.Background(), "proj-1", task.BucketPatterns)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestExtractAndStore_NilClientIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil, true, nil)
	svc.ExtractAndStore(context.Background(), "proj-1", "task-1", "Add retries", []StageOutput{{Stage: "coding", Output: "used exponential backoff"}})
	loaded, err := store.LoadMemories(context.Background(), "proj-1", task.BucketPatterns)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestExtractAndStore_PersistsValidBuckets(t *testing.T) {
	store := newFakeStore()
	llm := &fakeLLM{response: `[
		{"category": "patterns", "content": "use exponential backoff for retries", "tags": ["retry"], "confidence": 0.9},
		{"category": "bogus", "content": "should be dropped"},
		{"category": "issues", "content": ""}
	]`}
	svc := New(store, llm, true, nil)
	svc.ExtractAndStore(context.Background(), "proj-1", "task-1", "Add retries", []StageOutput{{Stage: "coding", Output: "used exponential backoff on 429s"}})

	patterns, err := store.LoadMemories(context.Background(), "proj-1", task.BucketPatterns)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "use exponential backoff for retries", patterns[0].Content)
	assert.Equal(t, []string{"retry"}, patterns[0].Tags)
	assert.Equal(t, "task-1", patterns[0].SourceTaskID)

	issues, err := store.LoadMemories(context.Background(), "proj-1", task.BucketIssues)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestExtractAndStore_LLMErrorIsSwallowed(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeLLM{err: assert.AnError}, true, nil)
	svc.ExtractAndStore(context.Background(), "proj-1", "task-1", "Add retries", []StageOutput{{Stage: "coding", Output: "x"}})
	loaded, err := store.LoadMemories(context.Background(), "proj-1", task.BucketPatterns)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestExtractAndStore_EmptyStageOutputsIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeLLM{response: `[]`}, true, nil)
	svc.ExtractAndStore(context.Background(), "proj-1", "task-1", "Add retries", nil)
	loaded, err := store.LoadMemories(context.Background(), "proj-1", task.BucketPatterns)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
