package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/task"
)

func TestExtractMemory_NoProjectIDIsNoop(t *testing.T) {
	e, _ := newEngine(t, testConfig(), &fakeLLM{responses: []string{`[{"category":"patterns","content":"use retries","tags":["x"],"confidence":0.8}]`}})
	tmpl := &task.Template{ID: "tpl-mem-noproj", Name: "mem-noproj", Version: 1}
	tk := &task.Task{ID: "task-mem-noproj", TemplateID: tmpl.ID, Status: task.StatusRunning}
	run := &taskRun{stages: map[string]*task.Stage{
		"spec": {Name: "spec", Status: task.StageStatusCompleted, Output: "a spec"},
	}}

	assert.NotPanics(t, func() { e.extractMemory(context.Background(), tk, run) })
}

func TestExtractMemory_ExtractsFromCompletedStagesOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MemoryEnabled = true
	llm := &fakeLLM{responses: []string{`[{"category":"patterns","content":"use retries with backoff","tags":["retry"],"confidence":0.8}]`}}
	e, st := newEngine(t, cfg, llm)

	tk := &task.Task{ID: "task-mem-1", ProjectID: "proj-mem", Title: "add retries", Status: task.StatusRunning}
	run := &taskRun{stages: map[string]*task.Stage{
		"spec":   {Name: "spec", Status: task.StageStatusCompleted, Output: "design doc"},
		"coding": {Name: "coding", Status: task.StageStatusFailed, Output: "should be ignored"},
		"empty":  {Name: "empty", Status: task.StageStatusCompleted, Output: ""},
	}}

	e.extractMemory(context.Background(), tk, run)

	entries, err := st.LoadMemories(context.Background(), "proj-mem", task.BucketPatterns)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "use retries with backoff", entries[0].Content)
	assert.Equal(t, 1, llm.calls)
}

func TestExtractMemory_AllStagesUnusableIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MemoryEnabled = true
	llm := &fakeLLM{responses: []string{`[]`}}
	e, _ := newEngine(t, cfg, llm)

	tk := &task.Task{ID: "task-mem-2", ProjectID: "proj-mem-2", Status: task.StatusRunning}
	run := &taskRun{stages: map[string]*task.Stage{
		"coding": {Name: "coding", Status: task.StageStatusFailed, Output: "boom"},
	}}

	e.extractMemory(context.Background(), tk, run)
	assert.Equal(t, 0, llm.calls, "no completed stage output means extraction is never attempted")
}
