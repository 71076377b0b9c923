package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/store"
	"github.com/randalmurphal/orc/internal/task"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DialectSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testConfig returns an EngineConfig with every LLM-backed side feature
// (contracts, compression, memory, circuit breaker, dynamic gate/routing,
// interactive planning) off, so tests opt individual features back in
// rather than fight defaults tuned for production.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Model = "test-model"
	cfg.Engine.PollInterval = 20 * time.Millisecond
	cfg.Engine.StaleClaimAfter = time.Hour
	cfg.Engine.GraphExecutionEnabled = true
	cfg.Engine.GraphMaxLoopMultiplier = 10
	cfg.Engine.GatePollInterval = 10 * time.Millisecond
	cfg.Engine.GateMaxWait = time.Second
	cfg.Engine.CircuitBreaker = config.CircuitBreakerConfig{}
	cfg.Engine.DynamicGate = config.DynamicGateConfig{}
	cfg.Engine.DynamicRouting = config.DynamicRoutingConfig{}
	cfg.Engine.InteractivePlanning = config.InteractivePlanningConfig{}
	cfg.Engine.MemoryEnabled = false
	cfg.Engine.CompressionEnabled = false
	cfg.Engine.ContractsEnabled = false
	cfg.Sandbox.Enabled = false
	return cfg
}

// fakeLLM returns a canned response (or error) to every Complete call,
// recording how many times it was invoked.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(_ context.Context, _ llmclient.CompletionRequest) (*llmclient.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llmclient.CompletionResponse{Content: f.responses[idx], InputTokens: 10, OutputTokens: 20}, nil
}

func newEngine(t *testing.T, cfg *config.Config, llm llmclient.Client) (*Engine, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	e := New(st, events.NewNopPublisher(), nil, cfg, llm, nil)
	return e, st
}

func linearTemplate() *task.Template {
	return &task.Template{
		ID:      "tpl-linear",
		Name:    "linear-two-stage",
		Version: 1,
		Stages: []task.StageDefinition{
			{Name: "spec", AgentRole: "spec", Order: 1, Instruction: "write a spec"},
			{Name: "review", AgentRole: "review", Order: 2, Instruction: "review the spec"},
		},
	}
}

func createTask(t *testing.T, st *store.Store, tmpl *task.Template) *task.Task {
	t.Helper()
	require.NoError(t, st.CreateTemplate(context.Background(), tmpl))
	tk := &task.Task{
		ID:            fmt.Sprintf("task-%d", time.Now().UnixNano()),
		CorrelationID: "corr-1",
		Title:         "do the thing",
		Status:        task.StatusPending,
		ProjectID:     "proj-1",
		TemplateID:    tmpl.ID,
		TemplateVer:   tmpl.Version,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.CreateTask(context.Background(), tk))
	return tk
}

func TestProcessTask_LinearTemplateCompletes(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.GraphExecutionEnabled = false
	e, st := newEngine(t, cfg, &fakeLLM{responses: []string{"spec done", "looks good"}})

	tmpl := linearTemplate()
	tk := createTask(t, st, tmpl)

	e.processTask(context.Background(), tk)

	got, err := st.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	stages, err := st.ListStages(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	for _, s := range stages {
		assert.Equal(t, task.StageStatusCompleted, s.Status)
	}
}

func TestProcessTask_MissingTemplateFailsTask(t *testing.T) {
	cfg := testConfig()
	e, st := newEngine(t, cfg, &fakeLLM{responses: []string{"x"}})

	tk := &task.Task{
		ID:         "task-no-tpl",
		Title:      "orphan",
		Status:     task.StatusPending,
		TemplateID: "does-not-exist",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateTask(context.Background(), tk))

	e.processTask(context.Background(), tk)

	got, err := st.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.NotEmpty(t, got.FailReason)
}

func TestProcessTask_GraphDriverCompletesDependentStages(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.GraphExecutionEnabled = true
	e, st := newEngine(t, cfg, &fakeLLM{responses: []string{"spec done", "code done"}})

	tmpl := &task.Template{
		ID:      "tpl-graph",
		Name:    "graph-two-stage",
		Version: 1,
		Stages: []task.StageDefinition{
			{Name: "spec", AgentRole: "spec", Order: 1, Instruction: "write a spec"},
			{Name: "review", AgentRole: "review", Order: 2, Instruction: "review it", DependsOn: []string{"spec"}},
		},
	}
	tk := createTask(t, st, tmpl)

	e.processTask(context.Background(), tk)

	got, err := st.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestEngineStartStop_ClaimsAndRunsPendingTask(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.GraphExecutionEnabled = false
	e, st := newEngine(t, cfg, &fakeLLM{responses: []string{"spec done", "looks good"}})

	tmpl := linearTemplate()
	tmpl.ID = "tpl-startstop"
	tk := createTask(t, st, tmpl)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetTask(context.Background(), tk.ID)
		require.NoError(t, err)
		if got.Status == task.StatusCompleted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("task never completed within deadline")
}
