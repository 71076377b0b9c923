package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/orc/internal/store"
	"github.com/randalmurphal/orc/internal/task"
)

// decideFirstPendingGate polls the store until a gate for stageName exists
// and then records a decision on it, simulating an async human reviewer.
// Intended to run in its own goroutine, racing the engine's own gate poll.
func decideFirstPendingGate(t *testing.T, st *store.Store, taskID, stageName string, status task.GateStatus, comment string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		gates, err := st.ListPendingGates(context.Background())
		require.NoError(t, err)
		for _, g := range gates {
			if g.TaskID == taskID && g.StageName == stageName {
				require.NoError(t, st.DecideGate(context.Background(), g.ID, status, "reviewer-1", comment, ""))
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no pending gate appeared for stage %q", stageName)
}

func TestRunGateWithRetry_ApprovedCompletesImmediately(t *testing.T) {
	e, st := newEngine(t, testConfig(), &fakeLLM{responses: []string{"spec done"}})
	tmpl := &task.Template{
		ID: "tpl-gate-approve", Name: "gate-approve", Version: 1,
		Gates: []task.GateDefinition{{AfterStage: "review", Type: task.GateTypeHumanApprove, MaxRetries: 1}},
	}
	tk := createTask(t, st, tmpl)
	run := &taskRun{tmpl: tmpl, structured: map[string]json.RawMessage{}, stages: map[string]*task.Stage{}, log: e.taskLogger(tk)}
	accum := e.newAccumulator(run)
	sd := task.StageDefinition{Name: "review", AgentRole: "review", Order: 1}
	gd := task.GateDefinition{AfterStage: "review", Type: task.GateTypeHumanApprove, MaxRetries: 1}
	sTage := &task.Stage{Name: "review", TaskID: tk.ID, Status: task.StageStatusCompleted}

	go decideFirstPendingGate(t, st, tk.ID, "review", task.GateStatusApproved, "looks fine")

	outcome, err := e.runGateWithRetry(context.Background(), tk, run, accum, sd, sTage, gd)
	require.NoError(t, err)
	assert.Equal(t, stageOutcomeCompleted, outcome)
}

func TestRunGateWithRetry_RejectionExhaustsSingleRetryBudget(t *testing.T) {
	llm := &fakeLLM{responses: []string{"spec done", "spec v2"}}
	e, st := newEngine(t, testConfig(), llm)
	tmpl := &task.Template{
		ID: "tpl-gate-reject", Name: "gate-reject", Version: 1,
		Gates: []task.GateDefinition{{AfterStage: "review", Type: task.GateTypeHumanApprove, MaxRetries: 1}},
	}
	tk := createTask(t, st, tmpl)
	run := &taskRun{tmpl: tmpl, structured: map[string]json.RawMessage{}, stages: map[string]*task.Stage{}, log: e.taskLogger(tk)}
	accum := e.newAccumulator(run)
	sd := task.StageDefinition{Name: "review", AgentRole: "review", Order: 1}
	gd := task.GateDefinition{AfterStage: "review", Type: task.GateTypeHumanApprove, MaxRetries: 1}
	sTage := &task.Stage{Name: "review", TaskID: tk.ID, Status: task.StageStatusCompleted}

	// MaxRetries: 1 means a single rejection (bumping the gate's
	// retry_count from 0 to 1) already exhausts RetriesRemaining, so the
	// stage fails without ever re-dispatching.
	go decideFirstPendingGate(t, st, tk.ID, "review", task.GateStatusRejected, "needs work")

	outcome, err := e.runGateWithRetry(context.Background(), tk, run, accum, sd, sTage, gd)
	require.Error(t, err)
	assert.Equal(t, stageOutcomeFailed, outcome)
	assert.Equal(t, task.FailureGateRejected, sTage.FailureCategory)
	assert.Equal(t, 0, llm.calls, "no retry dispatch should occur once the budget is exhausted")
}

func TestRunGateWithRetry_RejectionThenApproveOnRetryDispatch(t *testing.T) {
	llm := &fakeLLM{responses: []string{"spec v1", "spec v2"}}
	e, st := newEngine(t, testConfig(), llm)
	tmpl := &task.Template{
		ID: "tpl-gate-retry-ok", Name: "gate-retry-ok", Version: 1,
		Stages: []task.StageDefinition{{Name: "review", AgentRole: "review", Order: 1, Instruction: "review it"}},
		Gates:  []task.GateDefinition{{AfterStage: "review", Type: task.GateTypeHumanApprove, MaxRetries: 2}},
	}
	tk := createTask(t, st, tmpl)
	run := &taskRun{tmpl: tmpl, structured: map[string]json.RawMessage{}, stages: map[string]*task.Stage{}, log: e.taskLogger(tk)}
	accum := e.newAccumulator(run)
	sd := tmpl.Stages[0]
	gd := tmpl.Gates[0]
	sTage := &task.Stage{Name: "review", TaskID: tk.ID, Status: task.StageStatusCompleted, Output: "spec v1"}

	go func() {
		decideFirstPendingGate(t, st, tk.ID, "review", task.GateStatusRejected, "needs more detail")
		decideFirstPendingGate(t, st, tk.ID, "review", task.GateStatusApproved, "now it's fine")
	}()

	outcome, err := e.runGateWithRetry(context.Background(), tk, run, accum, sd, sTage, gd)
	require.NoError(t, err)
	assert.Equal(t, stageOutcomeCompleted, outcome)
	assert.Equal(t, 1, llm.calls, "retry dispatch should re-run the stage exactly once")
	assert.Equal(t, 1, sTage.RetryCount)
}

func TestRunGate_TimesOutWhenNeverDecided(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.GateMaxWait = 30 * time.Millisecond
	cfg.Engine.GatePollInterval = 5 * time.Millisecond
	e, st := newEngine(t, cfg, &fakeLLM{responses: []string{"x"}})
	tmpl := &task.Template{ID: "tpl-gate-timeout", Name: "gate-timeout", Version: 1}
	tk := createTask(t, st, tmpl)
	run := &taskRun{tmpl: tmpl, log: e.taskLogger(tk)}
	sd := task.StageDefinition{Name: "review", AgentRole: "review"}
	gd := task.GateDefinition{AfterStage: "review", Type: task.GateTypeHumanApprove}

	result, err := e.runGate(context.Background(), tk, run, sd, gd)
	require.NoError(t, err)
	assert.Equal(t, task.GateOutcomeTimeout, result.Outcome)
}

func TestRunGate_ContextCancelAborts(t *testing.T) {
	e, st := newEngine(t, testConfig(), &fakeLLM{responses: []string{"x"}})
	tmpl := &task.Template{ID: "tpl-gate-cancel", Name: "gate-cancel", Version: 1}
	tk := createTask(t, st, tmpl)
	run := &taskRun{tmpl: tmpl, log: e.taskLogger(tk)}
	sd := task.StageDefinition{Name: "review", AgentRole: "review"}
	gd := task.GateDefinition{AfterStage: "review", Type: task.GateTypeHumanApprove}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.runGate(ctx, tk, run, sd, gd)
	require.NoError(t, err)
	assert.Equal(t, task.GateOutcomeShutdownAborted, result.Outcome)
}
