package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/orc/internal/condition"
	"github.com/randalmurphal/orc/internal/contracts"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/executor"
	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/task"
)

// stageOutcome is what a single stage dispatch (including its gate, if any)
// resolved to, driving the linear/graph drivers' control flow.
type stageOutcome int

const (
	stageOutcomeCompleted stageOutcome = iota
	stageOutcomeSkipped
	stageOutcomeFailed
	stageOutcomePlanningPause
)

// executeSingleStage runs one stage definition through condition
// evaluation, the circuit breaker check, dispatch-with-retry, structured
// extraction, its attached gate (if any), the interactive planning pause,
// and dynamic routing. Grounded on engine.py's _execute_stage /
// _handle_gate_with_retry.
func (e *Engine) executeSingleStage(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, sd task.StageDefinition) (stageOutcome, error) {
	if condition.ShouldSkip(sd.Condition, run.structured) {
		return e.skipStage(ctx, t, run, sd)
	}

	if tripped, reason := e.circuitBreakerTripped(t); tripped {
		cb := &task.CircuitBreaker{TaskID: t.ID, Level: 1, TriggeredBy: "resource_cap", Reason: reason}
		if err := e.store.InsertCircuitBreaker(ctx, cb); err != nil {
			run.log.Error("record circuit breaker trip failed", "error", err)
		}
		e.publish(t.ID, events.EventCircuitTriggered, events.PriorityHigh,
			events.CircuitBreakerEvent{Level: cb.Level, TriggeredBy: cb.TriggeredBy, Reason: cb.Reason})
		return stageOutcomeFailed, fmt.Errorf("circuit breaker tripped: %s", reason)
	}

	st := e.stageFor(run, sd.Name)
	st.TaskID = t.ID
	st.AgentRole = sd.AgentRole
	st.Order = sd.Order

	maxRetries := sd.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		st.ExecutionCount++
		err := e.dispatchStage(ctx, t, run, accum, sd, st, lastErr)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		cat := classifyStageErr(err)
		if attempt < maxRetries && retryableCategory(cat) {
			st.RetryCount++
			run.log.Warn("stage failed, retrying", "stage", sd.Name, "attempt", attempt+1, "category", cat)
			st.ResetForRetry()
			continue
		}
		now := time.Now().UTC()
		st.MarkFailed(now, cat, err.Error())
		_ = e.store.UpdateStageStatus(ctx, t.ID, sd.Name, st)
		e.publish(t.ID, events.EventTaskStageUpdate, events.PriorityHigh,
			events.StageUpdate{Stage: sd.Name, Status: string(st.Status), Error: st.Error})
		return stageOutcomeFailed, err
	}
	if lastErr != nil {
		return stageOutcomeFailed, lastErr
	}

	run.structured[sd.Name] = st.OutputStructured
	accum.add(sd.Name, e.compressor.Compress(ctx, sd.Name, st.Output))
	e.publish(t.ID, events.EventTaskStageUpdate, events.PriorityNormal,
		events.StageUpdate{Stage: sd.Name, Status: string(st.Status), DurationMs: st.DurationMs})

	if gateDef := e.resolveGateDefinition(run.tmpl, sd, st); gateDef != nil {
		outcome, err := e.runGateWithRetry(ctx, t, run, accum, sd, st, *gateDef)
		if outcome != stageOutcomeCompleted {
			return outcome, err
		}
	}

	if sd.Name == "parse" && e.templateAllowsPlanning(run.tmpl) {
		t.Status = task.StatusPlanning
		if err := e.store.UpdateTaskStatus(ctx, t.ID, task.StatusRunning, task.StatusPlanning); err != nil {
			run.log.Error("transition to planning failed", "error", err)
		}
		return stageOutcomePlanningPause, nil
	}

	if sd.Routing != nil && e.cfg.Engine.DynamicRouting.Enabled {
		e.decideRouting(ctx, t, run, sd, st)
	}

	return stageOutcomeCompleted, nil
}

func (e *Engine) skipStage(ctx context.Context, t *task.Task, run *taskRun, sd task.StageDefinition) (stageOutcome, error) {
	st := e.stageFor(run, sd.Name)
	st.TaskID = t.ID
	st.AgentRole = sd.AgentRole
	st.Order = sd.Order
	st.MarkSkipped(time.Now().UTC())
	if err := e.store.UpsertStage(ctx, st); err != nil {
		return stageOutcomeFailed, fmt.Errorf("persist skipped stage %q: %w", sd.Name, err)
	}
	e.publish(t.ID, events.EventTaskStageUpdate, events.PriorityLow,
		events.StageUpdate{Stage: sd.Name, Status: string(st.Status)})
	return stageOutcomeSkipped, nil
}

// dispatchStage builds the stage's prompt, invokes the resolved executor,
// persists the raw output and its structured extraction. priorErr, when
// non-nil, is the previous attempt's failure, folded into a retry context
// the way engine.py's retry_context dict does (the first 2000 bytes of the
// prior output plus the error message).
func (e *Engine) dispatchStage(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, sd task.StageDefinition, st *task.Stage, priorErr error) error {
	st.MarkRunning(time.Now().UTC())
	if err := e.store.UpsertStage(ctx, st); err != nil {
		return fmt.Errorf("persist running stage: %w", err)
	}
	e.publish(t.ID, events.EventTaskStageUpdate, events.PriorityNormal,
		events.StageUpdate{Stage: sd.Name, Status: string(st.Status)})

	userPrompt := e.buildStagePrompt(ctx, t, run, accum, sd, st, priorErr)

	model := sd.ModelOverride
	if model == "" {
		model = e.cfg.Model
	}

	req := executor.Request{
		SystemPrompt: fmt.Sprintf("You are the %s agent for task %q.", sd.AgentRole, t.Title),
		UserPrompt:   userPrompt,
		Model:        model,
		MaxTurns:     sd.MaxTurns,
		Workdir:      run.workdirFor(sd),
	}
	if sd.Timeout > 0 {
		req.Timeout = time.Duration(sd.Timeout) * time.Second
	}

	exec := e.resolveExecutor(run)
	result, err := exec.Execute(ctx, req)
	if err != nil {
		if result != nil {
			st.Tokens += result.TotalTokens
		}
		if result != nil && result.Err != nil && result.Err.PartialText != "" {
			st.Output = result.Err.PartialText
			st.Tokens += result.Err.PartialTokens
		}
		return err
	}

	st.Output = result.TextContent
	st.Tokens = result.TotalTokens
	t.CreditTokens(result.TotalTokens, estimateCost(model, result.TotalTokens))

	structured := e.contracts.Extract(ctx, sd.AgentRole, result.TextContent)
	st.OutputStructured = structured
	st.Confidence = extractConfidence(structured)

	st.MarkCompleted(time.Now().UTC())
	if err := e.store.UpdateStageStatus(ctx, t.ID, sd.Name, st); err != nil {
		return fmt.Errorf("persist completed stage: %w", err)
	}
	if err := e.store.SetStageOutput(ctx, t.ID, sd.Name, st.Output); err != nil {
		return fmt.Errorf("persist stage output: %w", err)
	}
	if err := e.store.SetStageStructured(ctx, t.ID, sd.Name, structured); err != nil {
		return fmt.Errorf("persist stage structured output: %w", err)
	}
	return nil
}

func (e *Engine) buildStagePrompt(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, sd task.StageDefinition, st *task.Stage, priorErr error) string {
	var b strings.Builder
	b.WriteString(sd.Instruction)

	if prior := accum.priorContext(sd.Name, sd.ContextFrom); len(prior) > 0 {
		b.WriteString("\n\n## Prior stage output\n")
		for _, entry := range prior {
			fmt.Fprintf(&b, "### %s\n%s\n", entry.Stage, entry.Output)
		}
	}

	if mem, err := e.memory.GetMemoryForRole(ctx, t.ProjectID, sd.AgentRole); err == nil && mem != "" {
		b.WriteString("\n\n## Project memory\n")
		b.WriteString(mem)
	}

	if priorErr != nil {
		b.WriteString("\n\n## Retry context\n")
		fmt.Fprintf(&b, "error: %s\n", priorErr.Error())
		fmt.Fprintf(&b, "prior_output: %s\n", truncate(st.Output, 2000))
	}

	return b.String()
}

func (e *Engine) resolveExecutor(run *taskRun) executor.Executor {
	if run.ws != nil && run.ws.sb != nil {
		return executor.NewSandboxExecutor(run.ws.sb.BaseURL, nil)
	}
	return e.inProcess
}

func classifyStageErr(err error) task.FailureCategory {
	switch executor.ClassifyFailure(err) {
	case executor.FailureTransient:
		return task.FailureTransient
	case executor.FailureToolError:
		return task.FailureToolError
	case executor.FailureResource:
		return task.FailureResource
	case executor.FailureSemantic:
		return task.FailureSemantic
	default:
		return task.FailureUnknown
	}
}

func retryableCategory(cat task.FailureCategory) bool {
	switch cat {
	case task.FailureTransient, task.FailureToolError:
		return true
	default:
		return false
	}
}

// estimateCost is a rough per-token USD estimate used only to populate
// Task.TotalCost for circuit-breaker and reporting purposes; it is not
// billing-accurate.
const costPerThousandTokens = 0.003

func estimateCost(model string, tokens int64) float64 {
	return float64(tokens) / 1000 * costPerThousandTokens
}

func extractConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 1.0
	}
	var base contracts.Base
	if err := json.Unmarshal(raw, &base); err != nil {
		return 1.0
	}
	if base.Confidence == 0 {
		return 1.0
	}
	return base.Confidence
}

// circuitBreakerTripped checks the task's cumulative spend against the
// configured caps. Disabled breakers never trip.
func (e *Engine) circuitBreakerTripped(t *task.Task) (bool, string) {
	cb := e.cfg.Engine.CircuitBreaker
	if !cb.Enabled {
		return false, ""
	}
	if cb.MaxTokens > 0 && t.TotalTokens >= cb.MaxTokens {
		return true, fmt.Sprintf("total tokens %d reached cap %d", t.TotalTokens, cb.MaxTokens)
	}
	if cb.MaxCostUSD > 0 && t.TotalCost >= cb.MaxCostUSD {
		return true, fmt.Sprintf("total cost $%.2f reached cap $%.2f", t.TotalCost, cb.MaxCostUSD)
	}
	return false, ""
}

// resolveGateDefinition returns the gate that should follow sd: either the
// template's static gate, or (when the static slot is empty) a dynamically
// inserted confidence_review gate if the stage's extracted confidence fell
// below the configured threshold.
func (e *Engine) resolveGateDefinition(tmpl *task.Template, sd task.StageDefinition, st *task.Stage) *task.GateDefinition {
	if gd := tmpl.GateFor(sd.Name); gd != nil {
		return gd
	}
	dg := e.cfg.Engine.DynamicGate
	if dg.Enabled && st.Confidence > 0 && st.Confidence < dg.ConfidenceThreshold {
		return &task.GateDefinition{AfterStage: sd.Name, Type: task.GateTypeConfidenceReview, MaxRetries: 1}
	}
	return nil
}

func (e *Engine) templateAllowsPlanning(tmpl *task.Template) bool {
	ip := e.cfg.Engine.InteractivePlanning
	if !ip.Enabled {
		return false
	}
	for _, name := range ip.Templates {
		if name == tmpl.Name {
			return true
		}
	}
	return false
}

// decideRouting asks the LLM to pick the next stage from sd's routing
// options based on the completed stage's output, recording the decision on
// the task's audit trail regardless of whether it's ever consulted by a
// caller (the routing decision is advisory metadata for graph-mode
// on_failure/depends_on resolution in a later pass, not yet wired into the
// drivers' dispatch order — see DESIGN.md).
func (e *Engine) decideRouting(ctx context.Context, t *task.Task, run *taskRun, sd task.StageDefinition, st *task.Stage) {
	if e.llm == nil || sd.Routing == nil || len(sd.Routing.Options) == 0 {
		return
	}

	var opts strings.Builder
	for _, o := range sd.Routing.Options {
		fmt.Fprintf(&opts, "- %s: %s\n", o.Target, o.Description)
	}
	prompt := fmt.Sprintf(
		"Stage %q produced this output:\n\n%s\n\nChoose exactly one of the following routing targets and respond with only its name:\n%s",
		sd.Name, truncate(st.Output, 3000), opts.String())

	cfg := e.cfg.Engine.DynamicRouting
	resp, err := e.llm.Complete(ctx, llmclient.CompletionRequest{
		Messages:    []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		run.log.Warn("dynamic routing call failed", "stage", sd.Name, "error", err)
		return
	}

	decision := strings.TrimSpace(resp.Content)
	valid := false
	for _, o := range sd.Routing.Options {
		if o.Target == decision {
			valid = true
			break
		}
	}
	if !valid {
		run.log.Warn("dynamic routing returned an unlisted target", "stage", sd.Name, "decision", decision)
		return
	}

	now := time.Now().UTC()
	t.AddRoutingDecision(sd.Name, decision, "llm selection", now)
	_ = e.store.SaveTaskProgress(ctx, t)
	e.publish(t.ID, events.EventRoutingDecided, events.PriorityNormal,
		events.RoutingDecidedEvent{Stage: sd.Name, Decision: decision, Reason: "llm selection"})
}
