package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/task"
)

// runGateWithRetry waits on a stage's gate, retrying the stage itself on
// rejection or revision while the gate still has retry budget, and failing
// the stage with FailureGateRejected once it doesn't. Grounded on
// engine.py's _handle_gate_with_retry.
func (e *Engine) runGateWithRetry(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, sd task.StageDefinition, st *task.Stage, gd task.GateDefinition) (stageOutcome, error) {
	for {
		result, err := e.runGate(ctx, t, run, sd, gd)
		if err != nil {
			return stageOutcomeFailed, err
		}

		switch result.Outcome {
		case task.GateOutcomeApproved:
			return stageOutcomeCompleted, nil

		case task.GateOutcomeRejected, task.GateOutcomeRevised:
			if !result.Gate.RetriesRemaining() {
				now := time.Now().UTC()
				st.MarkFailed(now, task.FailureGateRejected, fmt.Sprintf("gate %s: %s", result.Outcome, result.Gate.Comment))
				_ = e.store.UpdateStageStatus(ctx, t.ID, sd.Name, st)
				return stageOutcomeFailed, fmt.Errorf("gate %s exhausted retries after %s", result.Gate.ID, result.Outcome)
			}

			st.RetryCount++
			st.ExecutionCount++
			retryReason := fmt.Errorf("gate %s: %s", result.Outcome, result.Gate.Comment)
			st.ResetForRetry()
			if err := e.dispatchStage(ctx, t, run, accum, sd, st, retryReason); err != nil {
				now := time.Now().UTC()
				st.MarkFailed(now, classifyStageErr(err), err.Error())
				_ = e.store.UpdateStageStatus(ctx, t.ID, sd.Name, st)
				return stageOutcomeFailed, err
			}
			run.structured[sd.Name] = st.OutputStructured

		case task.GateOutcomeTimeout:
			return stageOutcomeFailed, fmt.Errorf("gate %s timed out waiting for a decision", result.Gate.ID)
		case task.GateOutcomeCancelled, task.GateOutcomeShutdownAborted:
			return stageOutcomeFailed, fmt.Errorf("gate %s aborted: %s", result.Gate.ID, result.Outcome)
		default:
			return stageOutcomeFailed, fmt.Errorf("gate %s resolved to an unrecognized outcome", result.Gate.ID)
		}
	}
}

// runGate creates a gate row for a stage and polls the store until a human
// (or automated evaluator, for a later pass) decides it, the configured
// max wait elapses, or the engine is shutting down.
func (e *Engine) runGate(ctx context.Context, t *task.Task, run *taskRun, sd task.StageDefinition, gd task.GateDefinition) (task.GateWaitResult, error) {
	g := &task.Gate{
		TaskID:     t.ID,
		Type:       gd.Type,
		StageName:  sd.Name,
		AgentRole:  sd.AgentRole,
		Status:     task.GateStatusPending,
		MaxRetries: gd.MaxRetries,
		IsDynamic:  run.tmpl.GateFor(sd.Name) == nil,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateGate(ctx, g); err != nil {
		return task.GateWaitResult{}, fmt.Errorf("create gate: %w", err)
	}
	e.publish(t.ID, events.EventGateCreated, events.PriorityHigh,
		events.GateEvent{GateID: g.ID, StageName: sd.Name})

	interval := e.cfg.Engine.GatePollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxWait := e.cfg.Engine.GateMaxWait
	if maxWait <= 0 {
		maxWait = 24 * time.Hour
	}
	deadline := time.Now().Add(maxWait)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return task.GateWaitResult{Outcome: task.GateOutcomeShutdownAborted, Gate: g}, nil
		case <-ticker.C:
			refreshed, err := e.store.RefreshGate(ctx, g.ID)
			if err != nil {
				return task.GateWaitResult{}, fmt.Errorf("refresh gate: %w", err)
			}

			switch refreshed.Status {
			case task.GateStatusApproved:
				e.publish(t.ID, events.EventGateApproved, events.PriorityHigh,
					events.GateEvent{GateID: refreshed.ID, StageName: sd.Name, Reviewer: refreshed.Reviewer, Comment: refreshed.Comment})
				return task.GateWaitResult{Outcome: task.GateOutcomeApproved, Gate: refreshed}, nil
			case task.GateStatusRejected:
				e.publish(t.ID, events.EventGateRejected, events.PriorityHigh,
					events.GateEvent{GateID: refreshed.ID, StageName: sd.Name, Reviewer: refreshed.Reviewer, Comment: refreshed.Comment})
				return task.GateWaitResult{Outcome: task.GateOutcomeRejected, Gate: refreshed}, nil
			case task.GateStatusRevised:
				e.publish(t.ID, events.EventGateRevised, events.PriorityHigh,
					events.GateEvent{GateID: refreshed.ID, StageName: sd.Name, Reviewer: refreshed.Reviewer, Comment: refreshed.Comment})
				return task.GateWaitResult{Outcome: task.GateOutcomeRevised, Gate: refreshed}, nil
			}

			if time.Now().After(deadline) {
				return task.GateWaitResult{Outcome: task.GateOutcomeTimeout, Gate: refreshed}, nil
			}
		}
	}
}
