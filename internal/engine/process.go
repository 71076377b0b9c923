package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/graph"
	"github.com/randalmurphal/orc/internal/task"
)

// taskRun carries the per-task state threaded through a single
// processTask call: the template driving it, the stage outputs collected
// so far (for condition evaluation, prior-context and circuit-breaker
// checks), and the resolved workspace/sandbox for code-producing stages.
type taskRun struct {
	tmpl       *task.Template
	structured map[string]json.RawMessage // stage name -> extracted structured output
	stages     map[string]*task.Stage     // stage name -> current row

	ws  *resolvedWorkspace
	log *taskLogger
}

// processTask drives a single claimed task from its current state to a
// terminal one (completed, failed or cancelled), or returns with the task
// left in StatusPlanning if it pauses for interactive planning. Grounded
// on engine.py's process_task: load template, set up the workspace, pick
// the linear or graph driver, finalize resources regardless of outcome.
func (e *Engine) processTask(ctx context.Context, t *task.Task) {
	lg := e.taskLogger(t)
	lg.Info("task claimed")

	tmpl, err := e.loadTemplate(ctx, t)
	if err != nil {
		e.failTask(ctx, t, lg, fmt.Sprintf("load template: %v", err))
		return
	}

	if err := e.store.UpdateTaskStatus(ctx, t.ID, task.StatusClaimed, task.StatusRunning); err != nil {
		lg.Error("transition to running failed", "error", err)
		return
	}
	e.publish(t.ID, events.EventTaskStatusChanged, events.PriorityNormal, events.TaskStatusChanged{From: "claimed", To: "running"})

	run := &taskRun{
		tmpl:       tmpl,
		structured: map[string]json.RawMessage{},
		stages:     map[string]*task.Stage{},
		log:        lg,
	}

	if err := e.loadExistingStages(ctx, t, run); err != nil {
		e.failTask(ctx, t, lg, fmt.Sprintf("load stages: %v", err))
		return
	}

	ws, err := e.setupWorkspace(ctx, t, tmpl)
	if err != nil {
		e.failTask(ctx, t, lg, fmt.Sprintf("setup workspace: %v", err))
		return
	}
	run.ws = ws
	defer e.finalizeResources(t, run)

	var driverErr error
	if e.cfg.Engine.GraphExecutionEnabled && tmpl.UsesExplicitDependsOn() {
		driverErr = e.runGraphDriver(ctx, t, run)
	} else {
		driverErr = e.runLinearDriver(ctx, t, run)
	}

	if driverErr != nil {
		if driverErr == errPlanningPause {
			lg.Info("task paused for interactive planning")
			return
		}
		e.failTask(ctx, t, lg, driverErr.Error())
		return
	}

	e.completeTask(ctx, t, run)
}

// errPlanningPause signals the drivers' early return when a "parse" stage
// completes against a template in the interactive-planning allow-list:
// the task stays in StatusPlanning until a human submits a plan via the
// API (spec.md §4.8's interactive planning pause, no retry/backoff since
// this is not a failure).
var errPlanningPause = fmt.Errorf("paused for interactive planning")

func (e *Engine) loadTemplate(ctx context.Context, t *task.Task) (*task.Template, error) {
	if t.TemplateID == "" {
		return nil, fmt.Errorf("task has no template_id")
	}
	return e.store.GetTemplate(ctx, t.TemplateID)
}

func (e *Engine) loadExistingStages(ctx context.Context, t *task.Task, run *taskRun) error {
	existing, err := e.store.ListStages(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, st := range existing {
		run.stages[st.Name] = st
		if st.Status == task.StageStatusCompleted && len(st.OutputStructured) > 0 {
			run.structured[st.Name] = st.OutputStructured
		}
	}
	return nil
}

// stageFor returns the stage row for name, creating and registering a
// fresh pending one if this is its first execution.
func (e *Engine) stageFor(run *taskRun, name string) *task.Stage {
	if st, ok := run.stages[name]; ok {
		return st
	}
	st := &task.Stage{Name: name, Status: task.StageStatusPending}
	run.stages[name] = st
	return st
}

// alreadyDone reports whether a stage already ran to completion or
// was skipped on a prior attempt (crash-resume replay never re-executes a
// finished stage).
func (run *taskRun) alreadyDone(name string) bool {
	st, ok := run.stages[name]
	if !ok {
		return false
	}
	return st.Status == task.StageStatusCompleted || st.Status == task.StageStatusSkipped
}

func (e *Engine) completeTask(ctx context.Context, t *task.Task, run *taskRun) {
	if err := e.store.UpdateTaskStatus(ctx, t.ID, task.StatusRunning, task.StatusCompleted); err != nil {
		run.log.Error("transition to completed failed", "error", err)
		return
	}
	e.publish(t.ID, events.EventTaskStatusChanged, events.PriorityNormal, events.TaskStatusChanged{From: "running", To: "completed"})
	run.log.Info("task completed")

	now := time.Now().UTC()
	t.CompletedAt = &now
	_ = e.store.SaveTaskProgress(ctx, t)

	e.extractMemory(ctx, t, run)
}

func (e *Engine) failTask(ctx context.Context, t *task.Task, lg *taskLogger, reason string) {
	lg.Error("task failed", "reason", reason)
	t.FailReason = reason
	_ = e.store.SaveTaskProgress(ctx, t)

	from := t.Status
	if from != task.StatusRunning && from != task.StatusClaimed {
		from = task.StatusRunning
	}
	if err := e.store.UpdateTaskStatus(ctx, t.ID, from, task.StatusFailed); err != nil {
		// The task may already have transitioned (e.g. claimed -> failed
		// directly, never having reached running); retry from claimed.
		_ = e.store.UpdateTaskStatus(ctx, t.ID, task.StatusClaimed, task.StatusFailed)
	}
	e.publish(t.ID, events.EventTaskStatusChanged, events.PriorityHigh, events.TaskStatusChanged{From: string(from), To: "failed"})
}

// runLinearDriver executes a template's stages in order, grouping stages
// that share the same `order` field into a parallel batch (spec §4.6's
// order-based scheduling, used whenever no stage declares depends_on).
// Grounded on engine.py's _group_stages_by_order + the sequential
// for-group-in-groups loop.
func (e *Engine) runLinearDriver(ctx context.Context, t *task.Task, run *taskRun) error {
	groups := groupStagesByOrder(run.tmpl.Stages)
	accum := e.newAccumulator(run)

	for _, group := range groups {
		if len(group) == 1 {
			if err := e.runLinearStage(ctx, t, run, accum, group[0]); err != nil {
				return err
			}
			continue
		}
		if err := e.runParallelGroup(ctx, t, run, accum, group); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runLinearStage(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, sd task.StageDefinition) error {
	if run.alreadyDone(sd.Name) {
		accum.replay(run, sd.Name)
		return nil
	}
	outcome, err := e.executeSingleStage(ctx, t, run, accum, sd)
	if err != nil {
		return err
	}
	switch outcome {
	case stageOutcomePlanningPause:
		return errPlanningPause
	case stageOutcomeFailed:
		return fmt.Errorf("stage %q failed terminally", sd.Name)
	}
	return nil
}

func (e *Engine) runParallelGroup(ctx context.Context, t *task.Task, run *taskRun, accum *stageAccumulator, group []task.StageDefinition) error {
	type result struct {
		name    string
		outcome stageOutcome
		err     error
	}
	results := make(chan result, len(group))
	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, sd := range group {
		sd := sd
		if run.alreadyDone(sd.Name) {
			accum.replay(run, sd.Name)
			continue
		}
		go func() {
			outcome, err := e.executeSingleStage(groupCtx, t, run, accum, sd)
			results <- result{name: sd.Name, outcome: outcome, err: err}
		}()
	}

	var firstErr error
	pending := 0
	for _, sd := range group {
		if !run.alreadyDone(sd.Name) {
			pending++
		}
	}
	for i := 0; i < pending; i++ {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		if r.outcome == stageOutcomeFailed && firstErr == nil {
			firstErr = fmt.Errorf("stage %q failed terminally", r.name)
		}
		if r.outcome == stageOutcomeFailed {
			cancel()
		}
		if r.outcome == stageOutcomePlanningPause && firstErr == nil {
			firstErr = errPlanningPause
		}
	}
	return firstErr
}

// groupStagesByOrder sorts stages by Order and buckets same-order stages
// together, matching the Graph package's implicit-dependency construction
// (graph.FromTemplate uses identical bucketing for its no-depends_on path).
func groupStagesByOrder(stages []task.StageDefinition) [][]task.StageDefinition {
	byOrder := map[int][]task.StageDefinition{}
	var orders []int
	for _, sd := range stages {
		if _, ok := byOrder[sd.Order]; !ok {
			orders = append(orders, sd.Order)
		}
		byOrder[sd.Order] = append(byOrder[sd.Order], sd)
	}
	for i := 0; i < len(orders); i++ {
		for j := i + 1; j < len(orders); j++ {
			if orders[j] < orders[i] {
				orders[i], orders[j] = orders[j], orders[i]
			}
		}
	}
	groups := make([][]task.StageDefinition, 0, len(orders))
	for _, ord := range orders {
		groups = append(groups, byOrder[ord])
	}
	return groups
}

// runGraphDriver executes a template's explicit depends_on DAG, repeatedly
// computing the ready set and dispatching it until every stage is
// completed, skipped, or exhausted on failure redirects. Grounded on
// engine.py's graph-mode loop plus internal/graph.Graph.ReadySet/
// FailureRedirect (C7).
func (e *Engine) runGraphDriver(ctx context.Context, t *task.Task, run *taskRun) error {
	g := graph.FromTemplate(run.tmpl)
	if errs := g.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid stage graph: %v", errs)
	}

	completed := graph.StringSet{}
	skipped := graph.StringSet{}
	failed := graph.StringSet{}
	running := graph.StringSet{}
	execCounts := map[string]int{}

	for name, st := range run.stages {
		switch st.Status {
		case task.StageStatusCompleted:
			completed[name] = true
		case task.StageStatusSkipped:
			skipped[name] = true
		case task.StageStatusFailed:
			failed[name] = true
			execCounts[name] = st.ExecutionCount
		}
	}

	accum := e.newAccumulator(run)
	multiplier := e.cfg.Engine.GraphMaxLoopMultiplier
	if multiplier <= 0 {
		multiplier = 4
	}
	maxLoops := len(g.Nodes) * multiplier
	for loop := 0; loop < maxLoops; loop++ {
		ready := g.ReadySet(completed, running, failed, skipped, execCounts)
		if len(ready) == 0 {
			break
		}

		type result struct {
			name    string
			outcome stageOutcome
			err     error
		}
		results := make(chan result, len(ready))
		for _, node := range ready {
			node := node
			running[node.Name] = true
			sd := stageDefForNode(run.tmpl, node.Name)
			go func() {
				outcome, err := e.executeSingleStage(ctx, t, run, accum, sd)
				results <- result{name: node.Name, outcome: outcome, err: err}
			}()
		}

		var firstPause error
		for i := 0; i < len(ready); i++ {
			r := <-results
			delete(running, r.name)
			execCounts[r.name]++
			switch r.outcome {
			case stageOutcomeCompleted:
				completed[r.name] = true
			case stageOutcomeSkipped:
				skipped[r.name] = true
			case stageOutcomePlanningPause:
				completed[r.name] = true
				if firstPause == nil {
					firstPause = errPlanningPause
				}
			case stageOutcomeFailed:
				failed[r.name] = true
				if redirect := g.FailureRedirect(r.name); redirect != "" {
					delete(failed, r.name)
					completed[r.name] = true
					running[redirect] = false
				} else if r.err == nil {
					r.err = fmt.Errorf("stage %q failed terminally", r.name)
				}
			}
			if r.err != nil && r.outcome == stageOutcomeFailed {
				return r.err
			}
		}
		if firstPause != nil {
			return firstPause
		}
	}

	return nil
}

func stageDefForNode(tmpl *task.Template, name string) task.StageDefinition {
	for _, sd := range tmpl.Stages {
		if sd.Name == name {
			return sd
		}
	}
	return task.StageDefinition{Name: name}
}
