package engine

import (
	"context"

	"github.com/randalmurphal/orc/internal/task"
	"github.com/randalmurphal/orc/internal/workspace"
)

// resolvedWorkspace holds the worktree and optional sandbox resolved for a
// task's code-producing stages. A template with no coding/test stages, or
// an Engine built without a workspace.Manager (pure API-orchestration
// deployments), gets the zero value and every stage runs in-process with
// an empty Workdir.
type resolvedWorkspace struct {
	ws *workspace.Workspace
	sb *workspace.Sandbox
}

// setupWorkspace creates a task's worktree and, if sandboxing is enabled
// and the template has at least one code-producing stage, its sandbox
// container. A sandbox startup failure is fatal under FallbackStrict and
// logged-and-ignored under FallbackGraceful, matching spec.md §4.7's
// fallback semantics.
func (e *Engine) setupWorkspace(ctx context.Context, t *task.Task, tmpl *task.Template) (*resolvedWorkspace, error) {
	if e.workspaces == nil || !needsWorkspace(tmpl) {
		return &resolvedWorkspace{}, nil
	}

	ws, err := e.workspaces.SetupWorktree(t)
	if err != nil {
		return nil, err
	}
	rw := &resolvedWorkspace{ws: ws}

	if !e.cfg.Sandbox.Enabled {
		return rw, nil
	}

	sb, err := e.workspaces.SetupSandbox(ctx, t, ws)
	if err != nil {
		if e.cfg.Sandbox.FallbackMode == string(workspace.FallbackStrict) {
			return nil, err
		}
		e.logger.Warn("sandbox setup failed, falling back to in-process execution",
			"task_id", t.ID, "error", err)
		return rw, nil
	}
	rw.sb = sb
	return rw, nil
}

func needsWorkspace(tmpl *task.Template) bool {
	for _, sd := range tmpl.Stages {
		if task.IsCodeRole(sd.AgentRole) {
			return true
		}
	}
	return false
}

// workdirFor returns the directory a stage should execute against: the
// task's worktree for code-producing roles, empty otherwise.
func (run *taskRun) workdirFor(sd task.StageDefinition) string {
	if !task.IsCodeRole(sd.AgentRole) || run.ws == nil || run.ws.ws == nil {
		return ""
	}
	return run.ws.ws.Path
}

func (e *Engine) finalizeResources(t *task.Task, run *taskRun) {
	if e.workspaces == nil || run.ws == nil {
		return
	}
	if err := e.workspaces.Cleanup(t); err != nil {
		e.logger.Error("workspace cleanup failed", "task_id", t.ID, "error", err)
	}
}
