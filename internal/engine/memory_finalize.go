package engine

import (
	"context"

	"github.com/randalmurphal/orc/internal/memory"
	"github.com/randalmurphal/orc/internal/task"
)

// extractMemory runs project-memory extraction over a completed task's
// stage outputs. Called once per task, at completeTask, never on failure
// (a failed task's stage output is unreliable raw material for reusable
// project knowledge).
func (e *Engine) extractMemory(ctx context.Context, t *task.Task, run *taskRun) {
	if t.ProjectID == "" {
		return
	}

	outputs := make([]memory.StageOutput, 0, len(run.stages))
	for name, st := range run.stages {
		if st.Status != task.StageStatusCompleted || st.Output == "" {
			continue
		}
		outputs = append(outputs, memory.StageOutput{Stage: name, Output: st.Output})
	}
	if len(outputs) == 0 {
		return
	}

	e.memory.ExtractAndStore(ctx, t.ProjectID, t.ID, t.Title, outputs)
}
