package engine

import (
	"log/slog"

	"github.com/randalmurphal/orc/internal/task"
)

// taskLogger is a *slog.Logger pre-bound with a task's identity, threaded
// through a single processTask call so every log line carries it without
// repeating the With() call at each site.
type taskLogger struct {
	*slog.Logger
}

func (e *Engine) taskLogger(t *task.Task) *taskLogger {
	return &taskLogger{e.logger.With("task_id", t.ID, "correlation_id", t.CorrelationID)}
}
