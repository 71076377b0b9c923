package executor

import "time"

// EventKind identifies one of the five callback events an executor streams
// while running a stage. Callers receive them through an EventCallback; the
// executor itself has no knowledge of EventLog.
type EventKind string

const (
	EventTurnStart           EventKind = "turn_start"
	EventTurnEnd             EventKind = "turn_end"
	EventBeforeToolCall       EventKind = "before_tool_call"
	EventToolExecutionUpdate EventKind = "tool_execution_update"
	EventAfterToolResult     EventKind = "after_tool_result"
)

// ExecEvent is one callback emitted during stage execution.
type ExecEvent struct {
	Kind      EventKind
	Time      time.Time
	Turn      int
	ToolCall  *ToolCall // set for tool-related events
	TextDelta string    // set for turn_end, the turn's text output
}

// EventCallback receives ExecEvent notifications as a stage runs. A nil
// callback is valid and simply discards events.
type EventCallback func(ExecEvent)

func emit(cb EventCallback, ev ExecEvent) {
	if cb == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	cb(ev)
}
