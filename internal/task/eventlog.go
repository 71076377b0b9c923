package task

import "time"

// EventSource identifies who generated an EventLog row.
type EventSource string

const (
	EventSourceSystem EventSource = "system"
	EventSourceLLM    EventSource = "llm"
	EventSourceTool   EventSource = "tool"
)

// EventStatus is the terminal or in-flight state an EventLog row describes.
type EventStatus string

const (
	EventStatusRunning   EventStatus = "running"
	EventStatusSuccess   EventStatus = "success"
	EventStatusFailed    EventStatus = "failed"
	EventStatusCancelled EventStatus = "cancelled"
)

// MaxInlineBytes is the size above which request/response/result bodies are
// truncated and OutputTruncated is set (Invariant: EventLog truncation at 50 KB).
const MaxInlineBytes = 50 * 1024

// EventLog is one append-only, strictly sequenced record in a task's audit
// trail.
type EventLog struct {
	ID             string      `json:"id"`
	TaskID         string      `json:"task_id"`
	StageID        string      `json:"stage_id,omitempty"`
	CorrelationID  string      `json:"correlation_id"`
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	Source         EventSource `json:"source"`
	Status         EventStatus `json:"status"`
	RequestBody    string      `json:"request_body,omitempty"`
	ResponseBody   string      `json:"response_body,omitempty"`
	Command        string      `json:"command,omitempty"`
	CommandArgs    []string    `json:"command_args,omitempty"`
	Workspace      string      `json:"workspace,omitempty"`
	ExecutionMode  string      `json:"execution_mode,omitempty"`
	DurationMs     int64       `json:"duration_ms,omitempty"`
	ResultText     string      `json:"result_text,omitempty"`
	OutputSummary  string      `json:"output_summary,omitempty"`
	OutputTruncated bool       `json:"output_truncated"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Truncate applies the 50 KB inline-body cap to a field, returning the
// possibly-truncated text and whether truncation occurred.
func Truncate(text string) (string, bool) {
	if len(text) <= MaxInlineBytes {
		return text, false
	}
	return text[:MaxInlineBytes], true
}

// MemoryBucket groups reusable knowledge extracted from completed tasks.
type MemoryBucket string

const (
	BucketConventions MemoryBucket = "conventions"
	BucketArchitecture MemoryBucket = "architecture"
	BucketPatterns     MemoryBucket = "patterns"
	BucketIssues       MemoryBucket = "issues"
)

// MemoryEntry is one reusable fact bucketed per project.
type MemoryEntry struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	Bucket        MemoryBucket `json:"bucket"`
	Content       string       `json:"content"`
	SourceTaskID  string       `json:"source_task_id,omitempty"`
	SourceTitle   string       `json:"source_title,omitempty"`
	Confidence    float64      `json:"confidence"`
	Tags          []string     `json:"tags,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CircuitBreaker is an immutable record of a tripped per-task resource guard.
type CircuitBreaker struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	Level       int        `json:"level"`
	TriggeredBy string     `json:"triggered_by"`
	Reason      string     `json:"reason"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
}
