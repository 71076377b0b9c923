package task

import (
	"encoding/json"
	"time"
)

// StageStatus is the lifecycle state of a single Stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// ValidStageStatuses returns every valid Stage status.
func ValidStageStatuses() []StageStatus {
	return []StageStatus{
		StageStatusPending, StageStatusRunning, StageStatusCompleted,
		StageStatusFailed, StageStatusSkipped,
	}
}

// IsValidStageStatus reports whether s is a recognized Stage status.
func IsValidStageStatus(s StageStatus) bool {
	for _, v := range ValidStageStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// FailureCategory classifies why a stage failed, driving retry policy
// (spec §7's taxonomy).
type FailureCategory string

const (
	FailureTransient    FailureCategory = "transient"
	FailureToolError    FailureCategory = "tool_error"
	FailureResource     FailureCategory = "resource"
	FailureSemantic     FailureCategory = "semantic"
	FailureGateRejected FailureCategory = "gate_rejected"
	FailureUnknown      FailureCategory = "unknown"
)

// codeRoles is the fixed set of agent roles that run inside a worktree/sandbox
// rather than without a workspace (SPEC_FULL.md supplemented feature 2,
// grounded on original_source/engine.py's _CODE_ROLES).
var codeRoles = map[string]bool{
	"coding": true,
	"test":   true,
}

// IsCodeRole reports whether the given agent role is a code-producing role
// that requires a workspace.
func IsCodeRole(role string) bool {
	return codeRoles[role]
}

// Stage is one step of a task, bound to an agent role.
type Stage struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`

	Name      string      `json:"name"`
	AgentRole string      `json:"agent_role"`
	Status    StageStatus `json:"status"`
	Order     int         `json:"order"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	Tokens int64 `json:"tokens"`
	Turns  int   `json:"turns"`

	Output           string          `json:"output,omitempty"`
	OutputStructured json.RawMessage `json:"output_structured,omitempty"`

	Error           string          `json:"error,omitempty"`
	FailureCategory FailureCategory `json:"failure_category,omitempty"`
	Confidence      float64         `json:"confidence,omitempty"`

	RetryCount     int `json:"retry_count"`
	ExecutionCount int `json:"execution_count"`
}

// MarkRunning transitions the stage to running, stamping StartedAt.
func (s *Stage) MarkRunning(now time.Time) {
	s.Status = StageStatusRunning
	s.StartedAt = &now
}

// MarkCompleted transitions the stage to completed, stamping CompletedAt and
// duration relative to StartedAt (zero if StartedAt was never set, e.g. a
// resumed stage that was already completed before a crash).
func (s *Stage) MarkCompleted(now time.Time) {
	s.Status = StageStatusCompleted
	s.CompletedAt = &now
	if s.StartedAt != nil {
		s.DurationMs = now.Sub(*s.StartedAt).Milliseconds()
	}
}

// MarkFailed transitions the stage to failed with a classified error.
func (s *Stage) MarkFailed(now time.Time, cat FailureCategory, errMsg string) {
	s.Status = StageStatusFailed
	s.CompletedAt = &now
	s.FailureCategory = cat
	s.Error = errMsg
	if s.StartedAt != nil {
		s.DurationMs = now.Sub(*s.StartedAt).Milliseconds()
	}
}

// MarkSkipped transitions the stage to skipped (condition evaluated false).
func (s *Stage) MarkSkipped(now time.Time) {
	s.Status = StageStatusSkipped
	s.CompletedAt = &now
}

// ResetForRetry resets a completed/failed stage back to pending for
// re-execution, bumping neither RetryCount nor ExecutionCount — callers
// (gate retry, graph redirect) increment the counter appropriate to why the
// stage is re-running.
func (s *Stage) ResetForRetry() {
	s.Status = StageStatusPending
	s.StartedAt = nil
	s.CompletedAt = nil
	s.DurationMs = 0
}
