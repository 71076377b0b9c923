// Package task defines the core domain entities of the orchestration engine:
// Task, Stage, Template, Gate, EventLog, Memory and CircuitBreaker.
package task

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusRunning   Status = "running"
	StatusPlanning  Status = "planning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses returns every valid Task status.
func ValidStatuses() []Status {
	return []Status{
		StatusPending, StatusClaimed, StatusRunning, StatusPlanning,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// IsValidStatus reports whether s is a recognized Task status.
func IsValidStatus(s Status) bool {
	for _, v := range ValidStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// RoutingDecision is one entry in a task's append-only routing audit trail
// (supplemented feature: SPEC_FULL.md "Dynamic routing audit trail shape").
type RoutingDecision struct {
	Stage    string    `json:"stage"`
	Decision string    `json:"decision"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Task is a unit of work claimed and driven to completion by the engine.
type Task struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        Status `json:"status"`

	ProjectID  string `json:"project_id,omitempty"`
	TemplateID string `json:"template_id"`
	TemplateVer int   `json:"template_version"`

	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`

	// Plan is an opaque JSON document written during interactive planning.
	// Kept as raw JSON rather than a typed struct: see SPEC_FULL.md Open
	// Question 3 — the reference implementation never structurally parses it.
	Plan json.RawMessage `json:"plan,omitempty"`

	RoutingDecisions []RoutingDecision `json:"routing_decisions,omitempty"`

	BranchName string `json:"branch_name,omitempty"`
	PRURL      string `json:"pr_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailReason  string     `json:"fail_reason,omitempty"`
}

// CreditTokens adds to the task's cumulative token/cost accumulators.
// Accumulators are monotonically non-decreasing for the task's lifetime
// (Invariant 3); callers never subtract from them.
func (t *Task) CreditTokens(tokens int64, cost float64) {
	t.TotalTokens += tokens
	t.TotalCost += cost
}

// AddRoutingDecision appends a routing decision to the audit trail.
func (t *Task) AddRoutingDecision(stage, decision, reason string, at time.Time) {
	t.RoutingDecisions = append(t.RoutingDecisions, RoutingDecision{
		Stage: stage, Decision: decision, Reason: reason, At: at,
	})
}
