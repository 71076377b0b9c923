package task

import "time"

// GateStatus is the lifecycle state of a Gate.
type GateStatus string

const (
	GateStatusPending  GateStatus = "pending"
	GateStatusApproved GateStatus = "approved"
	GateStatusRejected GateStatus = "rejected"
	GateStatusRevised  GateStatus = "revised"
)

// ValidGateStatuses returns every valid Gate status.
func ValidGateStatuses() []GateStatus {
	return []GateStatus{GateStatusPending, GateStatusApproved, GateStatusRejected, GateStatusRevised}
}

// IsValidGateStatus reports whether s is a recognized Gate status.
func IsValidGateStatus(s GateStatus) bool {
	for _, v := range ValidGateStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Gate is a human (or automated) checkpoint blocking progression past a
// named stage until approved, rejected or revised. A gate is never
// reopened: a retry always creates a new row (Invariant 4).
type Gate struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	Type       GateType   `json:"type"`
	StageName  string     `json:"stage_name"`
	AgentRole  string     `json:"agent_role,omitempty"`
	Status     GateStatus `json:"status"`
	Reviewer   string     `json:"reviewer,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	Revised    string     `json:"revised_content,omitempty"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	IsDynamic  bool       `json:"is_dynamic"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// RetriesRemaining reports whether a rejected gate still has retry budget.
func (g *Gate) RetriesRemaining() bool {
	return g.RetryCount < g.MaxRetries
}

// GateOutcome is the sum-type result of a gate wait, replacing the
// exception-for-control-flow pattern of the Python reference
// (SPEC_FULL.md / spec.md §9 design notes).
type GateOutcome int

const (
	GateOutcomeApproved GateOutcome = iota
	GateOutcomeRejected
	GateOutcomeRevised
	GateOutcomeTimeout
	GateOutcomeCancelled
	GateOutcomeShutdownAborted
)

func (o GateOutcome) String() string {
	switch o {
	case GateOutcomeApproved:
		return "approved"
	case GateOutcomeRejected:
		return "rejected"
	case GateOutcomeRevised:
		return "revised"
	case GateOutcomeTimeout:
		return "timeout"
	case GateOutcomeCancelled:
		return "cancelled"
	case GateOutcomeShutdownAborted:
		return "shutdown_aborted"
	default:
		return "unknown"
	}
}

// GateWaitResult carries the outcome of a completed gate wait plus the
// fields the engine needs to build rejection/revision context.
type GateWaitResult struct {
	Outcome GateOutcome
	Gate    *Gate
}
