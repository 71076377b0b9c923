package task

// ConditionOperator is a supported condition comparison operator
// (grounded on original_source/worker/conditions.py's _OPERATORS).
type ConditionOperator string

const (
	OpEq          ConditionOperator = "eq"
	OpNe          ConditionOperator = "ne"
	OpGt          ConditionOperator = "gt"
	OpLt          ConditionOperator = "lt"
	OpGte         ConditionOperator = "gte"
	OpLte         ConditionOperator = "lte"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "not_exists"
)

// validOperators is the recognized operator set.
var validOperators = map[ConditionOperator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpLt: true, OpGte: true, OpLte: true,
	OpContains: true, OpNotContains: true, OpExists: true, OpNotExists: true,
}

// IsValidOperator reports whether op is a recognized condition operator.
func IsValidOperator(op ConditionOperator) bool {
	return validOperators[op]
}

// Condition gates whether a stage executes, evaluated against a prior
// stage's structured output.
type Condition struct {
	SourceStage string            `json:"source_stage"`
	Field       string            `json:"field"`
	Operator    ConditionOperator `json:"operator"`
	Value       any               `json:"value"`
}

// RoutingOption is one possible dynamic-routing target.
type RoutingOption struct {
	Target      string `json:"target"`
	Description string `json:"description"`
}

// RoutingConfig configures dynamic routing after a stage completes.
type RoutingConfig struct {
	Options []RoutingOption `json:"options"`
}

// GateType names the kind of evaluator that decides a gate's outcome.
type GateType string

const (
	GateTypeHumanApprove    GateType = "human_approve"
	GateTypePlanReview      GateType = "plan_review"
	GateTypeConfidenceReview GateType = "confidence_review"
)

// GateDefinition attaches a gate to a stage within a template.
type GateDefinition struct {
	AfterStage string   `json:"after_stage"`
	Type       GateType `json:"type"`
	MaxRetries int      `json:"max_retries"`
}

// StageDefinition is one stage slot within a Template.
type StageDefinition struct {
	Name          string         `json:"name"`
	AgentRole     string         `json:"agent_role"`
	Order         int            `json:"order"`
	ModelOverride string         `json:"model_override,omitempty"`
	Instruction   string         `json:"instruction,omitempty"`
	MaxTurns      int            `json:"max_turns,omitempty"`
	Timeout       int            `json:"timeout_seconds,omitempty"`
	ContextFrom   []string       `json:"context_from,omitempty"`
	Condition     *Condition     `json:"condition,omitempty"`
	MaxRetries    int            `json:"max_retries,omitempty"`
	DependsOn     []string       `json:"depends_on,omitempty"`
	OnFailure     string         `json:"on_failure,omitempty"`
	MaxExecutions int            `json:"max_executions,omitempty"`
	Routing       *RoutingConfig `json:"routing,omitempty"`
}

// Template is an immutable blueprint for a task's stages and gates.
type Template struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Version  int               `json:"version"`
	ParentID string            `json:"parent_id,omitempty"`
	Stages   []StageDefinition `json:"stages"`
	Gates    []GateDefinition  `json:"gates"`
}

// GateFor returns the gate definition that follows the named stage, if any.
func (t *Template) GateFor(stageName string) *GateDefinition {
	for i := range t.Gates {
		if t.Gates[i].AfterStage == stageName {
			return &t.Gates[i]
		}
	}
	return nil
}

// UsesExplicitDependsOn reports whether any stage declares depends_on,
// selecting the DAG construction mode for Graph (spec §4.6).
func (t *Template) UsesExplicitDependsOn() bool {
	for _, s := range t.Stages {
		if len(s.DependsOn) > 0 {
			return true
		}
	}
	return false
}
