// Package condition evaluates a stage's Condition against the structured
// outputs collected from prior stages, deciding whether the stage executes
// or is skipped.
//
// Grounded on original_source/platform/app/worker/conditions.py's
// evaluate_condition, ported field-for-field: the same ten operators, the
// same dot-notation nested field lookup, and the same fail-open defaults
// (a missing source stage or an unrecognized operator evaluates true, i.e.
// the stage still runs).
package condition

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/randalmurphal/orc/internal/task"
)

// Evaluate reports whether cond's stage should execute, given the
// structured outputs recorded so far (keyed by stage name). A nil
// condition always executes. Outputs missing the source stage, or a
// malformed/unrecognized condition, evaluate to true (execute) rather than
// block progress on a fixable template mistake.
func Evaluate(cond *task.Condition, outputs map[string]json.RawMessage) bool {
	if cond == nil {
		return true
	}
	if cond.SourceStage == "" || cond.Field == "" {
		return true
	}
	if !task.IsValidOperator(cond.Operator) {
		return true
	}

	raw, ok := outputs[cond.SourceStage]
	if !ok || len(raw) == 0 {
		return true
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return true
	}

	actual := nestedField(data, cond.Field)
	return applyOperator(cond.Operator, actual, cond.Value)
}

// ShouldSkip is the inverse of Evaluate, matching engine.py's
// _should_skip_stage: a stage is skipped when its condition evaluates false.
func ShouldSkip(cond *task.Condition, outputs map[string]json.RawMessage) bool {
	return !Evaluate(cond, outputs)
}

func nestedField(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func applyOperator(op task.ConditionOperator, actual, expected any) bool {
	switch op {
	case task.OpExists:
		return actual != nil
	case task.OpNotExists:
		return actual == nil
	}

	if actual == nil {
		return false
	}

	switch op {
	case task.OpEq:
		return equalValues(actual, expected)
	case task.OpNe:
		return !equalValues(actual, expected)
	case task.OpGt:
		return numericCompare(actual, expected, func(a, b float64) bool { return a > b })
	case task.OpLt:
		return numericCompare(actual, expected, func(a, b float64) bool { return a < b })
	case task.OpGte:
		return numericCompare(actual, expected, func(a, b float64) bool { return a >= b })
	case task.OpLte:
		return numericCompare(actual, expected, func(a, b float64) bool { return a <= b })
	case task.OpContains:
		return containsValue(actual, expected)
	case task.OpNotContains:
		return !containsValue(actual, expected)
	default:
		return true
	}
}

func equalValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return toString(a) == toString(b)
}

func containsValue(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, toString(expected))
	case []any:
		for _, item := range v {
			if equalValues(item, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func numericCompare(a, b any, cmp func(x, y float64) bool) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	return cmp(af, bf)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
