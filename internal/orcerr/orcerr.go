// Package orcerr provides the structured error type used across the engine.
package orcerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code identifies a specific error condition.
type Code string

const (
	CodeTaskNotFound      Code = "TASK_NOT_FOUND"
	CodeTaskInvalidState  Code = "TASK_INVALID_STATE"
	CodeClaimLost         Code = "CLAIM_LOST"
	CodeStageNotFound     Code = "STAGE_NOT_FOUND"
	CodeGateNotFound      Code = "GATE_NOT_FOUND"
	CodeGateTimeout       Code = "GATE_TIMEOUT"
	CodeExecutorFailed    Code = "EXECUTOR_FAILED"
	CodeExecutorTimeout   Code = "EXECUTOR_TIMEOUT"
	CodeCircuitBreaker    Code = "CIRCUIT_BREAKER_TRIPPED"
	CodeGraphCycle        Code = "GRAPH_CYCLE"
	CodeGraphInvalid      Code = "GRAPH_INVALID"
	CodeMaxExecutions     Code = "MAX_EXECUTIONS_EXCEEDED"
	CodeWorktreeFailed    Code = "WORKTREE_FAILED"
	CodeSandboxFailed     Code = "SANDBOX_FAILED"
	CodeConfigInvalid     Code = "CONFIG_INVALID"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
	CodeTemplateNotFound  Code = "TEMPLATE_NOT_FOUND"
	CodeUnknown           Code = "UNKNOWN"
)

// Category groups error codes by retry/propagation policy (spec §7).
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTransient
	CategoryToolError
	CategoryResource
	CategorySemantic
	CategoryGateRejected
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryToolError:
		return "tool_error"
	case CategoryResource:
		return "resource"
	case CategorySemantic:
		return "semantic"
	case CategoryGateRejected:
		return "gate_rejected"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a category to a status code, consulted only by the sandboxed
// executor's HTTP client.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryTransient:
		return 503
	case CategoryToolError:
		return 422
	case CategoryResource:
		return 429
	case CategorySemantic:
		return 200
	case CategoryGateRejected:
		return 409
	default:
		return 500
	}
}

var codeCategories = map[Code]Category{
	CodeTaskNotFound:     CategoryUnknown,
	CodeTaskInvalidState: CategoryUnknown,
	CodeClaimLost:        CategoryTransient,
	CodeGateTimeout:      CategoryGateRejected,
	CodeExecutorFailed:   CategorySemantic,
	CodeExecutorTimeout:  CategoryTransient,
	CodeCircuitBreaker:   CategoryResource,
	CodeGraphCycle:       CategoryUnknown,
	CodeMaxExecutions:    CategoryResource,
	CodeWorktreeFailed:   CategoryTransient,
	CodeSandboxFailed:    CategoryResource,
}

// Error is the structured error type threaded through Store, Executor,
// WorkspaceManager and Engine.
type Error struct {
	Code    Code   `json:"code"`
	What    string `json:"what"`
	Why     string `json:"why,omitempty"`
	Fix     string `json:"fix,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Category returns the retry/propagation category for this error.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the status code for the sandboxed executor's HTTP transport.
func (e *Error) HTTPStatus() int { return e.Category().HTTPStatus() }

func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e with Cause set.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Cause = err
	return &cp
}

// New builds a minimal Error carrying only a code and a What message.
func New(code Code, what string) *Error {
	return &Error{Code: code, What: what}
}

// Wrap wraps a generic error under CodeUnknown, preserving its text as Cause.
func Wrap(err error, what string) *Error {
	return &Error{Code: CodeUnknown, What: what, Cause: err}
}

// NotFound constructs a CodeTaskNotFound-shaped error for any entity kind.
func NotFound(code Code, what string) *Error {
	return &Error{
		Code: code,
		What: what,
		Why:  "no row with this id exists",
	}
}

// ClaimLost reports that ClaimOldestPending raced and lost.
func ClaimLost(taskID string) *Error {
	return &Error{
		Code: CodeClaimLost,
		What: fmt.Sprintf("task %s was claimed by another worker", taskID),
		Why:  "the conditional update affected zero rows",
	}
}

// CircuitBreakerTripped reports a tripped breaker with its reason.
func CircuitBreakerTripped(taskID, reason string) *Error {
	return &Error{
		Code: CodeCircuitBreaker,
		What: fmt.Sprintf("task %s tripped the circuit breaker", taskID),
		Why:  reason,
		Fix:  "raise the configured token/cost caps or investigate runaway stage output",
	}
}

// As is a convenience wrapper over errors.As for *Error targets.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
