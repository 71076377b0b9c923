package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailureTransient(t *testing.T) {
	assert.Equal(t, FailureTransient, ClassifyFailure(errors.New("context deadline exceeded")))
	assert.Equal(t, FailureTransient, ClassifyFailure(errors.New("dial tcp: connection refused")))
	assert.Equal(t, FailureTransient, ClassifyFailure(errors.New("server returned 503")))
}

func TestClassifyFailureToolError(t *testing.T) {
	assert.Equal(t, FailureToolError, ClassifyFailure(errors.New("unknown tool requested: foo")))
	assert.Equal(t, FailureToolError, ClassifyFailure(errors.New("invalid tool call json")))
}

func TestClassifyFailureResource(t *testing.T) {
	assert.Equal(t, FailureResource, ClassifyFailure(errors.New("circuit breaker open for task")))
	assert.Equal(t, FailureResource, ClassifyFailure(errors.New("429 too many requests")))
}

func TestClassifyFailureResourceBeforeTransient(t *testing.T) {
	// "429" alone could read as a generic rate-limit/transient signal, but
	// resource markers are checked first since the circuit breaker and
	// quota cases need a distinct retry policy from plain transient errors.
	assert.Equal(t, FailureResource, ClassifyFailure(errors.New("quota exceeded, 429")))
}

func TestClassifyFailureSemantic(t *testing.T) {
	assert.Equal(t, FailureSemantic, ClassifyFailure(errors.New("output contradicts the stated requirements")))
}

func TestClassifyFailureUnknown(t *testing.T) {
	assert.Equal(t, FailureUnknown, ClassifyFailure(errors.New("something weird happened")))
}

func TestNewFailureClassifiesCauseWhenPresent(t *testing.T) {
	f := NewFailure("stage failed", errors.New("connection reset by peer"))
	assert.Equal(t, FailureTransient, f.Category)
	assert.ErrorIs(t, f, f.Cause)
}

func TestNewFailureClassifiesMessageWhenCauseNil(t *testing.T) {
	f := NewFailure("unknown tool: bash2", nil)
	assert.Equal(t, FailureToolError, f.Category)
	assert.Nil(t, f.Cause)
}

func TestFailureErrorString(t *testing.T) {
	f := NewFailure("stage failed", errors.New("boom"))
	assert.Equal(t, "stage failed: boom", f.Error())
}

func TestTruncateTailKeepsEnd(t *testing.T) {
	long := "0123456789abcdefghij"
	out := truncateTail(long, 5)
	assert.Contains(t, out, "fghij")
	assert.NotContains(t, out, "01234")
}

func TestTruncateTailNoopUnderLimit(t *testing.T) {
	assert.Equal(t, "short", truncateTail("short", 10))
}
