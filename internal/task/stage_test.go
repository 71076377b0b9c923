package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageLifecycle(t *testing.T) {
	s := &Stage{Name: "coding", Status: StageStatusPending}
	start := time.Now()
	s.MarkRunning(start)
	require.Equal(t, StageStatusRunning, s.Status)
	require.NotNil(t, s.StartedAt)

	end := start.Add(2 * time.Second)
	s.MarkCompleted(end)
	assert.Equal(t, StageStatusCompleted, s.Status)
	assert.Equal(t, int64(2000), s.DurationMs)
}

func TestStageMarkCompletedWithoutStart(t *testing.T) {
	// Resumed stage that was already completed before a crash.
	s := &Stage{Status: StageStatusCompleted}
	s.MarkCompleted(time.Now())
	assert.Zero(t, s.DurationMs)
}

func TestResetForRetryClearsTiming(t *testing.T) {
	now := time.Now()
	s := &Stage{Status: StageStatusFailed, StartedAt: &now, CompletedAt: &now, DurationMs: 500}
	s.ResetForRetry()
	assert.Equal(t, StageStatusPending, s.Status)
	assert.Nil(t, s.StartedAt)
	assert.Nil(t, s.CompletedAt)
	assert.Zero(t, s.DurationMs)
}

func TestIsCodeRole(t *testing.T) {
	assert.True(t, IsCodeRole("coding"))
	assert.True(t, IsCodeRole("test"))
	assert.False(t, IsCodeRole("parse"))
	assert.False(t, IsCodeRole("review"))
}

func TestTaskCreditTokensMonotonic(t *testing.T) {
	tk := &Task{}
	tk.CreditTokens(50, 0.1)
	tk.CreditTokens(50, 0.1)
	assert.Equal(t, int64(100), tk.TotalTokens)
	assert.InDelta(t, 0.2, tk.TotalCost, 1e-9)
}
