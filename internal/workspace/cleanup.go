package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/orc/internal/task"
)

// Cleanup destroys any sandbox owned by t and prunes its worktree. It is
// idempotent: calling it twice, or calling it when nothing was ever set up,
// is not an error.
func (m *Manager) Cleanup(t *task.Task) error {
	if t == nil {
		return nil
	}

	var errs []error

	if sb := m.untrackSandbox(t.ID); sb != nil {
		if err := m.destroySandbox(sb); err != nil {
			errs = append(errs, fmt.Errorf("destroy sandbox for %s: %w", t.ID, err))
		}
	}

	if m.gitOps != nil {
		shouldClean := m.cfg.Worktree.CleanupOnComplete
		if t.Status == task.StatusFailed {
			shouldClean = m.cfg.Worktree.CleanupOnFail
		}
		if shouldClean {
			if err := m.gitOps.CleanupWorktree(t.ID); err != nil {
				errs = append(errs, fmt.Errorf("cleanup worktree for %s: %w", t.ID, err))
			}
		}
	}

	return errors.Join(errs...)
}

// ForceCleanup unconditionally removes the sandbox and worktree for t,
// ignoring the configured cleanup-on-complete/fail policy. Used by the
// engine when discarding a cancelled task.
func (m *Manager) ForceCleanup(ctx context.Context, t *task.Task) error {
	if t == nil {
		return nil
	}

	var errs []error
	if sb := m.untrackSandbox(t.ID); sb != nil {
		if err := m.destroySandbox(sb); err != nil {
			errs = append(errs, fmt.Errorf("destroy sandbox for %s: %w", t.ID, err))
		}
	}
	if m.gitOps != nil {
		if err := m.gitOps.CleanupWorktree(t.ID); err != nil {
			errs = append(errs, fmt.Errorf("cleanup worktree for %s: %w", t.ID, err))
		}
	}
	return errors.Join(errs...)
}
