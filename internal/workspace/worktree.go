package workspace

import (
	"fmt"
	"os"

	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/git"
	"github.com/randalmurphal/orc/internal/task"
)

// SetupWorktree creates or reuses an isolated git worktree for t, checked
// out on a task/<shortid>-<slug> branch. It is safe to call again after a
// crash: an existing worktree is cleaned of any in-progress rebase/merge,
// discarded of uncommitted changes, and switched back onto the expected
// branch if it somehow ended up elsewhere.
func (m *Manager) SetupWorktree(t *task.Task) (*Workspace, error) {
	if !m.cfg.Worktree.Enabled {
		return nil, nil
	}
	if m.gitOps == nil {
		return nil, fmt.Errorf("workspace: git operations not available")
	}
	if t == nil {
		return nil, fmt.Errorf("workspace: task is required")
	}

	branchName := t.BranchName
	if branchName == "" {
		branchName = m.gitOps.SlugBranchName(t.ID, t.Title)
	}

	baseBranch := m.cfg.Completion.TargetBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	logger := m.taskLogger(t)
	m.publish(t.ID, events.EventWorktreeCreateStarted, events.PriorityNormal, events.WorktreeEvent{Branch: branchName})

	lock := m.repoLock()
	lock.Lock()
	defer lock.Unlock()

	worktreePath := m.gitOps.WorktreePath(t.ID)
	if _, err := os.Stat(worktreePath); err == nil {
		if cleanErr := cleanWorktreeState(m.gitOps, worktreePath, branchName); cleanErr != nil {
			err := fmt.Errorf("clean worktree state for %s: %w", t.ID, cleanErr)
			m.publish(t.ID, events.EventWorktreeCreateFinished, events.PriorityNormal, events.WorktreeEvent{Branch: branchName, Path: worktreePath, Error: err.Error()})
			return nil, err
		}
		ws := &Workspace{TaskID: t.ID, Path: worktreePath, Branch: branchName, Reused: true}
		m.publish(t.ID, events.EventWorktreeCreateFinished, events.PriorityNormal, events.WorktreeEvent{Branch: branchName, Path: worktreePath, Reused: true})
		return ws, nil
	}

	path, err := m.gitOps.CreateWorktreeNamed(t.ID, branchName, baseBranch)
	if err != nil {
		err = fmt.Errorf("create worktree for %s: %w", t.ID, err)
		m.publish(t.ID, events.EventWorktreeCreateFinished, events.PriorityNormal, events.WorktreeEvent{Branch: branchName, Error: err.Error()})
		return nil, err
	}

	worktreeGit := m.gitOps.InWorktree(path)
	currentBranch, err := worktreeGit.GetCurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("verify worktree branch for %s: %w", t.ID, err)
	}
	if currentBranch != branchName {
		return nil, fmt.Errorf("worktree created on wrong branch: expected %s, got %s", branchName, currentBranch)
	}

	logger.Info("worktree created", "branch", branchName, "path", path)
	m.publish(t.ID, events.EventWorktreeCreateFinished, events.PriorityNormal, events.WorktreeEvent{Branch: branchName, Path: path})

	return &Workspace{TaskID: t.ID, Path: path, Branch: branchName, Reused: false}, nil
}

// cleanWorktreeState resolves any in-progress rebase/merge, discards
// uncommitted changes, and ensures the worktree sits on expectedBranch.
// Ported from the teacher's cleanWorktreeState, which exists to make
// resuming a crashed task idempotent rather than erroring on stale state.
func cleanWorktreeState(gitOps *git.Git, worktreePath, expectedBranch string) error {
	worktreeGit := gitOps.InWorktree(worktreePath)

	if inProgress, err := worktreeGit.IsRebaseInProgress(); err == nil && inProgress {
		if err := worktreeGit.AbortRebase(); err != nil {
			return fmt.Errorf("abort rebase: %w", err)
		}
	}
	if inProgress, err := worktreeGit.IsMergeInProgress(); err == nil && inProgress {
		if err := worktreeGit.AbortMerge(); err != nil {
			return fmt.Errorf("abort merge: %w", err)
		}
	}

	if clean, err := worktreeGit.IsClean(); err != nil || !clean {
		if err := worktreeGit.DiscardChanges(); err != nil {
			return fmt.Errorf("discard changes: %w", err)
		}
	}

	currentBranch, err := worktreeGit.GetCurrentBranch()
	if err != nil {
		return fmt.Errorf("get current branch: %w", err)
	}
	if currentBranch != expectedBranch {
		if err := worktreeGit.CheckoutSafe(expectedBranch); err != nil {
			return fmt.Errorf("checkout expected branch %s (was on %s): %w", expectedBranch, currentBranch, err)
		}
	}

	return nil
}

// WorktreeExists reports whether t already has a worktree on disk.
func (m *Manager) WorktreeExists(t *task.Task) bool {
	if m.gitOps == nil {
		return false
	}
	_, err := os.Stat(m.gitOps.WorktreePath(t.ID))
	return err == nil
}
