package workspace

import (
	"context"
	"fmt"

	"github.com/randalmurphal/orc/internal/hosting"
)

// CommitAndPush creates a checkpoint commit for message in ws's worktree
// and force-pushes the task branch upstream. Grounded on the teacher's
// checkpoint+push pair (git.Git.CreateCheckpoint, PushWithForceFallback):
// a task branch is owned exclusively by its task, so a force push (falling
// back to a plain push when nothing has diverged) is always safe.
func (m *Manager) CommitAndPush(ws *Workspace, message string) error {
	if ws == nil {
		return fmt.Errorf("workspace: nil workspace")
	}
	if m.gitOps == nil {
		return fmt.Errorf("workspace: git operations not available")
	}

	worktreeGit := m.gitOps.InWorktree(ws.Path)
	if clean, err := worktreeGit.IsClean(); err == nil && clean {
		return nil
	}

	if _, err := worktreeGit.CreateCheckpoint(ws.TaskID, "stage", message); err != nil {
		return fmt.Errorf("checkpoint %s: %w", ws.TaskID, err)
	}

	if err := worktreeGit.PushWithForceFallback("origin", ws.Branch, true, m.logger); err != nil {
		return fmt.Errorf("push %s: %w", ws.Branch, err)
	}

	return nil
}

// CreatePR opens a pull request from ws's branch into base, using the
// Manager's configured hosting provider (GitHub or GitLab, resolved from
// the repo's remote by internal/hosting.NewProvider).
func (m *Manager) CreatePR(ctx context.Context, ws *Workspace, title, body, base string) (*hosting.PR, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace: nil workspace")
	}
	if m.provider == nil {
		return nil, fmt.Errorf("workspace: no hosting provider configured")
	}
	if base == "" {
		base = m.cfg.Completion.TargetBranch
	}
	if base == "" {
		base = "main"
	}

	opts := hosting.PRCreateOptions{
		Title:     title,
		Body:      body,
		Head:      ws.Branch,
		Base:      base,
		Draft:     m.cfg.Completion.PR.Draft,
		Labels:    m.cfg.Completion.PR.Labels,
		Reviewers: m.cfg.Completion.PR.Reviewers,
	}

	pr, err := m.provider.CreatePR(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("create PR for %s: %w", ws.TaskID, err)
	}
	return pr, nil
}
