// Package workspace drives the per-task git worktree and sandbox container
// lifecycle: creating an isolated branch and checkout for a task, optionally
// starting a resource-limited sandbox container for code-producing stages,
// and committing/pushing/opening a pull request once the task completes.
//
// Grounded on internal/executor/worktree.go's SetupWorktreeForTask /
// cleanWorktreeState pattern, retargeted from the teacher's initiative/
// developer-staging branch hierarchy to a single task/<shortid>-<slug>
// branch per task, and on internal/hosting for PR creation.
package workspace

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/git"
	"github.com/randalmurphal/orc/internal/hosting"
	"github.com/randalmurphal/orc/internal/task"
)

// FallbackMode governs what SetupSandbox does when the container fails to
// become healthy.
type FallbackMode string

const (
	// FallbackStrict fails the task outright on sandbox startup failure.
	FallbackStrict FallbackMode = "strict"
	// FallbackGraceful falls back to in-process execution.
	FallbackGraceful FallbackMode = "graceful"
)

// Workspace is the result of SetupWorktree: an isolated checkout a task's
// stages execute against.
type Workspace struct {
	TaskID string
	Path   string
	Branch string
	Reused bool
}

// Sandbox is the result of SetupSandbox: a running, health-checked container
// scoped to a single task's workspace.
type Sandbox struct {
	TaskID      string
	ContainerID string
	BaseURL     string
	Fallback    bool // true if the sandbox failed and execution fell back in-process
}

// Manager owns worktree and sandbox lifecycle for every task in flight. One
// Manager is shared across all concurrently-processed tasks in a project.
type Manager struct {
	repoPath string
	gitOps   *git.Git
	cfg      *config.Config
	provider hosting.Provider
	events   events.Publisher
	logger   *slog.Logger

	runner ContainerRunner

	// repoLocks serializes clone/pull/fetch against the shared repo per
	// task's base branch, so concurrent SetupWorktree calls don't race git.
	repoLocks sync.Map // map[string]*sync.Mutex, keyed by repo path

	// sandboxSem bounds the number of sandbox containers running at once,
	// independent of how many tasks are being processed concurrently.
	sandboxSem *semaphore.Weighted

	mu        sync.Mutex
	sandboxes map[string]*Sandbox // taskID -> running sandbox
}

// New constructs a Manager rooted at repoPath, using gitOps for worktree
// operations and provider for PR/MR creation. provider may be nil if the
// task's project has no configured hosting remote; CreatePR then fails
// loudly rather than silently no-opping.
func New(repoPath string, gitOps *git.Git, cfg *config.Config, provider hosting.Provider, pub events.Publisher, logger *slog.Logger) *Manager {
	if cfg == nil {
		def := config.Default()
		cfg = def
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := cfg.Sandbox.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Manager{
		repoPath:   repoPath,
		gitOps:     gitOps,
		cfg:        cfg,
		provider:   provider,
		events:     pub,
		logger:     logger,
		runner:     NewDockerRunner(),
		sandboxSem: semaphore.NewWeighted(int64(maxConcurrent)),
		sandboxes:  make(map[string]*Sandbox),
	}
}

func (m *Manager) repoLock() *sync.Mutex {
	v, _ := m.repoLocks.LoadOrStore(m.repoPath, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Manager) publish(taskID string, evtType events.EventType, priority events.Priority, data any) {
	if m.events == nil {
		return
	}
	m.events.Publish(events.NewEvent(evtType, taskID, priority, data))
}

func (m *Manager) taskLogger(t *task.Task) *slog.Logger {
	return m.logger.With("task_id", t.ID)
}

// trackSandbox records a sandbox's running state for Cleanup to find later.
func (m *Manager) trackSandbox(sb *Sandbox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sandboxes[sb.TaskID] = sb
}

func (m *Manager) untrackSandbox(taskID string) *Sandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb := m.sandboxes[taskID]
	delete(m.sandboxes, taskID)
	return sb
}
