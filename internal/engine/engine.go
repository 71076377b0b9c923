// Package engine is the task orchestration core: it claims pending tasks,
// drives each one's stages to completion through a linear or graph
// scheduler, waits on human-approval gates, enforces a per-task circuit
// breaker, and hands off to project memory and workspace cleanup once a
// task reaches a terminal state.
//
// Grounded on internal/orchestrator/orchestrator.go and
// internal/orchestrator/worker.go for the ambient poll-loop/worker-pool
// shape (ticker-driven tick(), context-based graceful shutdown, a
// WaitGroup tracking in-flight goroutines); the control flow itself —
// process_task, the linear and graph drivers, gate waiting, circuit
// breaker placement, dynamic gate insertion, dynamic routing, interactive
// planning, condition-based skipping — is ported from
// original_source/platform/app/worker/engine.py, since the teacher's
// orchestrator has no gates, no circuit breaker, no graph driver, and
// drives a `claude -p` subprocess per phase rather than the Executor
// contract this package depends on.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/orc/internal/compress"
	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/contracts"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/executor"
	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/memory"
	"github.com/randalmurphal/orc/internal/orcerr"
	"github.com/randalmurphal/orc/internal/store"
	"github.com/randalmurphal/orc/internal/workspace"
)

// Engine claims and drives tasks to completion. One Engine can run
// multiple tasks concurrently, bounded by maxConcurrent (WithMaxConcurrent,
// default 4; one goroutine per claimed task; RecoverStale reclaims orphaned
// claims left behind by a crashed peer).
type Engine struct {
	store      *store.Store
	publisher  events.Publisher
	workspaces *workspace.Manager
	contracts  *contracts.Extractor
	compressor *compress.Compressor
	memory     *memory.Service
	llm        llmclient.Client
	inProcess  executor.Executor
	cfg        *config.Config
	logger     *slog.Logger
	owner      string

	maxConcurrent int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithMaxConcurrent caps the number of tasks processed at once (default 4).
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithOwner sets the claim-owner identity recorded against tasks this
// Engine claims (e.g. "hostname:pid"). RecoverStale resets stale claims by
// claim age whatever their owner. Defaults to "engine" if unset.
func WithOwner(owner string) Option {
	return func(e *Engine) {
		if owner != "" {
			e.owner = owner
		}
	}
}

// New constructs an Engine. llm may be nil (dynamic routing and LLM-backed
// compression/contracts/memory extraction degrade to their fallback paths);
// ws may be nil for deployments that never run code-producing stages.
func New(
	st *store.Store,
	pub events.Publisher,
	ws *workspace.Manager,
	cfg *config.Config,
	llm llmclient.Client,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewNopPublisher()
	}

	e := &Engine{
		store:         st,
		publisher:     pub,
		workspaces:    ws,
		contracts:     contracts.New(llm, cfg.Engine.ContractsEnabled, logger),
		compressor:    compress.New(llm, cfg.Engine.CompressionEnabled, logger),
		memory:        memory.New(st, llm, cfg.Engine.MemoryEnabled, logger),
		llm:           llm,
		inProcess:     executor.NewInProcessExecutor(llm, executor.WithDefaultModel(cfg.Model)),
		cfg:           cfg,
		logger:        logger,
		owner:         "engine",
		maxConcurrent: 4,
		running:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the poll loop, claiming and running tasks until ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.ctx != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("engine started",
		"poll_interval", e.cfg.Engine.PollInterval,
		"max_concurrent", e.maxConcurrent)

	e.wg.Add(1)
	go e.pollLoop()
	return nil
}

// Stop cancels the poll loop and waits for every in-flight task goroutine
// to return. It does not attempt to interrupt a task mid-stage; it only
// stops claiming new work and waits for what's already running.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	interval := e.cfg.Engine.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	staleTicker := time.NewTicker(interval * 10)
	defer staleTicker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		case <-staleTicker.C:
			e.recoverStale()
		}
	}
}

func (e *Engine) tick() {
	if e.atCapacity() {
		return
	}
	t, err := e.store.ClaimOldestPending(e.ctx, e.owner)
	if err != nil {
		if orcErr, ok := asOrcErr(err); ok && orcErr.Code == orcerr.CodeTaskNotFound {
			return
		}
		e.logger.Error("claim failed", "error", err)
		return
	}

	e.markRunning(t.ID)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.unmarkRunning(t.ID)
		e.processTask(e.ctx, t)
	}()
}

func (e *Engine) recoverStale() {
	staleAfter := e.cfg.Engine.StaleClaimAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	n, err := e.store.RecoverStale(e.ctx, staleAfter)
	if err != nil {
		e.logger.Error("recover stale claims failed", "error", err)
		return
	}
	if n > 0 {
		e.logger.Warn("recovered stale task claims", "count", n)
	}
}

func (e *Engine) atCapacity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running) >= e.maxConcurrent
}

func (e *Engine) markRunning(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[taskID] = true
}

func (e *Engine) unmarkRunning(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, taskID)
}

func (e *Engine) publish(taskID string, evtType events.EventType, priority events.Priority, data any) {
	e.publisher.Publish(events.NewEvent(evtType, taskID, priority, data))
}

func asOrcErr(err error) (*orcerr.Error, bool) {
	var oe *orcerr.Error
	ok := orcerr.As(err, &oe)
	return oe, ok
}
