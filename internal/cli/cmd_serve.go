package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc/internal/broadcast"
	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/engine"
	"github.com/randalmurphal/orc/internal/events"
	"github.com/randalmurphal/orc/internal/git"
	"github.com/randalmurphal/orc/internal/hosting"
	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/store"
	"github.com/randalmurphal/orc/internal/task"
	"github.com/randalmurphal/orc/internal/workspace"
)

func newServeCmd() *cobra.Command {
	var apiKey string
	var maxConcurrent int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the poll loop that claims and executes tasks",
		Long: `Starts the engine's poll loop, claiming pending tasks and driving them
through their stage graph until cancelled (Ctrl-C). Also serves a
websocket endpoint at /ws for orc watch and any external dashboard.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger := newLogger()

			ctx, cancel := setupSignalHandler()
			defer cancel()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			pub := events.NewPersistentPublisher(st, "engine", logger)
			ws := buildWorkspaceManager(cfg, pub, logger)
			llm := buildLLMClient(apiKey, cfg.Model)

			owner, _ := os.Hostname()
			opts := []engine.Option{WithOwnerFromHost(owner)}
			if maxConcurrent > 0 {
				opts = append(opts, engine.WithMaxConcurrent(maxConcurrent))
			}
			eng := engine.New(st, pub, ws, cfg, llm, logger, opts...)

			decider := &gateDecider{ctx: ctx, store: st}
			mux := http.NewServeMux()
			mux.Handle("/ws", broadcast.NewHandler(pub, decider, logger))

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				logger.Info("serving websocket endpoint", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("websocket server failed", "error", err)
				}
			}()

			if err := eng.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			logger.Info("engine started, polling for tasks")

			<-ctx.Done()
			eng.Stop()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key (defaults to ANTHROPIC_API_KEY)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum tasks processed concurrently (0 uses the engine default)")
	return cmd
}

// WithOwnerFromHost is a thin engine.WithOwner wrapper tagging the claim
// owner with the current hostname, recorded as claim_owner on every task
// this process claims.
func WithOwnerFromHost(hostname string) engine.Option {
	if hostname == "" {
		hostname = "orc-serve"
	}
	return engine.WithOwner(fmt.Sprintf("%s:%d", hostname, os.Getpid()))
}

func buildLLMClient(apiKey, model string) llmclient.Client {
	return llmclient.New(apiKey, model)
}

// buildWorkspaceManager wires a workspace.Manager from the current
// directory's git repo and configured hosting provider. Workspace setup is
// only exercised by code-producing stages (task.IsCodeRole), so a failure
// here (no git repo, no remote) degrades to a nil manager rather than
// blocking orc serve for deployments that never run coding stages.
func buildWorkspaceManager(cfg *config.Config, pub events.Publisher, logger *slog.Logger) *workspace.Manager {
	repoPath, err := os.Getwd()
	if err != nil {
		return nil
	}
	gitCfg := git.Config{
		BranchPrefix:      cfg.BranchPrefix,
		CommitPrefix:      cfg.CommitPrefix,
		WorktreeDir:       cfg.Worktree.Dir,
		ProtectedBranches: []string{"main", "master", "develop", "release"},
	}
	gitOps, err := git.New(repoPath, gitCfg)
	if err != nil {
		logger.Warn("git workspace unavailable, code-producing stages will fail", "error", err)
		return nil
	}
	provider, err := hosting.NewProvider(repoPath, hosting.Config{Provider: "auto"})
	if err != nil {
		logger.Warn("hosting provider unavailable, PR creation will fail", "error", err)
	}
	return workspace.New(repoPath, gitOps, cfg, provider, pub, logger)
}

// gateDecider adapts store.DecideGate to broadcast.GateDecider, supplying
// the ambient context and the gate's reviewer as "watch" since decisions
// arriving over the socket come from whoever is connected to orc watch.
type gateDecider struct {
	ctx   context.Context
	store *store.Store
}

func (g *gateDecider) DecideGate(gateID, decision, comment, revised string) error {
	status := task.GateStatus(decision)
	switch decision {
	case "approve":
		status = task.GateStatusApproved
	case "reject":
		status = task.GateStatusRejected
	case "revise":
		status = task.GateStatusRevised
	}
	return g.store.DecideGate(g.ctx, gateID, status, "watch", comment, revised)
}
