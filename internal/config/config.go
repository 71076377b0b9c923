// Package config provides configuration management for orc.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// OrcDir is the orc configuration directory
	OrcDir = ".orc"
)

































// ParallelReviewConfig defines configuration for parallel reviewer agents.
type ParallelReviewConfig struct {
	// Enabled enables parallel reviewers for medium+ weight tasks (default: false)
	Enabled bool `yaml:"enabled"`
	// Perspectives defines which reviewer perspectives to use
	// Valid values: correctness, architecture, security, performance
	// Default: [correctness, architecture]
	Perspectives []string `yaml:"perspectives,omitempty"`
}

















// UnmarshalYAML handles parsing cooldown from various formats.






// PhaseModelSetting defines model and thinking configuration for a phase.
type PhaseModelSetting struct {
	// Model is the model to use for this phase.
	// Can be an alias (opus, sonnet, haiku) or full model ID.
	// Empty string means use the default model.
	Model string `yaml:"model,omitempty"`

	// Thinking enables extended thinking mode for this phase.
	// When true, "ultrathink" is injected into the prompt to activate
	// maximum thinking budget (31,999 tokens).
	Thinking bool `yaml:"thinking,omitempty"`
}

// WeightModelConfig maps phase names to model settings for a specific weight tier.
// Phase names: research, spec, design, implement, test, review, docs, validate, finalize
type WeightModelConfig map[string]PhaseModelSetting

// ModelsConfig defines model selection and thinking mode per weight tier and phase.
// This allows optimizing model usage: opus for decisions, sonnet for execution,
// thinking mode for spec/design/review phases where deep reasoning helps.
type ModelsConfig struct {
	// Default is the fallback model setting when no specific config exists.
	// Default: {Model: "opus", Thinking: false}
	Default PhaseModelSetting `yaml:"default"`

	// Trivial overrides for trivial weight tasks.
	Trivial WeightModelConfig `yaml:"trivial,omitempty"`

	// Small overrides for small weight tasks.
	Small WeightModelConfig `yaml:"small,omitempty"`

	// Medium overrides for medium weight tasks.
	Medium WeightModelConfig `yaml:"medium,omitempty"`

	// Large overrides for large weight tasks.
	Large WeightModelConfig `yaml:"large,omitempty"`

	// Greenfield overrides for greenfield weight tasks.
	Greenfield WeightModelConfig `yaml:"greenfield,omitempty"`
}












// Config represents the orc configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	// Automation profile (auto, fast, safe, strict)
	Profile AutomationProfile `yaml:"profile"`

	// Gate configuration
	Gates GateConfig `yaml:"gates"`

	// Retry configuration for cross-phase retry
	Retry RetryConfig `yaml:"retry"`

	// Worktree isolation settings
	Worktree WorktreeConfig `yaml:"worktree"`

	// Completion settings (merge/PR after task completes)
	Completion CompletionConfig `yaml:"completion"`

	// Sandbox settings for container-isolated stage execution
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Execution strategy settings
	Execution ExecutionConfig `yaml:"execution"`

	// Budget settings for cost tracking
	Budget BudgetConfig `yaml:"budget"`

	// Token pool settings for automatic account switching
	Pool PoolConfig `yaml:"pool"`

	// Server settings (for team mode)
	Server ServerConfig `yaml:"server"`

	// Team mode settings
	Team TeamConfig `yaml:"team"`

	// Identity settings for multi-user coordination
	Identity IdentityConfig `yaml:"identity"`

	// Task ID generation settings
	TaskID TaskIDConfig `yaml:"task_id"`

	// Testing configuration
	Testing TestingConfig `yaml:"testing"`

	// Documentation configuration
	Documentation DocumentationConfig `yaml:"documentation"`

	// Timeouts configuration
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// QA session configuration
	QA QAConfig `yaml:"qa"`

	// Review configuration
	Review ReviewConfig `yaml:"review"`

	// Plan/spec configuration
	Plan PlanConfig `yaml:"plan"`

	// Artifact skip configuration
	ArtifactSkip ArtifactSkipConfig `yaml:"artifact_skip"`

	// Sub-task queue configuration
	Subtasks SubtasksConfig `yaml:"subtasks"`

	// Tasks configuration
	Tasks TasksConfig `yaml:"tasks"`

	// Diagnostics configuration
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Developer settings for personal branch targeting (staging branches)
	Developer DeveloperConfig `yaml:"developer,omitempty"`

	// MCP (Model Context Protocol) server configuration
	MCP MCPConfig `yaml:"mcp"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Models configuration for per-weight, per-phase model selection
	Models ModelsConfig `yaml:"models"`

	// Automation configuration for triggers and templates
	Automation AutomationConfig `yaml:"automation"`

	// Model settings (legacy - used as fallback if Models.Default.Model is empty)
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model,omitempty"`

	// Execution settings
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`

	// Git settings
	BranchPrefix string `yaml:"branch_prefix"`
	CommitPrefix string `yaml:"commit_prefix"`

	// Claude CLI settings
	ClaudePath                 string `yaml:"claude_path"`
	DangerouslySkipPermissions bool   `yaml:"dangerously_skip_permissions"`

	// Template paths
	TemplatesDir string `yaml:"templates_dir"`

	// Checkpoint settings
	EnableCheckpoints bool `yaml:"enable_checkpoints"`

	// Engine configuration for the task orchestration core
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig configures internal/engine's task orchestration loop: claim
// polling, gate wait timeouts, the circuit breaker, dynamic gate insertion,
// dynamic routing, and interactive planning pauses.
type EngineConfig struct {
	// PollInterval is how often the engine looks for a pending task to claim.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StaleClaimAfter reclaims a task left in "claimed" or "running" whose
	// claim is older than this (a worker that died mid-task).
	StaleClaimAfter time.Duration `yaml:"stale_claim_after"`

	// GraphExecutionEnabled runs templates with an explicit dependency graph
	// through the DAG driver instead of the legacy order-grouped linear one.
	GraphExecutionEnabled bool `yaml:"graph_execution_enabled"`

	// GraphMaxLoopMultiplier bounds graph-driver iterations at
	// GraphMaxLoopMultiplier * len(stages) before the task is failed as stuck.
	GraphMaxLoopMultiplier int `yaml:"graph_max_loop_multiplier"`

	// GatePollInterval is how often a pending gate's status is re-read.
	GatePollInterval time.Duration `yaml:"gate_poll_interval"`

	// GateMaxWait bounds total time spent waiting on a single gate decision.
	GateMaxWait time.Duration `yaml:"gate_max_wait"`

	// CircuitBreaker bounds token/cost spend per task before the task is
	// failed and a breaker trip is recorded.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// DynamicGate inserts a confidence_review gate after a stage whose
	// structured output reports low confidence.
	DynamicGate DynamicGateConfig `yaml:"dynamic_gate"`

	// DynamicRouting lets an LLM pick the next stage from a template's
	// routing options based on the completed stage's output.
	DynamicRouting DynamicRoutingConfig `yaml:"dynamic_routing"`

	// InteractivePlanning pauses a task to "planning" after its "parse"
	// stage for templates in the allow-list, awaiting a plan_review gate.
	InteractivePlanning InteractivePlanningConfig `yaml:"interactive_planning"`

	// MemoryEnabled extracts and persists per-project memory entries from
	// completed task stages.
	MemoryEnabled bool `yaml:"memory_enabled"`

	// CompressionEnabled runs LLM-backed L0/L1 compression on stage output;
	// when false, compression falls back to truncation only.
	CompressionEnabled bool `yaml:"compression_enabled"`

	// ContractsEnabled runs structured-output extraction on stage output;
	// when false, conditions/routing/dynamic-gate confidence see no
	// structured data and always take their fail-open branch.
	ContractsEnabled bool `yaml:"contracts_enabled"`
}

// CircuitBreakerConfig bounds per-task spend before execution is halted.
type CircuitBreakerConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MaxTokens      int64   `yaml:"max_tokens"`
	MaxCostUSD     float64 `yaml:"max_cost_usd"`
}

// DynamicGateConfig configures confidence-triggered gate insertion.
type DynamicGateConfig struct {
	Enabled              bool    `yaml:"enabled"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
}

// DynamicRoutingConfig configures LLM-driven next-stage selection.
type DynamicRoutingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Model       string `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int    `yaml:"max_tokens"`
}

// InteractivePlanningConfig configures the post-parse planning pause.
type InteractivePlanningConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Templates []string `yaml:"templates,omitempty"`
}

// ResolveGateType returns the effective gate type for a phase given task weight.
// Priority: weight override > phase override > default
func (c *Config) ResolveGateType(phase string, weight string) string {
	// Check weight-specific override first
	if c.Gates.WeightOverrides != nil {
		if weightOverrides, ok := c.Gates.WeightOverrides[weight]; ok {
			if gateType, ok := weightOverrides[phase]; ok {
				return gateType
			}
		}
	}

	// Check phase override
	if c.Gates.PhaseOverrides != nil {
		if gateType, ok := c.Gates.PhaseOverrides[phase]; ok {
			return gateType
		}
	}

	// Return default
	if c.Gates.DefaultType != "" {
		return c.Gates.DefaultType
	}

	return "auto"
}

// ResolveModelSetting returns the effective model setting for a phase given task weight.
// Priority: weight-specific phase setting > weight default > global default > legacy Model field
func (c *Config) ResolveModelSetting(weight, phase string) PhaseModelSetting {
	// Get the weight-specific config
	var weightConfig WeightModelConfig
	switch weight {
	case "trivial":
		weightConfig = c.Models.Trivial
	case "small":
		weightConfig = c.Models.Small
	case "medium":
		weightConfig = c.Models.Medium
	case "large":
		weightConfig = c.Models.Large
	case "greenfield":
		weightConfig = c.Models.Greenfield
	}

	// Check weight-specific phase setting
	if weightConfig != nil {
		if setting, ok := weightConfig[phase]; ok {
			// Fill in missing model from default
			if setting.Model == "" {
				setting.Model = c.effectiveDefaultModel()
			}
			return setting
		}
	}

	// Return default with effective model
	result := c.Models.Default
	if result.Model == "" {
		result.Model = c.effectiveDefaultModel()
	}
	return result
}

// effectiveDefaultModel returns the default model, falling back to legacy Model field.
func (c *Config) effectiveDefaultModel() string {
	if c.Models.Default.Model != "" {
		return c.Models.Default.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return "opus" // Ultimate fallback
}

// ShouldRetryFrom returns the phase to retry from if the given phase fails.
// Returns empty string if no retry configured.
func (c *Config) ShouldRetryFrom(failedPhase string) string {
	if !c.Retry.Enabled {
		return ""
	}
	if c.Retry.RetryMap != nil {
		return c.Retry.RetryMap[failedPhase]
	}
	return ""
}

// ResolveCompletionAction returns the effective completion action for a task weight.
// Priority: weight-specific override > default action
func (c *Config) ResolveCompletionAction(weight string) string {
	if c.Completion.WeightActions != nil {
		if action, ok := c.Completion.WeightActions[weight]; ok {
			return action
		}
	}
	return c.Completion.Action
}

// Default returns the default configuration.
// Default is AUTOMATION-FIRST: all gates auto, retry enabled.

// ProfilePresets returns gate configuration for a given automation profile.

// ApplyProfile applies a preset profile to the configuration.
// This affects gates, finalize phase, and PR behavior.
func (c *Config) ApplyProfile(profile AutomationProfile) {
	c.Profile = profile
	c.Gates = ProfilePresets(profile)
	c.Completion.Finalize = FinalizePresets(profile)
	c.Completion.PR.AutoApprove = PRAutoApprovePreset(profile)
}

// PRAutoApprovePreset returns the auto-approve setting for a given automation profile.

// FinalizePresets returns finalize configuration for a given automation profile.

// Load loads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(OrcDir, ConfigFileName))
}

// LoadFrom loads the config from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save saves the config to the default location.
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(OrcDir, ConfigFileName))
}

// SaveTo saves the config to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Init initializes the orc directory structure in the current directory.
func Init(force bool) error {
	return InitAt(".", force)
}

// InitAt initializes the orc directory structure at the specified base path.
func InitAt(basePath string, force bool) error {
	orcDir := filepath.Join(basePath, OrcDir)
	// Check if already initialized
	if !force {
		if _, err := os.Stat(orcDir); err == nil {
			return fmt.Errorf("orc already initialized (use --force to overwrite)")
		}
	}

	// Create directory structure
	dirs := []string{
		orcDir,
		filepath.Join(orcDir, "tasks"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Write default config
	cfg := Default()
	if err := cfg.SaveTo(filepath.Join(orcDir, ConfigFileName)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// IsInitialized returns true if orc is initialized in the current directory.
func IsInitialized() bool {
	return IsInitializedAt(".")
}

// IsInitializedAt returns true if orc is initialized at the specified base path.
func IsInitializedAt(basePath string) bool {
	_, err := os.Stat(filepath.Join(basePath, OrcDir))
	return err == nil
}

// RequireInit returns an error if orc is not initialized in the current directory.
func RequireInit() error {
	return RequireInitAt(".")
}

// RequireInitAt returns an error if orc is not initialized at the specified base path.
func RequireInitAt(basePath string) error {
	if !IsInitializedAt(basePath) {
		return fmt.Errorf("not an orc project (no %s directory). Run 'orc init' first", OrcDir)
	}
	return nil
}

// FindProjectRoot finds the main project root directory that contains the .orc/tasks directory.
// This handles git worktrees where tasks are stored in the main repo, not the worktree.
//
// Resolution order:
// 1. If current directory has .orc/tasks, use current directory
// 2. If in a git worktree, find the main repo and check for .orc/tasks there
// 3. Walk up directories looking for .orc/tasks
// 4. If still not found, return current directory as fallback
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	// Check if current directory has tasks
	if hasTasksDir(cwd) {
		return cwd, nil
	}

	// Check if we're in a git worktree
	mainRepo, err := findMainGitRepo()
	if err == nil && mainRepo != "" && mainRepo != cwd {
		if hasTasksDir(mainRepo) {
			return mainRepo, nil
		}
	}

	// Walk up directories looking for .orc/tasks
	dir := cwd
	for {
		if hasTasksDir(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Fallback: return current directory (may have .orc but no tasks yet)
	if IsInitializedAt(cwd) {
		return cwd, nil
	}

	return "", fmt.Errorf("not in an orc project (no %s directory found)", OrcDir)
}

// hasTasksDir checks if a directory has .orc/tasks
func hasTasksDir(dir string) bool {
	tasksPath := filepath.Join(dir, OrcDir, "tasks")
	info, err := os.Stat(tasksPath)
	return err == nil && info.IsDir()
}

// findMainGitRepo uses git to find the main repository when in a worktree.
// Returns empty string if not in a git repo or not in a worktree.
func findMainGitRepo() (string, error) {
	// Get the common git directory (points to main repo's .git)
	cmd := exec.Command("git", "rev-parse", "--git-common-dir")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	gitCommonDir := strings.TrimSpace(string(output))
	if gitCommonDir == "" || gitCommonDir == ".git" {
		// Not in a worktree, return empty
		return "", nil
	}

	// gitCommonDir is like /path/to/main-repo/.git
	// We want /path/to/main-repo
	if filepath.Base(gitCommonDir) == ".git" {
		return filepath.Dir(gitCommonDir), nil
	}

	// Handle bare repos or unusual setups
	return filepath.Dir(gitCommonDir), nil
}

// ExecutorPrefix returns the prefix for branch/worktree naming based on mode.
// Returns empty string in solo mode, identity initials in p2p/team mode.
func (c *Config) ExecutorPrefix() string {
	if c.TaskID.Mode == "solo" {
		return ""
	}
	return c.Identity.Initials
}

// ShouldSkipQA returns true if QA should be skipped for the given task weight.
func (c *Config) ShouldSkipQA(weight string) bool {
	if !c.QA.Enabled {
		return true
	}
	for _, w := range c.QA.SkipForWeights {
		if w == weight {
			return true
		}
	}
	return false
}

// ShouldSkipReview returns true if review should be skipped.
func (c *Config) ShouldSkipReview() bool {
	return !c.Review.Enabled
}

// EffectiveMaxRetries returns the configured maximum retry attempts.
// This checks executor.max_retries first (the primary config location),
// then falls back to retry.max_retries for backward compatibility.
// Returns 5 (the default) if neither is explicitly set.
func (c *Config) EffectiveMaxRetries() int {
	// executor.max_retries takes precedence
	if c.Execution.MaxRetries > 0 {
		return c.Execution.MaxRetries
	}
	// Fall back to retry.max_retries for backward compatibility
	if c.Retry.MaxRetries > 0 {
		return c.Retry.MaxRetries
	}
	// Default to 5
	return 5
}

// ShouldSyncForWeight returns true if sync should be performed for this weight.
func (c *Config) ShouldSyncForWeight(weight string) bool {
	if c.Completion.Sync.Strategy == SyncStrategyNone {
		return false
	}
	for _, w := range c.Completion.Sync.SkipForWeights {
		if w == weight {
			return false
		}
	}
	return true
}

// ShouldSyncBeforePhase returns true if sync should happen before each phase.
func (c *Config) ShouldSyncBeforePhase() bool {
	return c.Completion.Sync.Strategy == SyncStrategyPhase
}

// ShouldSyncOnStart returns true if sync should happen before task execution starts.
// This catches conflicts from parallel tasks early, while the implement phase can
// still incorporate changes and resolve them.
func (c *Config) ShouldSyncOnStart() bool {
	// If sync is completely disabled, don't sync on start either
	if c.Completion.Sync.Strategy == SyncStrategyNone {
		return false
	}
	return c.Completion.Sync.SyncOnStart
}

// ShouldSyncAtCompletion returns true if sync should happen at task completion.
func (c *Config) ShouldSyncAtCompletion() bool {
	return c.Completion.Sync.Strategy == SyncStrategyCompletion ||
		c.Completion.Sync.Strategy == SyncStrategyDetect
}

// ShouldDetectConflictsOnly returns true if we should only detect conflicts, not resolve.
func (c *Config) ShouldDetectConflictsOnly() bool {
	return c.Completion.Sync.Strategy == SyncStrategyDetect
}

// ShouldRunFinalize returns true if the finalize phase should run for this task weight.
func (c *Config) ShouldRunFinalize(weight string) bool {
	if !c.Completion.Finalize.Enabled {
		return false
	}
	// Trivial tasks don't need finalize
	if weight == "trivial" {
		return false
	}
	return true
}

// ShouldAutoTriggerFinalize returns true if finalize should auto-trigger after validate.
func (c *Config) ShouldAutoTriggerFinalize() bool {
	return c.Completion.Finalize.Enabled && c.Completion.Finalize.AutoTrigger
}

// ShouldAutoTriggerFinalizeOnApproval returns true if finalize should auto-trigger when PR is approved.
// This is only enabled for automation profiles that support fully automated workflows (auto, fast).
func (c *Config) ShouldAutoTriggerFinalizeOnApproval() bool {
	return c.Completion.Finalize.Enabled && c.Completion.Finalize.AutoTriggerOnApproval
}

// ShouldAutoApprovePR returns true if AI should review and approve PRs automatically.
// This is only enabled for automation profiles that support fully automated workflows (auto, fast).
// For safe/strict profiles, human approval is required.
func (c *Config) ShouldAutoApprovePR() bool {
	// Only auto mode and fast mode support auto-approval
	if c.Profile != ProfileAuto && c.Profile != ProfileFast {
		return false
	}
	return c.Completion.PR.AutoApprove
}

// ShouldWaitForCI returns true if we should wait for CI checks before merging.
// Only enabled for auto/fast profiles.
func (c *Config) ShouldWaitForCI() bool {
	if c.Profile != ProfileAuto && c.Profile != ProfileFast {
		return false
	}
	return c.Completion.CI.WaitForCI
}

// ShouldMergeOnCIPass returns true if we should auto-merge after CI passes.
// Only enabled for auto/fast profiles and requires WaitForCI to be enabled.
func (c *Config) ShouldMergeOnCIPass() bool {
	if c.Profile != ProfileAuto && c.Profile != ProfileFast {
		return false
	}
	// Can't merge on CI pass if we're not waiting for CI
	return c.Completion.CI.WaitForCI && c.Completion.CI.MergeOnCIPass
}

// CITimeout returns the configured CI timeout, defaulting to 10 minutes.
func (c *Config) CITimeout() time.Duration {
	if c.Completion.CI.CITimeout <= 0 {
		return 10 * time.Minute
	}
	return c.Completion.CI.CITimeout
}

// CIPollInterval returns the CI polling interval, defaulting to 30 seconds.
func (c *Config) CIPollInterval() time.Duration {
	if c.Completion.CI.PollInterval <= 0 {
		return 30 * time.Second
	}
	return c.Completion.CI.PollInterval
}

// MergeMethod returns the configured merge method, defaulting to "squash".
func (c *Config) MergeMethod() string {
	method := c.Completion.CI.MergeMethod
	if method == "" {
		return "squash"
	}
	return method
}

// FinalizeUsesRebase returns true if finalize should use rebase strategy.
func (c *Config) FinalizeUsesRebase() bool {
	return c.Completion.Finalize.Sync.Strategy == FinalizeSyncRebase
}

// ShouldResolveConflicts returns true if AI should attempt to resolve conflicts.
func (c *Config) ShouldResolveConflicts() bool {
	return c.Completion.Finalize.ConflictResolution.Enabled
}

// GetConflictInstructions returns any additional conflict resolution instructions.
func (c *Config) GetConflictInstructions() string {
	return c.Completion.Finalize.ConflictResolution.Instructions
}

// ShouldAssessRisk returns true if risk assessment should be performed.
func (c *Config) ShouldAssessRisk() bool {
	return c.Completion.Finalize.RiskAssessment.Enabled
}


// ShouldReReview returns true if the given risk level meets or exceeds the re-review threshold.
func (c *Config) ShouldReReview(riskLevel RiskLevel) bool {
	if !c.Completion.Finalize.RiskAssessment.Enabled {
		return false
	}
	threshold := ParseRiskLevel(c.Completion.Finalize.RiskAssessment.ReReviewThreshold)
	return riskLevel >= threshold
}

// GetPreMergeGateType returns the gate type for the pre-merge check.
func (c *Config) GetPreMergeGateType() string {
	gateType := c.Completion.Finalize.Gates.PreMerge
	if gateType == "" {
		return "auto"
	}
	return gateType
}

// IsTeamMode returns true if orc is configured for team mode (shared database).
// Team mode enables schedule-based triggers and time-based cooldowns.
func (c *Config) IsTeamMode() bool {
	return c.Database.Driver == "postgres" || c.Team.Mode == "shared_db"
}

// AutomationEnabled returns true if automation is enabled.
func (c *Config) AutomationEnabled() bool {
	return c.Automation.Enabled
}

// GetTriggerMode returns the effective execution mode for a trigger.
// Uses the trigger's mode if set, otherwise falls back to default_mode.
func (c *Config) GetTriggerMode(trigger TriggerConfig) AutomationMode {
	if trigger.Mode != "" {
		return trigger.Mode
	}
	if c.Automation.DefaultMode != "" {
		return c.Automation.DefaultMode
	}
	return AutomationModeAuto
}

// GetAutomationTemplate returns a template by ID, or nil if not found.
func (c *Config) GetAutomationTemplate(id string) *AutomationTemplateConfig {
	if c.Automation.Templates == nil {
		return nil
	}
	if tmpl, ok := c.Automation.Templates[id]; ok {
		return &tmpl
	}
	return nil
}

// GetEnabledTriggers returns all enabled triggers.
func (c *Config) GetEnabledTriggers() []TriggerConfig {
	var enabled []TriggerConfig
	for _, t := range c.Automation.Triggers {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// GetTriggersByType returns all enabled triggers of a specific type.
func (c *Config) GetTriggersByType(triggerType TriggerType) []TriggerConfig {
	var triggers []TriggerConfig
	for _, t := range c.Automation.Triggers {
		if t.Enabled && t.Type == triggerType {
			triggers = append(triggers, t)
		}
	}
	return triggers
}

// SupportsScheduleTriggers returns true if schedule-based triggers are supported.
// Schedule triggers require team mode with a persistent server.
func (c *Config) SupportsScheduleTriggers() bool {
	return c.IsTeamMode()
}

// DSN returns the database connection string based on current config.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	}
	return c.Database.SQLite.Path
}

// GlobalDSN returns the global database connection string.
func (c *Config) GlobalDSN() string {
	if c.Database.Driver == "postgres" {
		return c.DSN() // Same DB in postgres mode
	}
	return c.Database.SQLite.GlobalPath
}

// Valid values for validation
var (
	// ValidVisibilities are the allowed values for team.visibility
	ValidVisibilities = []string{"all", "assigned", "owned"}

	// ValidModes are the allowed values for team.mode
	ValidModes = []string{"local", "shared_db", "sync_server"}

	// ValidCompletionActions are the allowed values for completion.action
	ValidCompletionActions = []string{"pr", "merge", "none", ""}

	// ValidSyncStrategies are the allowed values for completion.sync.strategy
	ValidSyncStrategies = []string{
		string(SyncStrategyNone),
		string(SyncStrategyPhase),
		string(SyncStrategyCompletion),
		string(SyncStrategyDetect),
		"", // empty defaults to completion
	}

	// ValidFinalizeSyncStrategies are the allowed values for completion.finalize.sync.strategy
	ValidFinalizeSyncStrategies = []string{
		string(FinalizeSyncRebase),
		string(FinalizeSyncMerge),
		"", // empty defaults to merge
	}

	// ValidRiskLevels are the allowed values for risk assessment thresholds
	ValidRiskLevels = []string{"low", "medium", "high", "critical", ""}

	// ValidGateTypes are the allowed values for gate types
	ValidGateTypes = []string{"auto", "ai", "human", "none", ""}

	// DefaultProtectedBranches are branches that cannot be directly merged to
	DefaultProtectedBranches = []string{"main", "master", "develop", "release"}
)

// Validate checks if config values are valid.
func (c *Config) Validate() error {
	if c.Team.Visibility != "" && !contains(ValidVisibilities, c.Team.Visibility) {
		return fmt.Errorf("invalid team.visibility: %s (must be one of: %v)",
			c.Team.Visibility, ValidVisibilities)
	}
	if c.Team.Mode != "" && !contains(ValidModes, c.Team.Mode) {
		return fmt.Errorf("invalid team.mode: %s (must be one of: %v)",
			c.Team.Mode, ValidModes)
	}

	// Validate completion action
	if c.Completion.Action != "" && !contains(ValidCompletionActions, c.Completion.Action) {
		return fmt.Errorf("invalid completion.action: %s (must be one of: pr, merge, none)",
			c.Completion.Action)
	}

	// Validate sync strategy
	if !contains(ValidSyncStrategies, string(c.Completion.Sync.Strategy)) {
		return fmt.Errorf("invalid completion.sync.strategy: %s (must be one of: none, phase, completion, detect)",
			c.Completion.Sync.Strategy)
	}

	// SAFETY: Block "merge" action when target is a protected branch
	// This prevents accidental direct merges to main/master/develop/release
	if c.Completion.Action == "merge" {
		targetBranch := c.Completion.TargetBranch
		if targetBranch == "" {
			targetBranch = "main" // default
		}
		if isProtectedBranch(targetBranch) {
			return fmt.Errorf("completion.action 'merge' is blocked for protected branch '%s'; "+
				"use 'pr' action instead to ensure code review before merging to protected branches",
				targetBranch)
		}
	}

	// Validate weight-specific actions don't allow merge to protected branches
	for weight, action := range c.Completion.WeightActions {
		if action == "merge" {
			targetBranch := c.Completion.TargetBranch
			if targetBranch == "" {
				targetBranch = "main"
			}
			if isProtectedBranch(targetBranch) {
				return fmt.Errorf("completion.weight_actions[%s]='merge' is blocked for protected branch '%s'; "+
					"use 'pr' action instead", weight, targetBranch)
			}
		}
	}

	// SAFETY: Worktree isolation should not be disabled
	// This is a critical safety feature that prevents parallel tasks from interfering
	if !c.Worktree.Enabled {
		return fmt.Errorf("worktree.enabled cannot be set to false; " +
			"worktree isolation is required for safe parallel task execution and branch protection; " +
			"if you need to run without worktrees, contact maintainers to discuss your use case")
	}

	// Validate storage configuration
	if err := c.validateStorage(); err != nil {
		return err
	}

	// Validate finalize configuration
	if err := c.validateFinalize(); err != nil {
		return err
	}

	return nil
}

// validateFinalize validates the finalize configuration.
func (c *Config) validateFinalize() error {
	finalize := c.Completion.Finalize

	// Validate finalize sync strategy
	if !contains(ValidFinalizeSyncStrategies, string(finalize.Sync.Strategy)) {
		return fmt.Errorf("invalid completion.finalize.sync.strategy: %s (must be one of: rebase, merge)",
			finalize.Sync.Strategy)
	}

	// Validate risk assessment threshold
	if finalize.RiskAssessment.ReReviewThreshold != "" &&
		!contains(ValidRiskLevels, strings.ToLower(finalize.RiskAssessment.ReReviewThreshold)) {
		return fmt.Errorf("invalid completion.finalize.risk_assessment.re_review_threshold: %s (must be one of: low, medium, high, critical)",
			finalize.RiskAssessment.ReReviewThreshold)
	}

	// Validate pre-merge gate type
	if finalize.Gates.PreMerge != "" && !contains(ValidGateTypes, finalize.Gates.PreMerge) {
		return fmt.Errorf("invalid completion.finalize.gates.pre_merge: %s (must be one of: auto, ai, human, none)",
			finalize.Gates.PreMerge)
	}

	return nil
}

// isProtectedBranch checks if a branch is in the protected list.
func isProtectedBranch(branch string) bool {
	for _, p := range DefaultProtectedBranches {
		if branch == p {
			return true
		}
	}
	return false
}

// contains checks if a string is in a slice.
func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// ValidStorageModes are the allowed values for storage.mode
var ValidStorageModes = []string{string(StorageModeHybrid), string(StorageModeFiles), string(StorageModeDatabase)}

// ValidExportPresets are the allowed values for storage.export.preset
var ValidExportPresets = []string{string(ExportPresetMinimal), string(ExportPresetStandard), string(ExportPresetFull), ""}

// ResolveExportConfig returns the effective export configuration,
// applying preset overrides if a preset is specified.
func (c *StorageConfig) ResolveExportConfig() ExportConfig {
	if c.Export.Preset == "" {
		return c.Export
	}

	result := c.Export
	switch c.Export.Preset {
	case ExportPresetMinimal:
		result.TaskDefinition = true
		result.FinalState = false
		result.Transcripts = false
		result.ContextSummary = false
	case ExportPresetStandard:
		result.TaskDefinition = true
		result.FinalState = true
		result.Transcripts = false
		result.ContextSummary = true
	case ExportPresetFull:
		result.TaskDefinition = true
		result.FinalState = true
		result.Transcripts = true
		result.ContextSummary = true
	}
	return result
}

// ShouldExport returns true if any export is enabled and the master toggle is on.
func (c *StorageConfig) ShouldExport() bool {
	if !c.Export.Enabled {
		return false
	}
	resolved := c.ResolveExportConfig()
	return resolved.TaskDefinition || resolved.FinalState ||
		resolved.Transcripts || resolved.ContextSummary
}

// validateStorage validates the storage configuration.
func (c *Config) validateStorage() error {
	if c.Storage.Mode != "" && !contains(ValidStorageModes, string(c.Storage.Mode)) {
		return fmt.Errorf("invalid storage.mode: %s (must be one of: %v)",
			c.Storage.Mode, ValidStorageModes)
	}

	if c.Storage.Export.Preset != "" && !contains(ValidExportPresets, string(c.Storage.Export.Preset)) {
		return fmt.Errorf("invalid storage.export.preset: %s (must be one of: %v)",
			c.Storage.Export.Preset, ValidExportPresets)
	}

	// Validate retention days - must be between 0 and 3650 (10 years)
	if c.Storage.Database.RetentionDays < 0 || c.Storage.Database.RetentionDays > 3650 {
		return fmt.Errorf("storage.database.retention_days must be between 0 and 3650")
	}

	return nil
}
