// Package memory reads and writes per-project reusable knowledge extracted
// from completed tasks, organized into four buckets: conventions,
// architecture, patterns, issues.
//
// Grounded on original_source/platform/app/worker/memory.py and
// memory_extractor.py. The teacher and the original both keep this state in
// files (the teacher has no precedent for a project-knowledge store at all);
// here it rides the existing Store-backed memory_entries table
// (task.MemoryEntry, Store.AppendMemories/LoadMemories) instead of a second
// on-disk format, consistent with everything else in this module being
// Store-backed.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/orc/internal/llmclient"
	"github.com/randalmurphal/orc/internal/task"
)

// roleAccess maps an agent role to the buckets visible to it when building
// the memory text injected into that role's prompt.
var roleAccess = map[string][]task.MemoryBucket{
	"orchestrator": {task.BucketConventions, task.BucketArchitecture, task.BucketPatterns, task.BucketIssues},
	"spec":         {task.BucketConventions, task.BucketArchitecture},
	"coding":       {task.BucketConventions, task.BucketPatterns, task.BucketIssues},
	"test":         {task.BucketPatterns, task.BucketIssues},
	"review":       {task.BucketConventions, task.BucketArchitecture, task.BucketIssues},
	"smoke":        {task.BucketArchitecture, task.BucketIssues},
	"doc":          {task.BucketConventions, task.BucketArchitecture},
}

// perCategoryLimit caps how many of the most recent entries per bucket are
// rendered into a role's prompt text (memory.py's entries[-10:]).
const perCategoryLimit = 10

// maxEntriesPerBucket is the retention cap enforced on write
// (settings.MEMORY_MAX_ENTRIES_PER_CATEGORY in the original).
const maxEntriesPerBucket = 200

// Store is the subset of *store.Store the memory service depends on.
type Store interface {
	AppendMemories(ctx context.Context, entries []*task.MemoryEntry) error
	LoadMemories(ctx context.Context, projectID string, bucket task.MemoryBucket) ([]*task.MemoryEntry, error)
	TrimMemories(ctx context.Context, projectID string, bucket task.MemoryBucket, keep int) error
}

// StageOutput is one completed stage's raw text, the unit extract_and_store_memories
// operates over.
type StageOutput struct {
	Stage  string
	Output string
}

// Service reads project memory for prompt injection and extracts new memory
// entries from a finished task's stage outputs.
type Service struct {
	store   Store
	client  llmclient.Client
	enabled bool
	logger  *slog.Logger
}

// New constructs a Service. client may be nil, in which case extraction is a
// no-op regardless of enabled (mirrors the original's "falls back to no-op
// when LLM is unavailable").
func New(store Store, client llmclient.Client, enabled bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, client: client, enabled: enabled, logger: logger}
}

// GetMemoryForRole returns formatted memory text for a role, or "" if the
// role has no bucket access or no buckets have entries yet.
func (s *Service) GetMemoryForRole(ctx context.Context, projectID, role string) (string, error) {
	buckets := roleAccess[role]
	if len(buckets) == 0 {
		return "", nil
	}

	var parts []string
	for _, bucket := range buckets {
		entries, err := s.store.LoadMemories(ctx, projectID, bucket)
		if err != nil {
			return "", fmt.Errorf("load memories for bucket %s: %w", bucket, err)
		}
		if len(entries) == 0 {
			continue
		}
		if len(entries) > perCategoryLimit {
			entries = entries[:perCategoryLimit]
		}
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = "- " + e.Content
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", bucket, strings.Join(lines, "\n")))
	}

	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n"), nil
}

type extractedEntry struct {
	Category   string   `json:"category"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// ExtractAndStore analyzes all of a completed task's stage outputs and
// writes any reusable knowledge it finds into the project's memory buckets.
// A nil client, a disabled service, or an LLM failure all result in a quiet
// no-op: memory extraction never fails the task it runs after.
func (s *Service) ExtractAndStore(ctx context.Context, projectID, taskID, taskTitle string, stageOutputs []StageOutput) {
	if !s.enabled || s.client == nil {
		return
	}

	combined := buildCombinedText(stageOutputs, 8000)
	if strings.TrimSpace(combined) == "" {
		return
	}

	raw, err := s.llmExtract(ctx, taskTitle, combined)
	if err != nil {
		s.logger.Warn("llm memory extraction failed, skipping", "task_id", taskID, "error", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	byBucket := map[task.MemoryBucket][]*task.MemoryEntry{}
	for _, item := range raw {
		bucket := task.MemoryBucket(strings.TrimSpace(item.Category))
		content := strings.TrimSpace(item.Content)
		if !isValidBucket(bucket) || content == "" {
			continue
		}
		confidence := item.Confidence
		if confidence == 0 {
			confidence = 1.0
		}
		byBucket[bucket] = append(byBucket[bucket], &task.MemoryEntry{
			ProjectID:    projectID,
			Bucket:       bucket,
			Content:      content,
			SourceTaskID: taskID,
			SourceTitle:  taskTitle,
			Confidence:   confidence,
			Tags:         item.Tags,
		})
	}

	total := 0
	for bucket, entries := range byBucket {
		if err := s.store.AppendMemories(ctx, entries); err != nil {
			s.logger.Warn("failed to persist memory entries", "task_id", taskID, "error", err)
			continue
		}
		total += len(entries)
		if err := s.store.TrimMemories(ctx, projectID, bucket, maxEntriesPerBucket); err != nil {
			s.logger.Warn("failed to trim memory bucket", "bucket", bucket, "error", err)
		}
	}
	s.logger.Info("extracted memory entries", "task_id", taskID, "count", total, "buckets", len(byBucket))
}

func isValidBucket(b task.MemoryBucket) bool {
	switch b {
	case task.BucketConventions, task.BucketArchitecture, task.BucketPatterns, task.BucketIssues:
		return true
	default:
		return false
	}
}

func buildCombinedText(stageOutputs []StageOutput, maxChars int) string {
	var parts []string
	budget := maxChars
	for _, so := range stageOutputs {
		chunk := fmt.Sprintf("## %s\n%s", so.Stage, so.Output)
		if len(chunk) > budget {
			chunk = chunk[:max(budget, 0)] + "\n..."
		}
		parts = append(parts, chunk)
		budget -= len(chunk)
		if budget <= 0 {
			break
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *Service) llmExtract(ctx context.Context, taskTitle, combined string) ([]extractedEntry, error) {
	prompt := fmt.Sprintf(
		"你是一个知识提取助手。以下是任务「%s」的各阶段产出。\n\n---\n%s\n---\n\n"+
			"请从中提取可复用的知识条目（最多10条），按以下四个类别分类：\n"+
			"- conventions: 编码规范、命名模式、代码风格约定\n"+
			"- architecture: 设计决策、技术选型、架构模式\n"+
			"- patterns: 可复用的实现方案、代码模式\n"+
			"- issues: 已知问题、常见错误及修复方法\n\n"+
			"请严格按以下 JSON 数组格式回复（不要添加 markdown 代码块标记）：\n"+
			`[{"category": "conventions", "content": "一句话描述", "tags": ["tag1"], "confidence": 0.9}, ...]`,
		taskTitle, combined,
	)

	resp, err := s.client.Complete(ctx, llmclient.CompletionRequest{
		Messages:    []llmclient.Message{{Role: llmclient.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, err
	}

	var entries []extractedEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &entries); err != nil {
		return nil, fmt.Errorf("parse llm memory extraction response: %w", err)
	}
	if len(entries) > 10 {
		entries = entries[:10]
	}
	return entries, nil
}
