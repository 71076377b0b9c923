package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/orc/internal/orcerr"
	"github.com/randalmurphal/orc/internal/task"
)

// Store is the durable backing for tasks, stages, gates, the event log,
// memory buckets and circuit breaker records. Grounded on
// internal/storage's DatabaseBackend (transactional SaveTask/claim pattern)
// wired through the Driver abstraction instead of a SQLite-only *db.DB.
type Store struct {
	driver Driver
}

// Open opens (and migrates) a Store for the given dialect and DSN.
// For SQLite, dsn is a file path (or ":memory:"); for Postgres it's a
// standard connection string.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	d, err := New(dialect)
	if err != nil {
		return nil, err
	}
	if err := d.Open(dsn); err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx, defaultSchemaFS, "global"); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{driver: d}, nil
}

func (s *Store) Close() error { return s.driver.Close() }

// exec/query/queryRow rebind "?" placeholders to the driver's dialect
// (a no-op for SQLite) so every method above can be written once against
// SQLite syntax and still run against Postgres.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(ctx, rebind(s.driver, query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.driver.Query(ctx, rebind(s.driver, query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.driver.QueryRow(ctx, rebind(s.driver, query), args...)
}

func rebind(d Driver, query string) string {
	if d.Dialect() == DialectSQLite {
		return query
	}
	var out []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, d.Placeholder(n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// CreateTask inserts a new pending task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	routing, err := json.Marshal(t.RoutingDecisions)
	if err != nil {
		return fmt.Errorf("marshal routing decisions: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO tasks (id, correlation_id, title, description, status, project_id,
			template_id, template_ver, total_tokens, total_cost, plan, routing_decisions,
			branch_name, pr_url, fail_reason, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CorrelationID, t.Title, t.Description, t.Status, t.ProjectID,
		t.TemplateID, t.TemplateVer, t.TotalTokens, t.TotalCost, rawOrNil(t.Plan), string(routing),
		t.BranchName, t.PRURL, t.FailReason, t.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ClaimOldestPending atomically claims the oldest pending task for the
// given owner (e.g. "hostname:pid"), transitioning it to claimed. Returns
// orcerr with CodeTaskNotFound if no pending task exists, grounded on the
// claim-one-winner shape of internal/storage's TryClaimTaskExecution.
func (s *Store) ClaimOldestPending(ctx context.Context, owner string) (*task.Task, error) {
	tx, err := s.driver.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRow(ctx, rebind(s.driver, `
		SELECT id FROM tasks WHERE status = ? ORDER BY created_at ASC LIMIT 1`),
		task.StatusPending)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orcerr.NotFound(orcerr.CodeTaskNotFound, "no pending task available")
		}
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.Exec(ctx, rebind(s.driver, `
		UPDATE tasks SET status = ?, claimed_at = ?, claim_owner = ?
		WHERE id = ? AND status = ?`),
		task.StatusClaimed, now.Format(time.RFC3339Nano), owner, id, task.StatusPending)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Another claimant won the race between SELECT and UPDATE.
		return nil, orcerr.NotFound(orcerr.CodeTaskNotFound, "no pending task available")
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// RecoverStale reclaims tasks whose claim is older than staleAfter,
// resetting them to pending so another owner can pick them up.
func (s *Store) RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter).UTC().Format(time.RFC3339Nano)
	res, err := s.exec(ctx, `
		UPDATE tasks SET status = ?, claim_owner = ''
		WHERE status IN (?, ?) AND claimed_at < ?`,
		task.StatusPending, task.StatusClaimed, task.StatusRunning, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateTaskStatus performs a compare-and-swap status transition, failing
// with CodeClaimLost if the task is no longer in fromStatus.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, fromStatus, toStatus task.Status) error {
	var completedAt any
	if toStatus == task.StatusCompleted || toStatus == task.StatusFailed || toStatus == task.StatusCancelled {
		completedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	res, err := s.exec(ctx, `
		UPDATE tasks SET status = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?`,
		toStatus, completedAt, id, fromStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return orcerr.ClaimLost(id)
	}
	return nil
}

// SaveTaskProgress persists a task's running token/cost totals together
// with its plan, routing decision trail, branch, PR URL and fail reason.
func (s *Store) SaveTaskProgress(ctx context.Context, t *task.Task) error {
	routing, err := json.Marshal(t.RoutingDecisions)
	if err != nil {
		return fmt.Errorf("marshal routing decisions: %w", err)
	}
	_, err = s.exec(ctx, `
		UPDATE tasks SET total_tokens = ?, total_cost = ?, plan = ?, routing_decisions = ?,
			branch_name = ?, pr_url = ?, fail_reason = ?
		WHERE id = ?`,
		t.TotalTokens, t.TotalCost, rawOrNil(t.Plan), string(routing),
		t.BranchName, t.PRURL, t.FailReason, t.ID)
	return err
}

// GetTask loads a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.queryRow(ctx, `
		SELECT id, correlation_id, title, description, status, project_id, template_id,
			template_ver, total_tokens, total_cost, plan, routing_decisions, branch_name,
			pr_url, fail_reason, created_at, claimed_at, completed_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (*task.Task, error) {
	var t task.Task
	var plan sql.NullString
	var routing string
	var createdAt string
	var claimedAt, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.CorrelationID, &t.Title, &t.Description, &t.Status, &t.ProjectID,
		&t.TemplateID, &t.TemplateVer, &t.TotalTokens, &t.TotalCost, &plan, &routing,
		&t.BranchName, &t.PRURL, &t.FailReason, &createdAt, &claimedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orcerr.NotFound(orcerr.CodeTaskNotFound, "task not found")
		}
		return nil, err
	}
	if plan.Valid {
		t.Plan = json.RawMessage(plan.String)
	}
	_ = json.Unmarshal([]byte(routing), &t.RoutingDecisions)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if claimedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, claimedAt.String)
		t.ClaimedAt = &ts
	}
	if completedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		t.CompletedAt = &ts
	}
	return &t, nil
}

// ListTasks returns tasks in most-recently-created-first order, optionally
// filtered by status and/or project. Either filter may be left zero-valued
// to match any task, mirroring ListPendingGates/ListStages's plain
// query-by-predicate shape rather than a generic filter builder.
func (s *Store) ListTasks(ctx context.Context, status task.Status, projectID string) ([]*task.Task, error) {
	query := `
		SELECT id, correlation_id, title, description, status, project_id, template_id,
			template_ver, total_tokens, total_cost, plan, routing_decisions, branch_name,
			pr_url, fail_reason, created_at, claimed_at, completed_at
		FROM tasks WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Task
	for rows.Next() {
		var t task.Task
		var plan sql.NullString
		var routing string
		var createdAt string
		var claimedAt, completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.CorrelationID, &t.Title, &t.Description, &t.Status, &t.ProjectID,
			&t.TemplateID, &t.TemplateVer, &t.TotalTokens, &t.TotalCost, &plan, &routing,
			&t.BranchName, &t.PRURL, &t.FailReason, &createdAt, &claimedAt, &completedAt); err != nil {
			return nil, err
		}
		if plan.Valid {
			t.Plan = json.RawMessage(plan.String)
		}
		_ = json.Unmarshal([]byte(routing), &t.RoutingDecisions)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if claimedAt.Valid {
			ts, _ := time.Parse(time.RFC3339Nano, claimedAt.String)
			t.ClaimedAt = &ts
		}
		if completedAt.Valid {
			ts, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			t.CompletedAt = &ts
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpsertStage creates or updates a stage row keyed by (task_id, name).
func (s *Store) UpsertStage(ctx context.Context, st *task.Stage) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO stages (id, task_id, name, agent_role, status, seq_order, retry_count, execution_count)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (task_id, name) DO UPDATE SET status = excluded.status`,
		st.ID, st.TaskID, st.Name, st.AgentRole, st.Status, st.Order, st.RetryCount, st.ExecutionCount)
	return err
}

// UpdateStageStatus transitions a stage's status and timing fields.
func (s *Store) UpdateStageStatus(ctx context.Context, taskID, name string, st *task.Stage) error {
	_, err := s.exec(ctx, `
		UPDATE stages SET status = ?, started_at = ?, completed_at = ?, duration_ms = ?,
			tokens = ?, turns = ?, error = ?, failure_category = ?, confidence = ?,
			retry_count = ?, execution_count = ?
		WHERE task_id = ? AND name = ?`,
		st.Status, timePtrStr(st.StartedAt), timePtrStr(st.CompletedAt), st.DurationMs,
		st.Tokens, st.Turns, st.Error, st.FailureCategory, st.Confidence,
		st.RetryCount, st.ExecutionCount, taskID, name)
	return err
}

// SetStageOutput records a stage's raw output text.
func (s *Store) SetStageOutput(ctx context.Context, taskID, name, output string) error {
	_, err := s.exec(ctx, `UPDATE stages SET output = ? WHERE task_id = ? AND name = ?`,
		output, taskID, name)
	return err
}

// SetStageStructured records a stage's extracted structured output.
func (s *Store) SetStageStructured(ctx context.Context, taskID, name string, structured json.RawMessage) error {
	_, err := s.exec(ctx, `UPDATE stages SET output_structured = ? WHERE task_id = ? AND name = ?`,
		rawOrNil(structured), taskID, name)
	return err
}

// ListStages returns every stage recorded for a task, in execution order.
func (s *Store) ListStages(ctx context.Context, taskID string) ([]*task.Stage, error) {
	rows, err := s.query(ctx, `
		SELECT id, task_id, name, agent_role, status, seq_order, started_at, completed_at,
			duration_ms, tokens, turns, output, output_structured, error, failure_category,
			confidence, retry_count, execution_count
		FROM stages WHERE task_id = ? ORDER BY seq_order ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Stage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStage(rows *sql.Rows) (*task.Stage, error) {
	var st task.Stage
	var startedAt, completedAt sql.NullString
	var structured sql.NullString
	err := rows.Scan(&st.ID, &st.TaskID, &st.Name, &st.AgentRole, &st.Status, &st.Order,
		&startedAt, &completedAt, &st.DurationMs, &st.Tokens, &st.Turns, &st.Output,
		&structured, &st.Error, &st.FailureCategory, &st.Confidence, &st.RetryCount, &st.ExecutionCount)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, startedAt.String)
		st.StartedAt = &ts
	}
	if completedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		st.CompletedAt = &ts
	}
	if structured.Valid {
		st.OutputStructured = json.RawMessage(structured.String)
	}
	return &st, nil
}

// CreateGate inserts a new gate row.
func (s *Store) CreateGate(ctx context.Context, g *task.Gate) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO gates (id, task_id, gate_type, stage_name, agent_role, status, max_retries, is_dynamic, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		g.ID, g.TaskID, g.Type, g.StageName, g.AgentRole, g.Status, g.MaxRetries, boolToInt(g.IsDynamic),
		g.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// RefreshGate reloads a gate's current status, used while the engine waits
// on an outstanding human decision.
func (s *Store) RefreshGate(ctx context.Context, id string) (*task.Gate, error) {
	row := s.queryRow(ctx, `
		SELECT id, task_id, gate_type, stage_name, agent_role, status, reviewer, comment, revised,
			retry_count, max_retries, is_dynamic, created_at, reviewed_at
		FROM gates WHERE id = ?`, id)
	return scanGate(row)
}

func scanGate(row *sql.Row) (*task.Gate, error) {
	var g task.Gate
	var isDynamic int
	var createdAt string
	var reviewedAt sql.NullString
	err := row.Scan(&g.ID, &g.TaskID, &g.Type, &g.StageName, &g.AgentRole, &g.Status, &g.Reviewer,
		&g.Comment, &g.Revised, &g.RetryCount, &g.MaxRetries, &isDynamic, &createdAt, &reviewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orcerr.NotFound(orcerr.CodeGateNotFound, "gate not found")
		}
		return nil, err
	}
	g.IsDynamic = isDynamic != 0
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if reviewedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, reviewedAt.String)
		g.ReviewedAt = &ts
	}
	return &g, nil
}

// DecideGate records a human or automated decision on a gate, bumping
// retry_count on a rejection or revision so RetriesRemaining eventually
// runs out instead of retrying forever.
func (s *Store) DecideGate(ctx context.Context, id string, status task.GateStatus, reviewer, comment, revised string) error {
	bumpRetry := status == task.GateStatusRejected || status == task.GateStatusRevised
	_, err := s.exec(ctx, `
		UPDATE gates SET status = ?, reviewer = ?, comment = ?, revised = ?, reviewed_at = ?,
			retry_count = retry_count + CASE WHEN ? THEN 1 ELSE 0 END
		WHERE id = ?`,
		status, reviewer, comment, revised, time.Now().UTC().Format(time.RFC3339Nano), boolToInt(bumpRetry), id)
	return err
}

// ListPendingGates returns every gate awaiting a decision.
func (s *Store) ListPendingGates(ctx context.Context) ([]*task.Gate, error) {
	rows, err := s.query(ctx, `
		SELECT id, task_id, gate_type, stage_name, agent_role, status, reviewer, comment, revised,
			retry_count, max_retries, is_dynamic, created_at, reviewed_at
		FROM gates WHERE status = ? ORDER BY created_at ASC`, task.GateStatusPending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Gate
	for rows.Next() {
		var g task.Gate
		var isDynamic int
		var createdAt string
		var reviewedAt sql.NullString
		if err := rows.Scan(&g.ID, &g.TaskID, &g.Type, &g.StageName, &g.AgentRole, &g.Status, &g.Reviewer,
			&g.Comment, &g.Revised, &g.RetryCount, &g.MaxRetries, &isDynamic, &createdAt, &reviewedAt); err != nil {
			return nil, err
		}
		g.IsDynamic = isDynamic != 0
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if reviewedAt.Valid {
			ts, _ := time.Parse(time.RFC3339Nano, reviewedAt.String)
			g.ReviewedAt = &ts
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// AppendEventLog allocates the next per-task sequence number and inserts
// the event row within the same transaction, so concurrent writers for the
// same task never collide on sequence (mirrors the UNIQUE(task_id,
// sequence) constraint).
func (s *Store) AppendEventLog(ctx context.Context, e *task.EventLog) error {
	tx, err := s.driver.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRow(ctx, rebind(s.driver, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM event_log WHERE task_id = ?`), e.TaskID)
	if err := row.Scan(&e.Sequence); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	argsJSON, err := json.Marshal(e.CommandArgs)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, rebind(s.driver, `
		INSERT INTO event_log (id, task_id, stage_id, correlation_id, sequence, event_type, source,
			status, request_body, response_body, command, command_args, workspace, execution_mode,
			duration_ms, result_text, output_summary, output_truncated, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		e.ID, e.TaskID, e.StageID, e.CorrelationID, e.Sequence, e.EventType, e.Source, e.Status,
		e.RequestBody, e.ResponseBody, e.Command, string(argsJSON), e.Workspace, e.ExecutionMode,
		e.DurationMs, e.ResultText, e.OutputSummary, boolToInt(e.OutputTruncated),
		e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListEventLog returns a task's audit trail in sequence order, the shape
// `orc task log` renders.
func (s *Store) ListEventLog(ctx context.Context, taskID string) ([]*task.EventLog, error) {
	rows, err := s.query(ctx, `
		SELECT id, task_id, stage_id, correlation_id, sequence, event_type, source, status,
			request_body, response_body, command, command_args, workspace, execution_mode,
			duration_ms, result_text, output_summary, output_truncated, created_at
		FROM event_log WHERE task_id = ? ORDER BY sequence ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*task.EventLog
	for rows.Next() {
		var e task.EventLog
		var argsJSON string
		var outputTruncated int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.StageID, &e.CorrelationID, &e.Sequence, &e.EventType,
			&e.Source, &e.Status, &e.RequestBody, &e.ResponseBody, &e.Command, &argsJSON, &e.Workspace,
			&e.ExecutionMode, &e.DurationMs, &e.ResultText, &e.OutputSummary, &outputTruncated, &createdAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(argsJSON), &e.CommandArgs)
		e.OutputTruncated = outputTruncated != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// InsertCircuitBreaker records a new circuit breaker trip.
func (s *Store) InsertCircuitBreaker(ctx context.Context, cb *task.CircuitBreaker) error {
	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}
	if cb.TriggeredAt.IsZero() {
		cb.TriggeredAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO circuit_breakers (id, task_id, level, triggered_by, reason, triggered_at)
		VALUES (?,?,?,?,?,?)`,
		cb.ID, cb.TaskID, cb.Level, cb.TriggeredBy, cb.Reason, cb.TriggeredAt.Format(time.RFC3339Nano))
	return err
}

// GetCircuitBreakerStatus returns the most recent unresolved trip for a
// task, or nil if there is none.
func (s *Store) GetCircuitBreakerStatus(ctx context.Context, taskID string) (*task.CircuitBreaker, error) {
	row := s.queryRow(ctx, `
		SELECT id, task_id, level, triggered_by, reason, triggered_at, resolved_at, resolved_by
		FROM circuit_breakers WHERE task_id = ? AND resolved_at IS NULL
		ORDER BY triggered_at DESC LIMIT 1`, taskID)
	var cb task.CircuitBreaker
	var triggeredAt string
	var resolvedAt sql.NullString
	err := row.Scan(&cb.ID, &cb.TaskID, &cb.Level, &cb.TriggeredBy, &cb.Reason, &triggeredAt,
		&resolvedAt, &cb.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cb.TriggeredAt, _ = time.Parse(time.RFC3339Nano, triggeredAt)
	return &cb, nil
}

// ResolveCircuitBreaker marks a trip resolved (continue or abort decision
// recorded by the caller).
func (s *Store) ResolveCircuitBreaker(ctx context.Context, id, resolvedBy string) error {
	_, err := s.exec(ctx, `
		UPDATE circuit_breakers SET resolved_at = ?, resolved_by = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), resolvedBy, id)
	return err
}

// AppendMemories inserts new memory entries for a project.
func (s *Store) AppendMemories(ctx context.Context, entries []*task.MemoryEntry) error {
	for _, m := range entries {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		tags, err := json.Marshal(m.Tags)
		if err != nil {
			return err
		}
		_, err = s.exec(ctx, `
			INSERT INTO memory_entries (id, project_id, bucket, content, source_task_id,
				source_title, confidence, tags, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			m.ID, m.ProjectID, m.Bucket, m.Content, m.SourceTaskID, m.SourceTitle,
			m.Confidence, string(tags), m.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert memory entry: %w", err)
		}
	}
	return nil
}

// LoadMemories returns every memory entry for a project's bucket, newest
// first.
func (s *Store) LoadMemories(ctx context.Context, projectID string, bucket task.MemoryBucket) ([]*task.MemoryEntry, error) {
	rows, err := s.query(ctx, `
		SELECT id, project_id, bucket, content, source_task_id, source_title, confidence, tags, created_at
		FROM memory_entries WHERE project_id = ? AND bucket = ? ORDER BY created_at DESC`,
		projectID, bucket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*task.MemoryEntry
	for rows.Next() {
		var m task.MemoryEntry
		var tags string
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Bucket, &m.Content, &m.SourceTaskID,
			&m.SourceTitle, &m.Confidence, &tags, &createdAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tags), &m.Tags)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// TrimMemories deletes all but the newest keep rows for a project's bucket,
// enforcing the retention cap on write.
func (s *Store) TrimMemories(ctx context.Context, projectID string, bucket task.MemoryBucket, keep int) error {
	_, err := s.exec(ctx, `
		DELETE FROM memory_entries
		WHERE project_id = ? AND bucket = ? AND id NOT IN (
			SELECT id FROM memory_entries
			WHERE project_id = ? AND bucket = ?
			ORDER BY created_at DESC
			LIMIT ?
		)`,
		projectID, bucket, projectID, bucket, keep)
	return err
}

// CreateTemplate inserts a new template version. Templates are immutable
// once created; a revised template is a new row with the same name and an
// incremented version rather than an UPDATE.
func (s *Store) CreateTemplate(ctx context.Context, t *task.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stages, err := json.Marshal(t.Stages)
	if err != nil {
		return fmt.Errorf("marshal template stages: %w", err)
	}
	gates, err := json.Marshal(t.Gates)
	if err != nil {
		return fmt.Errorf("marshal template gates: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO templates (id, name, version, parent_id, stages, gates, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Version, t.ParentID, string(stages), string(gates),
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// GetTemplate loads a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*task.Template, error) {
	row := s.queryRow(ctx, `
		SELECT id, name, version, parent_id, stages, gates FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// GetTemplateByName loads the highest-version template row for name.
func (s *Store) GetTemplateByName(ctx context.Context, name string) (*task.Template, error) {
	row := s.queryRow(ctx, `
		SELECT id, name, version, parent_id, stages, gates FROM templates
		WHERE name = ? ORDER BY version DESC LIMIT 1`, name)
	return scanTemplate(row)
}

func scanTemplate(row *sql.Row) (*task.Template, error) {
	var t task.Template
	var stages, gates string
	err := row.Scan(&t.ID, &t.Name, &t.Version, &t.ParentID, &stages, &gates)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orcerr.NotFound(orcerr.CodeTemplateNotFound, "template not found")
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(stages), &t.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal template stages: %w", err)
	}
	if err := json.Unmarshal([]byte(gates), &t.Gates); err != nil {
		return nil, fmt.Errorf("unmarshal template gates: %w", err)
	}
	return &t, nil
}

func rawOrNil(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func timePtrStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
