package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// schemaRevisions lists the DDL scripts in application order. Applied
// revisions are recorded in schema_version; a fresh database replays all
// of them, an existing one only what is missing.
var schemaRevisions = []struct {
	rev  int
	name string
	ddl  string
}{
	{1, "initial_schema", initialSchema},
}

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate brings the database schema up to the latest revision. Each
// revision is applied in its own transaction and recorded in
// schema_version, so a failed revision leaves the prior one intact.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create schema_version: %s", err.Error()).WithCause(err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "read schema_version: %s", err.Error()).WithCause(err)
	}

	for _, r := range schemaRevisions {
		if r.rev <= current {
			continue
		}
		if err := s.applyRevision(ctx, r.rev, r.name, r.ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *LibSQLStore) applyRevision(ctx context.Context, rev int, name, ddl string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin revision %d: %s", rev, err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(ddl) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore,
				"revision %d (%s): %s", rev, name, err.Error()).WithCause(err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name) VALUES (?, ?)`, rev, name); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record revision %d: %s", rev, err.Error()).WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit revision %d: %s", rev, err.Error()).WithCause(err)
	}
	return nil
}

// sqlStatements strips comment lines from a DDL script and splits the rest
// on semicolons.
func sqlStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var stmts []string
	for _, raw := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(raw); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

func (s *LibSQLStore) PutWorkflow(ctx context.Context, wf *WorkflowRow) error {
	def, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (code, name, description, definition, loaded_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET name=excluded.name, description=excluded.description,
		 definition=excluded.definition, loaded_at=excluded.loaded_at`,
		wf.Code, nullStr(wf.Name), nullStr(wf.Desc), string(def), timeOrNow(wf.LoadedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, code string) (*WorkflowRow, error) {
	wf := &WorkflowRow{}
	var name, desc sql.NullString
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT code, name, description, definition, loaded_at FROM workflows WHERE code = ?`, code,
	).Scan(&wf.Code, &name, &desc, &defJSON, &wf.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", code)
	}
	if err != nil {
		return nil, err
	}
	wf.Name = name.String
	wf.Desc = desc.String
	if err := json.Unmarshal([]byte(defJSON), &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context) ([]*WorkflowRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, description, definition, loaded_at FROM workflows ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*WorkflowRow
	for rows.Next() {
		wf := &WorkflowRow{}
		var name, desc sql.NullString
		var defJSON string
		if err := rows.Scan(&wf.Code, &name, &desc, &defJSON, &wf.LoadedAt); err != nil {
			return nil, err
		}
		wf.Name = name.String
		wf.Desc = desc.String
		if err := json.Unmarshal([]byte(defJSON), &wf.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition for %s: %w", wf.Code, err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// --- Tasks ---

const taskColumns = `id, work_id, plan_id, workflow_code, wid, state, input, output, error,
	suspend_reason, attempt, history, created_at, updated_at, started_at, completed_at`

func (s *LibSQLStore) CreateTask(ctx context.Context, task *TaskRecord) error {
	history, err := marshalHistory(task.History)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (work_id, plan_id, workflow_code, wid, state, input, output, error,
		 suspend_reason, attempt, history, created_at, updated_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.WorkID, nullStr(task.PlanID), task.WorkflowCode, task.WID, string(task.State),
		nullRaw(task.Input), nullRaw(task.Output), nullRaw(task.Error),
		nullStr(task.SuspendReason), task.Attempt, history,
		task.CreatedAt, task.UpdatedAt, nullTime(task.StartedAt), nullTime(task.CompletedAt),
	)
	if err != nil {
		return err
	}
	task.ID, err = res.LastInsertId()
	return err
}

func (s *LibSQLStore) GetTask(ctx context.Context, id int64) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks WHERE id = ?`, taskColumns), id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("task", fmt.Sprintf("%d", id))
	}
	return task, err
}

func (s *LibSQLStore) TransitionTask(ctx context.Context, id int64, update TaskUpdate) error {
	return s.transitionTaskTx(ctx, s.db, id, update)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *LibSQLStore) transitionTaskTx(ctx context.Context, db execer, id int64, update TaskUpdate) error {
	var sets []string
	var args []any

	if update.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(*update.State))
	}
	if update.WID != nil {
		sets = append(sets, "wid = ?")
		args = append(args, *update.WID)
	}
	if update.ClearOutput {
		sets = append(sets, "output = NULL")
	} else if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.SuspendReason != nil {
		sets = append(sets, "suspend_reason = ?")
		args = append(args, nullStr(*update.SuspendReason))
	}
	if update.Attempt != nil {
		sets = append(sets, "attempt = ?")
		args = append(args, *update.Attempt)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(update.AppendHistory) > 0 {
		var history []string
		var historyJSON sql.NullString
		if err := db.QueryRowContext(ctx, `SELECT history FROM tasks WHERE id = ?`, id).Scan(&historyJSON); err != nil {
			if err == sql.ErrNoRows {
				return storeNotFound("task", fmt.Sprintf("%d", id))
			}
			return err
		}
		if historyJSON.Valid && historyJSON.String != "" {
			if err := json.Unmarshal([]byte(historyJSON.String), &history); err != nil {
				return fmt.Errorf("unmarshal history: %w", err)
			}
		}
		history = append(history, update.AppendHistory...)
		merged, err := marshalHistory(history)
		if err != nil {
			return err
		}
		sets = append(sets, "history = ?")
		args = append(args, merged)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	where := "id = ?"
	args = append(args, id)
	if update.ExpectState != nil {
		where += " AND state = ?"
		args = append(args, string(*update.ExpectState))
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE %s", strings.Join(sets, ", "), where)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if update.ExpectState == nil {
			return storeNotFound("task", fmt.Sprintf("%d", id))
		}
		// Zero rows under a state guard: missing row or a row that moved.
		var state string
		err := db.QueryRowContext(ctx, `SELECT state FROM tasks WHERE id = ?`, id).Scan(&state)
		if err == sql.ErrNoRows {
			return storeNotFound("task", fmt.Sprintf("%d", id))
		}
		if err != nil {
			return err
		}
		return schema.NewErrorf(schema.ErrCodeConflict,
			"task %d is %s, expected %s", id, state, *update.ExpectState)
	}
	return nil
}

func (s *LibSQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*TaskRecord, error) {
	var where []string
	var args []any

	if filter.WorkID != "" {
		where = append(where, "work_id = ?")
		args = append(args, filter.WorkID)
	}
	if filter.PlanID != "" {
		where = append(where, "plan_id = ?")
		args = append(args, filter.PlanID)
	}
	if filter.State != nil {
		where = append(where, "state = ?")
		args = append(args, string(*filter.State))
	}

	query := fmt.Sprintf(`SELECT %s FROM tasks`, taskColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *LibSQLStore) ListPendingTasks(ctx context.Context, planID string) ([]*TaskRecord, error) {
	pending := schema.TaskStatePending
	return s.ListTasks(ctx, TaskFilter{PlanID: planID, State: &pending})
}

// CommitStep persists a node transition and its tool log entry atomically.
// The entry's ordinal is assigned inside the same transaction so the
// per-workid sequence stays contiguous.
func (s *LibSQLStore) CommitStep(ctx context.Context, id int64, update TaskUpdate, entry *ToolLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit step: %w", err)
	}
	defer tx.Rollback()

	if entry != nil {
		if err := appendToolLogTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := s.transitionTaskTx(ctx, tx, id, update); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskRecord, error) {
	task := &TaskRecord{}
	var (
		planID, suspendReason, historyJSON sql.NullString
		input, output, taskErr             sql.NullString
		state                              string
		startedAt, completedAt             sql.NullTime
	)
	err := row.Scan(&task.ID, &task.WorkID, &planID, &task.WorkflowCode, &task.WID, &state,
		&input, &output, &taskErr, &suspendReason, &task.Attempt, &historyJSON,
		&task.CreatedAt, &task.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	task.PlanID = planID.String
	task.State = schema.TaskState(state)
	task.Input = rawOrNil(input)
	task.Output = rawOrNil(output)
	task.Error = rawOrNil(taskErr)
	task.SuspendReason = suspendReason.String
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &task.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return task, nil
}

// --- Plans ---

func (s *LibSQLStore) CreatePlan(ctx context.Context, plan *PlanEntry) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (id, parent_id, position, state, on_top, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		plan.ID, nullStr(plan.ParentID), plan.Position, nullStr(plan.State), nullStr(plan.OnTop), plan.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetPlan(ctx context.Context, id string) (*PlanEntry, error) {
	plan := &PlanEntry{}
	var parentID, state, onTop sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, position, state, on_top, created_at FROM plans WHERE id = ?`, id,
	).Scan(&plan.ID, &parentID, &plan.Position, &state, &onTop, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("plan", id)
	}
	if err != nil {
		return nil, err
	}
	plan.ParentID = parentID.String
	plan.State = state.String
	plan.OnTop = onTop.String
	return plan, nil
}

func (s *LibSQLStore) UpdatePlan(ctx context.Context, id string, update PlanUpdate) error {
	var sets []string
	var args []any

	if update.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, nullStr(*update.State))
	}
	if update.OnTop != nil {
		sets = append(sets, "on_top = ?")
		args = append(args, nullStr(*update.OnTop))
	}
	if update.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *update.Position)
	}
	if update.ParentID != nil {
		sets = append(sets, "parent_id = ?")
		args = append(args, nullStr(*update.ParentID))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE plans SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "plan", id)
}

func (s *LibSQLStore) ListSubplans(ctx context.Context, parentID string) ([]*PlanEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, position, state, on_top, created_at FROM plans
		 WHERE parent_id = ? ORDER BY position, created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*PlanEntry
	for rows.Next() {
		plan := &PlanEntry{}
		var pID, state, onTop sql.NullString
		if err := rows.Scan(&plan.ID, &pID, &plan.Position, &state, &onTop, &plan.CreatedAt); err != nil {
			return nil, err
		}
		plan.ParentID = pID.String
		plan.State = state.String
		plan.OnTop = onTop.String
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// --- Schedules ---

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, workflow_code, cron_expr, input, plan_id, enabled,
		 last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.WorkflowCode, sched.CronExpr, nullRaw(sched.Input), nullStr(sched.PlanID),
		boolToInt(sched.Enabled), nullTime(sched.LastRunAt), nullTime(sched.NextRunAt),
		nullStr(sched.LastRunStatus), sched.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	sched := &Schedule{}
	var input, planID, lastStatus sql.NullString
	var enabled int
	var lastRun, nextRun sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_code, cron_expr, input, plan_id, enabled, last_run_at, next_run_at,
		 last_run_status, created_at FROM schedules WHERE id = ?`, id,
	).Scan(&sched.ID, &sched.WorkflowCode, &sched.CronExpr, &input, &planID, &enabled,
		&lastRun, &nextRun, &lastStatus, &sched.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("schedule", id)
	}
	if err != nil {
		return nil, err
	}
	sched.Input = rawOrNil(input)
	sched.PlanID = planID.String
	sched.Enabled = enabled != 0
	sched.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		sched.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		sched.NextRunAt = &nextRun.Time
	}
	return sched, nil
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE schedules SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, enabledOnly bool) ([]*Schedule, error) {
	query := `SELECT id, workflow_code, cron_expr, input, plan_id, enabled, last_run_at, next_run_at,
		 last_run_status, created_at FROM schedules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheds []*Schedule
	for rows.Next() {
		sched := &Schedule{}
		var input, planID, lastStatus sql.NullString
		var enabled int
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&sched.ID, &sched.WorkflowCode, &sched.CronExpr, &input, &planID,
			&enabled, &lastRun, &nextRun, &lastStatus, &sched.CreatedAt); err != nil {
			return nil, err
		}
		sched.Input = rawOrNil(input)
		sched.PlanID = planID.String
		sched.Enabled = enabled != 0
		sched.LastRunStatus = lastStatus.String
		if lastRun.Valid {
			sched.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			sched.NextRunAt = &nextRun.Time
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

// --- helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %s not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalHistory(history []string) (any, error) {
	if len(history) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

var _ Store = (*LibSQLStore)(nil)
