package store

import (
	"encoding/json"
	"time"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// WorkflowRow is the persisted representation of a loaded workflow
// definition. Read-only after load; reconfiguration requires a reload.
type WorkflowRow struct {
	Code       string                    `json:"code"`
	Name       string                    `json:"name,omitempty"`
	Desc       string                    `json:"desc,omitempty"`
	Definition schema.WorkflowDefinition `json:"definition"`
	LoadedAt   time.Time                 `json:"loaded_at"`
}

// TaskRecord is one concrete execution attempt of a workflow instance.
type TaskRecord struct {
	ID            int64            `json:"id"`
	WorkID        string           `json:"work_id"` // correlation tag, not unique
	PlanID        string           `json:"plan_id,omitempty"`
	WorkflowCode  string           `json:"workflow_code"`
	WID           string           `json:"wid"` // current workflow node
	State         schema.TaskState `json:"state"`
	Input         json.RawMessage  `json:"input,omitempty"`
	Output        json.RawMessage  `json:"output,omitempty"`
	Error         json.RawMessage  `json:"error,omitempty"`
	SuspendReason string           `json:"suspend_reason,omitempty"`
	Attempt       int              `json:"attempt"` // invocations of the current node
	History       []string         `json:"history,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// ToolLogEntry is an immutable entry in the append-only tool invocation log.
// Reversal flags an entry; it never deletes it.
type ToolLogEntry struct {
	ID         int64           `json:"id"`
	WorkID     string          `json:"work_id"`
	PlanID     string          `json:"plan_id,omitempty"`
	TaskID     int64           `json:"task_id,omitempty"`
	NodeID     string          `json:"node_id,omitempty"`
	Tool       string          `json:"tool"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Ordinal    int64           `json:"ordinal"` // monotonic, contiguous per work_id
	Reversed   bool            `json:"reversed"`
	ReversalOf int64           `json:"reversal_of,omitempty"` // ordinal this entry compensates
	Timestamp  time.Time       `json:"timestamp"`
}

// PlanEntry is one node of the supervising agent's plan tree.
type PlanEntry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Position  int       `json:"position"` // declared sub-plan order among siblings
	State     string    `json:"state,omitempty"` // "", success, failure
	OnTop     string    `json:"on_top,omitempty"` // child sub-plan currently on top
	CreatedAt time.Time `json:"created_at"`
}

// Schedule is a cron-triggered task spawn. The scheduler creates new tasks
// only; it never resumes pending ones.
type Schedule struct {
	ID            string          `json:"id"`
	WorkflowCode  string          `json:"workflow_code"`
	CronExpr      string          `json:"cron_expr"`
	Input         json.RawMessage `json:"input,omitempty"`
	PlanID        string          `json:"plan_id,omitempty"`
	Enabled       bool            `json:"enabled"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus string          `json:"last_run_status,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// --- Filter and update types ---

// TaskUpdate specifies mutable fields of a task. TransitionTask is the sole
// task mutator; every field left nil is untouched.
type TaskUpdate struct {
	// ExpectState makes the update a compare-and-swap: it applies only
	// while the row still holds this state. A row that moved under a
	// concurrent writer fails with CONFLICT instead of being clobbered.
	ExpectState *schema.TaskState `json:"-"`

	State         *schema.TaskState `json:"state,omitempty"`
	WID           *string           `json:"wid,omitempty"`
	Output        json.RawMessage   `json:"output,omitempty"`
	ClearOutput   bool              `json:"clear_output,omitempty"` // resume-retry discards prior output
	Error         json.RawMessage   `json:"error,omitempty"`
	SuspendReason *string           `json:"suspend_reason,omitempty"`
	Attempt       *int              `json:"attempt,omitempty"`
	AppendHistory []string          `json:"append_history,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	WorkID string            `json:"work_id,omitempty"`
	PlanID string            `json:"plan_id,omitempty"`
	State  *schema.TaskState `json:"state,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

// PlanUpdate specifies mutable fields of a plan entry.
type PlanUpdate struct {
	State    *string `json:"state,omitempty"`
	OnTop    *string `json:"on_top,omitempty"`
	Position *int    `json:"position,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a schedule.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}
