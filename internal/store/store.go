package store

import "context"

// Store defines the persistence layer contract. Each record is
// independently keyed, so a future scheduler can run distinct tasks
// concurrently without cross-record locking.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows (read-only after load)
	PutWorkflow(ctx context.Context, wf *WorkflowRow) error
	GetWorkflow(ctx context.Context, code string) (*WorkflowRow, error)
	ListWorkflows(ctx context.Context) ([]*WorkflowRow, error)

	// Tasks
	CreateTask(ctx context.Context, task *TaskRecord) error
	GetTask(ctx context.Context, id int64) (*TaskRecord, error)
	TransitionTask(ctx context.Context, id int64, update TaskUpdate) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]*TaskRecord, error)
	ListPendingTasks(ctx context.Context, planID string) ([]*TaskRecord, error)

	// CommitStep persists a node transition and its tool log entry in one
	// transaction. On failure the prior row stays intact; no partial node
	// transition is observable.
	CommitStep(ctx context.Context, id int64, update TaskUpdate, entry *ToolLogEntry) error

	// Tool log (append-only)
	AppendToolLog(ctx context.Context, entry *ToolLogEntry) (int64, error)
	ToolLogHistory(ctx context.Context, workID string) ([]*ToolLogEntry, error)
	ReverseToolLog(ctx context.Context, workID string, ordinal int64) error

	// Plans
	CreatePlan(ctx context.Context, plan *PlanEntry) error
	GetPlan(ctx context.Context, id string) (*PlanEntry, error)
	UpdatePlan(ctx context.Context, id string, update PlanUpdate) error
	ListSubplans(ctx context.Context, parentID string) ([]*PlanEntry, error)

	// Schedules
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, enabledOnly bool) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
