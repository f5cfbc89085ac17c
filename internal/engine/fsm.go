package engine

import (
	"context"

	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// ValidTaskTransitions defines the allowed task state transitions.
// The set is exhaustive: terminal states map to empty slices and any
// transition not listed here is rejected.
var ValidTaskTransitions = map[schema.TaskState][]schema.TaskState{
	schema.TaskStateCreated: {schema.TaskStateRunning},
	schema.TaskStateRunning: {
		schema.TaskStatePending,
		schema.TaskStateCompleted,
		schema.TaskStateStopped,
		schema.TaskStateCancelled,
	},
	schema.TaskStatePending:   {schema.TaskStateRunning},
	schema.TaskStateCompleted: {},
	schema.TaskStateStopped:   {},
	schema.TaskStateCancelled: {},
}

// ValidateTransition checks a task state transition against the table.
// Transitions out of a terminal state fail with TERMINAL_STATE_VIOLATION;
// any other off-table transition fails with INVALID_STATE.
func ValidateTransition(from, to schema.TaskState) error {
	if from.Terminal() {
		return schema.NewErrorf(schema.ErrCodeTerminalState,
			"task in terminal state %s accepts no transition (attempted %s)", from, to)
	}
	for _, allowed := range ValidTaskTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidState,
		"invalid task transition: %s -> %s", from, to)
}

// TaskFSM validates and persists task state transitions. All state changes
// flow through it, which is what keeps at-most-one-active-writer per record.
type TaskFSM struct {
	store store.Store
}

// NewTaskFSM creates a TaskFSM persisting through the given store.
func NewTaskFSM(s store.Store) *TaskFSM {
	return &TaskFSM{store: s}
}

// Transition validates from -> to, merges the target state into the update
// and persists it. The caller's in-memory record is refreshed on success.
// The write is guarded on the observed from-state, so a record moved by a
// concurrent writer (another process sharing the store) fails with CONFLICT
// instead of jumping an off-table edge.
func (f *TaskFSM) Transition(ctx context.Context, task *store.TaskRecord, to schema.TaskState, update store.TaskUpdate) error {
	if err := ValidateTransition(task.State, to); err != nil {
		return err
	}
	from := task.State
	update.ExpectState = &from
	update.State = &to
	if err := f.store.TransitionTask(ctx, task.ID, update); err != nil {
		return err
	}
	task.State = to
	if update.WID != nil {
		task.WID = *update.WID
	}
	return nil
}
