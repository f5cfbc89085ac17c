package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to schema.TaskState
		wantCode string
	}{
		{"created to running", schema.TaskStateCreated, schema.TaskStateRunning, ""},
		{"running to pending", schema.TaskStateRunning, schema.TaskStatePending, ""},
		{"running to completed", schema.TaskStateRunning, schema.TaskStateCompleted, ""},
		{"running to stopped", schema.TaskStateRunning, schema.TaskStateStopped, ""},
		{"running to cancelled", schema.TaskStateRunning, schema.TaskStateCancelled, ""},
		{"pending to running", schema.TaskStatePending, schema.TaskStateRunning, ""},
		{"created to completed", schema.TaskStateCreated, schema.TaskStateCompleted, schema.ErrCodeInvalidState},
		{"created to pending", schema.TaskStateCreated, schema.TaskStatePending, schema.ErrCodeInvalidState},
		{"pending to completed", schema.TaskStatePending, schema.TaskStateCompleted, schema.ErrCodeInvalidState},
		{"completed to running", schema.TaskStateCompleted, schema.TaskStateRunning, schema.ErrCodeTerminalState},
		{"stopped to running", schema.TaskStateStopped, schema.TaskStateRunning, schema.ErrCodeTerminalState},
		{"cancelled to pending", schema.TaskStateCancelled, schema.TaskStatePending, schema.ErrCodeTerminalState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var lerr *schema.LoomError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tt.wantCode, lerr.Code)
		})
	}
}

func TestTaskFSM_TransitionRefreshesRecord(t *testing.T) {
	s := newTestStore(t)
	task := seedTask(t, s, "plan-1")

	fsm := NewTaskFSM(s)
	require.NoError(t, fsm.Transition(context.Background(), task, schema.TaskStateRunning, store.TaskUpdate{}))
	assert.Equal(t, schema.TaskStateRunning, task.State)

	stored, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateRunning, stored.State)
}

func TestTaskFSM_RejectsWithoutPersisting(t *testing.T) {
	s := newTestStore(t)
	task := seedTask(t, s, "plan-1")

	fsm := NewTaskFSM(s)
	err := fsm.Transition(context.Background(), task, schema.TaskStateCompleted, store.TaskUpdate{})
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeInvalidState, lerr.Code)

	stored, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateCreated, stored.State)
}
