package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoomError_Format(t *testing.T) {
	err := NewError(ErrCodeNotFound, "task 42 not found")
	assert.Equal(t, "[NOT_FOUND] task 42 not found", err.Error())

	err = NewErrorf(ErrCodeUnmatchedBranch, "no branch for %q", "maybe").WithNode("n3")
	assert.Equal(t, `[UNMATCHED_BRANCH] node n3: no branch for "maybe"`, err.Error())
}

func TestLoomError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "commit step").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestLoomError_Classification(t *testing.T) {
	assert.True(t, NewError(ErrCodeAgentFailure, "").IsRetryable())
	assert.True(t, NewError(ErrCodeStore, "").IsRetryable())
	assert.False(t, NewError(ErrCodeLoopBound, "").IsRetryable())
	assert.False(t, NewError(ErrCodeInvalidState, "").IsRetryable())

	assert.True(t, NewError(ErrCodeLoopBound, "").Fatal())
	assert.True(t, NewError(ErrCodeUnmatchedBranch, "").Fatal())
	assert.False(t, NewError(ErrCodeAgentFailure, "").Fatal())
}

func TestTaskState_Terminal(t *testing.T) {
	for _, s := range []TaskState{TaskStateCompleted, TaskStateStopped, TaskStateCancelled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []TaskState{TaskStateCreated, TaskStateRunning, TaskStatePending} {
		assert.False(t, s.Terminal(), string(s))
	}
}
