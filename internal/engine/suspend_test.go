package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// seedPendingAt puts a task into the pending state standing at the given
// node, as if it had been suspended right after that node's invocation.
func seedPendingAt(t *testing.T, s *store.LibSQLStore, def *schema.WorkflowDefinition, wid string, output json.RawMessage, attempt int) *store.TaskRecord {
	t.Helper()
	task := seedTriageTask(t, s, def)
	pending := schema.TaskStatePending
	reason := "awaiting review"
	require.NoError(t, s.TransitionTask(context.Background(), task.ID, store.TaskUpdate{
		State:         &pending,
		WID:           &wid,
		Output:        output,
		Attempt:       &attempt,
		SuspendReason: &reason,
	}))
	task.State = pending
	task.WID = wid
	return task
}

func TestSuspend_RunningToPending(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	e := newTestEngine(t, s, def, newScripted(happyPath))
	c := NewSuspendController(e, nil)
	task := seedTriageTask(t, s, def)

	running := schema.TaskStateRunning
	require.NoError(t, s.TransitionTask(context.Background(), task.ID, store.TaskUpdate{State: &running}))

	require.NoError(t, c.Suspend(context.Background(), task.ID, "needs human sign-off"))

	stored, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatePending, stored.State)
	assert.Equal(t, "classify", stored.WID) // halt point stays observable
	assert.Equal(t, "needs human sign-off", stored.SuspendReason)
}

func TestSuspend_RejectsNonRunningTask(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	e := newTestEngine(t, s, def, newScripted(happyPath))
	c := NewSuspendController(e, nil)
	task := seedTriageTask(t, s, def)

	err := c.Suspend(context.Background(), task.ID, "too early")
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeInvalidState, lerr.Code)
}

func TestResume_RejectsUnknownDecision(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	e := newTestEngine(t, s, def, newScripted(happyPath))
	c := NewSuspendController(e, nil)

	err := c.Resume(context.Background(), 1, schema.ResumeDecision("later"))
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeValidation, lerr.Code)
}

func TestResume_RejectsNonPendingTask(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	e := newTestEngine(t, s, def, newScripted(happyPath))
	c := NewSuspendController(e, nil)
	task := seedTriageTask(t, s, def)

	err := c.Resume(context.Background(), task.ID, schema.ResumeNext)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeInvalidState, lerr.Code)
}

func TestResume_NextAcceptsOutputWithoutReinvoking(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	inv := newScripted(happyPath)
	e := newTestEngine(t, s, def, inv)
	c := NewSuspendController(e, nil)

	// Suspended at the final loop node with output that satisfies its check:
	// accepting it must finish the run with no further agent calls.
	task := seedPendingAt(t, s, def, "verify", json.RawMessage(`{"done": true}`), 1)

	require.NoError(t, c.Resume(context.Background(), task.ID, schema.ResumeNext))

	assert.Equal(t, 0, inv.callCount("verify"))
	final, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateCompleted, final.State)
	assert.Equal(t, "verify", final.WID)
	assert.Empty(t, final.SuspendReason)
}

func TestResume_NextAdvancesAndKeepsRunning(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	inv := newScripted(happyPath)
	e := newTestEngine(t, s, def, inv)
	c := NewSuspendController(e, nil)

	// Suspended right after the classify invocation. Resuming with next
	// must skip classify and drive the rest of the workflow to the end.
	task := seedPendingAt(t, s, def, "classify", json.RawMessage(`{"ok": true}`), 1)

	require.NoError(t, c.Resume(context.Background(), task.ID, schema.ResumeNext))

	assert.Equal(t, 0, inv.callCount("classify"))
	assert.Equal(t, 1, inv.callCount("route"))
	assert.Equal(t, 1, inv.callCount("repro"))

	final, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateCompleted, final.State)
	assert.Equal(t, "verify", final.WID)
}

func TestResume_NextOnRepeatingLoopReruns(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	inv := newScripted(happyPath)
	e := newTestEngine(t, s, def, inv)
	c := NewSuspendController(e, nil)

	// Accepted output fails the loop check within its bound, so the node
	// simply runs again.
	task := seedPendingAt(t, s, def, "verify", json.RawMessage(`{"done": false}`), 1)

	require.NoError(t, c.Resume(context.Background(), task.ID, schema.ResumeNext))

	assert.Equal(t, 1, inv.callCount("verify"))
	final, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateCompleted, final.State)
}

func TestResume_RetryDiscardsOutputAndReruns(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	inv := newScripted(happyPath)
	e := newTestEngine(t, s, def, inv)
	c := NewSuspendController(e, nil)

	task := seedPendingAt(t, s, def, "verify", json.RawMessage(`{"done": false, "junk": true}`), 2)

	require.NoError(t, c.Resume(context.Background(), task.ID, schema.ResumeRetry))

	// The node ran again from a clean slate and its fresh output won.
	assert.Equal(t, 1, inv.callCount("verify"))
	final, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStateCompleted, final.State)
	assert.JSONEq(t, `{"done": true}`, string(final.Output))
}

func TestResume_NextLoopBoundStillEnforced(t *testing.T) {
	s := newTestStore(t)
	def := triageDefinition()
	inv := newScripted(happyPath)
	e := newTestEngine(t, s, def, inv)
	c := NewSuspendController(e, nil)

	// Suspended after the final allowed iteration with a failing output.
	// Accepting it cannot squeeze in another iteration.
	task := seedPendingAt(t, s, def, "verify", json.RawMessage(`{"done": false}`), 3)

	err := c.Resume(context.Background(), task.ID, schema.ResumeNext)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeLoopBound, lerr.Code)

	final, getErr := s.GetTask(context.Background(), task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, schema.TaskStateStopped, final.State)
	assert.Equal(t, "verify", final.WID)
}
