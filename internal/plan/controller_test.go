package plan

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbenlabs/taskloom/internal/agent"
	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	path := "file:" + filepath.Join(t.TempDir(), "taskloom_test.db")
	s, err := store.NewLibSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeRunner records what the plan layer asked for without executing.
type fakeRunner struct {
	graphs    map[string]*graph.Graph
	started   []int64
	cancelled []int64
}

func newFakeRunner(t *testing.T) *fakeRunner {
	t.Helper()
	g, err := graph.New(&schema.WorkflowDefinition{
		Code:  "intake",
		Entry: "receive",
		Nodes: []schema.NodeDefinition{
			{ID: "receive", Code: "intake.receive", Next: "file"},
			{ID: "file", Code: "intake.file"},
		},
	})
	require.NoError(t, err)
	return &fakeRunner{graphs: map[string]*graph.Graph{"intake": g}}
}

func (r *fakeRunner) Start(_ context.Context, taskID int64) error {
	r.started = append(r.started, taskID)
	return nil
}

func (r *fakeRunner) Cancel(_ context.Context, taskID int64, _ string) error {
	r.cancelled = append(r.cancelled, taskID)
	return nil
}

func (r *fakeRunner) Graph(code string) (*graph.Graph, error) {
	g, ok := r.graphs[code]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not loaded", code)
	}
	return g, nil
}

// undoTool compensates by acknowledging; stubbornTool cannot compensate;
// brokenTool has a compensator that always fails.
type undoTool struct{ compensated []int64 }

func (u *undoTool) Name() string { return "undo" }
func (u *undoTool) Invoke(_ context.Context, _ *schema.NodeDefinition, in json.RawMessage) (json.RawMessage, error) {
	return in, nil
}
func (u *undoTool) Compensate(_ context.Context, _ agent.CompensationRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"undone": true}`), nil
}

type stubbornTool struct{}

func (stubbornTool) Name() string { return "stubborn" }
func (stubbornTool) Invoke(_ context.Context, _ *schema.NodeDefinition, in json.RawMessage) (json.RawMessage, error) {
	return in, nil
}

type brokenTool struct{}

func (brokenTool) Name() string { return "broken" }
func (brokenTool) Invoke(_ context.Context, _ *schema.NodeDefinition, in json.RawMessage) (json.RawMessage, error) {
	return in, nil
}
func (brokenTool) Compensate(_ context.Context, _ agent.CompensationRequest) (json.RawMessage, error) {
	return nil, errors.New("downstream already deleted")
}

func newTestController(t *testing.T, s *store.LibSQLStore) (*Controller, *fakeRunner) {
	t.Helper()
	runner := newFakeRunner(t)
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(&undoTool{}))
	require.NoError(t, reg.Register(stubbornTool{}))
	require.NoError(t, reg.Register(brokenTool{}))
	return NewController(s, runner, reg, nil), runner
}

func seedWorkflowRow(t *testing.T, s *store.LibSQLStore) {
	t.Helper()
	require.NoError(t, s.PutWorkflow(context.Background(), &store.WorkflowRow{
		Code: "intake",
		Definition: schema.WorkflowDefinition{
			Code:  "intake",
			Entry: "receive",
			Nodes: []schema.NodeDefinition{
				{ID: "receive", Code: "intake.receive", Next: "file"},
				{ID: "file", Code: "intake.file"},
			},
		},
	}))
}

func appendEntry(t *testing.T, s *store.LibSQLStore, workID, tool string) int64 {
	t.Helper()
	ordinal, err := s.AppendToolLog(context.Background(), &store.ToolLogEntry{
		WorkID:   workID,
		Tool:     tool,
		Request:  json.RawMessage(`{"op": "create"}`),
		Response: json.RawMessage(`{"id": 7}`),
	})
	require.NoError(t, err)
	return ordinal
}

func TestController_InsertSubplanShiftsSiblings(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)

	root, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)

	a, err := c.InsertSubplan(context.Background(), "a", root.ID, 0)
	require.NoError(t, err)
	_, err = c.InsertSubplan(context.Background(), "b", root.ID, 1)
	require.NoError(t, err)
	_, err = c.InsertSubplan(context.Background(), "c", root.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Position)

	siblings, err := s.ListSubplans(context.Background(), root.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 3)
	assert.Equal(t, []string{"c", "a", "b"},
		[]string{siblings[0].ID, siblings[1].ID, siblings[2].ID})
	assert.Equal(t, []int{0, 1, 2},
		[]int{siblings[0].Position, siblings[1].Position, siblings[2].Position})
}

func TestController_InsertSubplanMissingParent(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)

	_, err := c.InsertSubplan(context.Background(), "x", "nowhere", 0)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeNotFound, lerr.Code)
}

func TestController_SpawnTaskAtEntryNode(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	seedWorkflowRow(t, s)
	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)

	task, err := c.SpawnTask(context.Background(), "root", "intake", "", json.RawMessage(`{"doc": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "receive", task.WID)
	assert.Equal(t, schema.TaskStateCreated, task.State)
	_, err = uuid.Parse(task.WorkID)
	assert.NoError(t, err)
}

func TestController_SelectNextRespectsPlanOrder(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	seedWorkflowRow(t, s)

	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)
	_, err = c.InsertSubplan(context.Background(), "first", "root", 0)
	require.NoError(t, err)
	_, err = c.InsertSubplan(context.Background(), "second", "root", 1)
	require.NoError(t, err)

	inSecond, err := c.SpawnTask(context.Background(), "second", "intake", "", nil)
	require.NoError(t, err)
	inFirst, err := c.SpawnTask(context.Background(), "first", "intake", "", nil)
	require.NoError(t, err)

	// Declared sub-plan order wins over creation order across plans.
	next, err := c.SelectNext(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, inFirst.ID, next.ID)

	// The on-top child jumps the queue.
	require.NoError(t, c.SetOnTop(context.Background(), "root", "second"))
	next, err = c.SelectNext(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, inSecond.ID, next.ID)
}

func TestController_SelectNextPrefersOwnTasksThenNil(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	seedWorkflowRow(t, s)

	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)

	next, err := c.SelectNext(context.Background(), "root")
	require.NoError(t, err)
	assert.Nil(t, next)

	task, err := c.SpawnTask(context.Background(), "root", "intake", "", nil)
	require.NoError(t, err)
	next, err = c.SelectNext(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, task.ID, next.ID)
}

func TestController_RunNextStartsCreatedTask(t *testing.T) {
	s := newTestStore(t)
	c, runner := newTestController(t, s)
	seedWorkflowRow(t, s)
	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)
	task, err := c.SpawnTask(context.Background(), "root", "intake", "", nil)
	require.NoError(t, err)

	got, err := c.RunNext(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int64{task.ID}, runner.started)
}

func TestController_RunNextLeavesPendingUntouched(t *testing.T) {
	s := newTestStore(t)
	c, runner := newTestController(t, s)
	seedWorkflowRow(t, s)
	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)
	task, err := c.SpawnTask(context.Background(), "root", "intake", "", nil)
	require.NoError(t, err)

	pending := schema.TaskStatePending
	require.NoError(t, s.TransitionTask(context.Background(), task.ID, store.TaskUpdate{State: &pending}))

	got, err := c.RunNext(context.Background(), "root")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Empty(t, runner.started) // resumption needs an explicit decision
}

func TestController_RecordResult(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	_, err := c.CreatePlan(context.Background(), "root")
	require.NoError(t, err)

	require.NoError(t, c.RecordResult(context.Background(), "root", StateSuccess))
	entry, err := s.GetPlan(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, entry.State)

	err = c.RecordResult(context.Background(), "root", "shrug")
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeValidation, lerr.Code)
}

func TestController_ReverseFullUnwind(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	workID := uuid.New().String()
	for i := 0; i < 3; i++ {
		appendEntry(t, s, workID, "undo")
	}

	report, err := c.Reverse(context.Background(), workID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, report.Reversed)
	assert.Zero(t, report.Boundary)

	history, err := s.ToolLogHistory(context.Background(), workID)
	require.NoError(t, err)
	require.Len(t, history, 6) // originals flagged plus one compensating entry each
	for _, entry := range history[:3] {
		assert.True(t, entry.Reversed)
	}
	assert.Equal(t, int64(3), history[3].ReversalOf) // most recent undone first
	assert.Equal(t, int64(2), history[4].ReversalOf)
	assert.Equal(t, int64(1), history[5].ReversalOf)
}

func TestController_ReverseStopsAtIrreversibleEntry(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	workID := uuid.New().String()
	appendEntry(t, s, workID, "undo")     // 1
	appendEntry(t, s, workID, "stubborn") // 2
	appendEntry(t, s, workID, "undo")     // 3

	report, err := c.Reverse(context.Background(), workID, 1)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeIrreversible, lerr.Code)
	assert.Equal(t, []int64{3}, report.Reversed)
	assert.Equal(t, int64(2), report.Boundary)

	history, err := s.ToolLogHistory(context.Background(), workID)
	require.NoError(t, err)
	assert.True(t, history[2].Reversed)
	assert.False(t, history[1].Reversed)
	assert.False(t, history[0].Reversed) // entries below the boundary stay put
}

func TestController_ReverseReportsFailingCompensator(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	workID := uuid.New().String()
	appendEntry(t, s, workID, "undo")   // 1
	appendEntry(t, s, workID, "broken") // 2

	report, err := c.Reverse(context.Background(), workID, 1)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeExecution, lerr.Code)
	assert.Equal(t, int64(2), report.Boundary)
	assert.Empty(t, report.Reversed)
}

func TestController_ReverseSkipsAlreadyReversed(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestController(t, s)
	workID := uuid.New().String()
	appendEntry(t, s, workID, "undo") // 1
	appendEntry(t, s, workID, "undo") // 2
	require.NoError(t, s.ReverseToolLog(context.Background(), workID, 2))

	report, err := c.Reverse(context.Background(), workID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, report.Reversed)
}
