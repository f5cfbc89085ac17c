package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/benbenlabs/taskloom/internal/agent"
	"github.com/benbenlabs/taskloom/internal/check"
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

// triageDefinition exercises every successor kind: a plain call, a branch
// on a discriminant, and a bounded loop that ends the run on success.
func triageDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Code:  "ticket-triage",
		Name:  "Ticket triage",
		Entry: "classify",
		Nodes: []schema.NodeDefinition{
			{ID: "classify", Code: "triage.classify", Next: "route"},
			{
				ID: "route", Code: "triage.route", Action: schema.ActionBranch,
				Check:  &schema.CheckSpec{Engine: "expr", Expression: "output.kind"},
				Branch: map[string]string{"bug": "repro", "feature": "specify"},
			},
			{ID: "repro", Code: "triage.repro", Next: "verify"},
			{ID: "specify", Code: "triage.spec", Next: "verify"},
			{
				ID: "verify", Code: "triage.verify", Action: schema.ActionLoop,
				Check:   &schema.CheckSpec{Engine: "expr", Expression: "output.done"},
				MaxIter: 3,
			},
		},
	}
}

// scripted is an Invoker whose responses are computed per node and call
// count, with counters for asserting how often each node was invoked.
type scripted struct {
	mu    sync.Mutex
	fn    func(node *schema.NodeDefinition, call int) (json.RawMessage, error)
	calls map[string]int
}

func newScripted(fn func(node *schema.NodeDefinition, call int) (json.RawMessage, error)) *scripted {
	return &scripted{fn: fn, calls: make(map[string]int)}
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Invoke(_ context.Context, node *schema.NodeDefinition, _ json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls[node.ID]++
	n := s.calls[node.ID]
	s.mu.Unlock()
	return s.fn(node, n)
}

func (s *scripted) callCount(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[nodeID]
}

func newTestEngine(t *testing.T, s *store.LibSQLStore, def *schema.WorkflowDefinition, inv *scripted) *Engine {
	t.Helper()
	g, err := graph.New(def)
	require.NoError(t, err)

	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(inv))
	require.NoError(t, reg.SetFallback(inv.Name()))

	checks, err := check.NewEvaluator()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s, map[string]*graph.Graph{def.Code: g}, reg, checks, Config{MaxAgentRetries: 3}, logger)
}

func seedTriageTask(t *testing.T, s *store.LibSQLStore, def *schema.WorkflowDefinition) *store.TaskRecord {
	t.Helper()
	require.NoError(t, s.PutWorkflow(context.Background(), &store.WorkflowRow{
		Code:       def.Code,
		Name:       def.Name,
		Definition: *def,
	}))
	task := &store.TaskRecord{
		WorkID:       uuid.New().String(),
		PlanID:       "plan-1",
		WorkflowCode: def.Code,
		WID:          def.Entry,
		State:        schema.TaskStateCreated,
		Input:        json.RawMessage(`{"ticket": "crash on save"}`),
	}
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func seedTask(t *testing.T, s *store.LibSQLStore, planID string) *store.TaskRecord {
	t.Helper()
	def := triageDefinition()
	task := seedTriageTask(t, s, def)
	task.PlanID = planID
	return task
}

func loomCode(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload.Code
}
