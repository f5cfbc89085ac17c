package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

func testDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Code:  "design-review",
		Entry: "analyze",
		Nodes: []schema.NodeDefinition{
			{ID: "analyze", Code: "ddd.analyze", Action: schema.ActionCall, Next: "lookup"},
			{ID: "lookup", Code: "entity.lookup", Action: schema.ActionBranch, Branch: map[string]string{
				"exists":  "finish",
				"missing": "create",
			}},
			{ID: "create", Code: "entity.create", Action: schema.ActionLoop, Next: "finish", MaxIter: 3},
			{ID: "finish", Code: "report.write", Action: schema.ActionCall},
			{ID: "back", Code: "jump.back", Action: schema.ActionGoto, Target: "analyze", Type: schema.EdgeBacktrack},
		},
	}
}

func TestNew_Validates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*schema.WorkflowDefinition)
	}{
		{"nil nodes", func(d *schema.WorkflowDefinition) { d.Nodes = nil }},
		{"duplicate id", func(d *schema.WorkflowDefinition) { d.Nodes = append(d.Nodes, schema.NodeDefinition{ID: "analyze"}) }},
		{"missing entry", func(d *schema.WorkflowDefinition) { d.Entry = "nope" }},
		{"dangling next", func(d *schema.WorkflowDefinition) { d.Nodes[0].Next = "ghost" }},
		{"dangling branch", func(d *schema.WorkflowDefinition) { d.Nodes[1].Branch["exists"] = "ghost" }},
		{"goto without target", func(d *schema.WorkflowDefinition) { d.Nodes[4].Target = "" }},
		{"branch without successors", func(d *schema.WorkflowDefinition) { d.Nodes[1].Branch = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition()
			tt.mutate(def)
			_, err := New(def)
			require.Error(t, err)
			var lerr *schema.LoomError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, schema.ErrCodeValidation, lerr.Code)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Code:  "w",
		Entry: "a",
		Nodes: []schema.NodeDefinition{
			{ID: "a", Code: "c"},
			{ID: "l", Code: "c", Action: schema.ActionLoop},
		},
	}
	g, err := New(def)
	require.NoError(t, err)

	a, err := g.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, schema.ActionCall, a.Action)
	assert.Equal(t, schema.EdgeForward, a.Type)

	l, err := g.Resolve("l")
	require.NoError(t, err)
	assert.Equal(t, schema.DefaultMaxIter, l.MaxIter)
}

func TestNew_DefaultsLeaveDefinitionUntouched(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Code:  "w",
		Entry: "a",
		Nodes: []schema.NodeDefinition{
			{ID: "a", Code: "c"},
			{ID: "l", Code: "c", Action: schema.ActionLoop},
		},
	}
	_, err := New(def)
	require.NoError(t, err)

	// The definition is persisted as loaded; defaulting happens on the
	// graph's own copies only.
	assert.Empty(t, def.Nodes[0].Action)
	assert.Empty(t, def.Nodes[0].Type)
	assert.Zero(t, def.Nodes[1].MaxIter)
}

func TestResolve_NotFound(t *testing.T) {
	g, err := New(testDefinition())
	require.NoError(t, err)

	_, err = g.Resolve("ghost")
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeNotFound, lerr.Code)
}

func TestNext_Call(t *testing.T) {
	g, err := New(testDefinition())
	require.NoError(t, err)

	next, err := g.Next("analyze", Outcome{Passed: true})
	require.NoError(t, err)
	assert.Equal(t, "lookup", next)

	// Node with no declared successor completes the run.
	next, err = g.Next("finish", Outcome{Passed: true})
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestNext_Goto(t *testing.T) {
	g, err := New(testDefinition())
	require.NoError(t, err)

	next, err := g.Next("back", Outcome{})
	require.NoError(t, err)
	assert.Equal(t, "analyze", next)
}

func TestNext_Branch(t *testing.T) {
	g, err := New(testDefinition())
	require.NoError(t, err)

	next, err := g.Next("lookup", Outcome{Discriminant: "missing"})
	require.NoError(t, err)
	assert.Equal(t, "create", next)

	_, err = g.Next("lookup", Outcome{Discriminant: "unknown"})
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeUnmatchedBranch, lerr.Code)
	assert.Equal(t, "lookup", lerr.NodeID)
}

func TestNext_Loop(t *testing.T) {
	g, err := New(testDefinition())
	require.NoError(t, err)

	// Check passed: exit the loop.
	next, err := g.Next("create", Outcome{Passed: true, Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, "finish", next)

	// Check failed within bound: re-enter self.
	next, err = g.Next("create", Outcome{Passed: false, Iteration: 2})
	require.NoError(t, err)
	assert.Equal(t, "create", next)

	// Bound exhausted.
	_, err = g.Next("create", Outcome{Passed: false, Iteration: 3})
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeLoopBound, lerr.Code)
}
