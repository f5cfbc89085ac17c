package graph

import (
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// Graph is the in-memory, read-only representation of a workflow's node
// graph. Built once from a WorkflowDefinition and shared by reference
// across executions; concurrent readers need no synchronization.
type Graph struct {
	code  string
	entry string
	nodes map[string]*schema.NodeDefinition
}

// Outcome carries the result of a node's check evaluation into successor
// resolution.
type Outcome struct {
	Passed       bool
	Discriminant string // branch selector extracted from the check result
	Iteration    int    // invocation attempts at the current loop node, current included
}

// New builds a Graph from a definition. The definition must already have
// passed the validation pipeline; New re-checks the structural invariants it
// depends on and fails with VALIDATION_ERROR otherwise.
func New(def *schema.WorkflowDefinition) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	if len(def.Nodes) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %s has no nodes", def.Code)
	}

	g := &Graph{
		code:  def.Code,
		entry: def.Entry,
		nodes: make(map[string]*schema.NodeDefinition, len(def.Nodes)),
	}

	for i := range def.Nodes {
		n := def.Nodes[i] // defaults go into the graph's copy, never the definition
		if n.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		if n.Action == "" {
			n.Action = schema.ActionCall
		}
		if n.Type == "" {
			n.Type = schema.EdgeForward
		}
		if n.Action == schema.ActionLoop && n.MaxIter <= 0 {
			n.MaxIter = schema.DefaultMaxIter
		}
		g.nodes[n.ID] = &n
	}

	if _, ok := g.nodes[g.entry]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"entry node %q not defined in workflow %s", g.entry, def.Code)
	}

	// Referential integrity: every pid, successor, target and branch edge
	// must land on a defined node.
	for id, n := range g.nodes {
		for _, ref := range []string{n.PID, n.Next, n.Target} {
			if ref != "" {
				if _, ok := g.nodes[ref]; !ok {
					return nil, schema.NewErrorf(schema.ErrCodeValidation,
						"node %s references undefined node %q", id, ref).WithNode(id)
				}
			}
		}
		for disc, target := range n.Branch {
			if _, ok := g.nodes[target]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"node %s branch %q references undefined node %q", id, disc, target).WithNode(id)
			}
		}
		if n.Action == schema.ActionGoto && n.Target == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"goto node %s declares no target", id).WithNode(id)
		}
		if n.Action == schema.ActionBranch && len(n.Branch) == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"branch node %s declares no successors", id).WithNode(id)
		}
	}

	return g, nil
}

// Code returns the workflow code this graph was built from.
func (g *Graph) Code() string { return g.code }

// Entry returns the entry node ID.
func (g *Graph) Entry() string { return g.entry }

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Resolve returns the node definition for the given ID.
func (g *Graph) Resolve(id string) (*schema.NodeDefinition, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"node %q not found in workflow %s", id, g.code)
	}
	return n, nil
}

// Next computes the successor of a node given its check outcome. An empty
// successor with nil error means the run is complete.
//
// LOOP_BOUND_EXCEEDED and UNMATCHED_BRANCH indicate definitional problems
// and are never retried by callers.
func (g *Graph) Next(id string, outcome Outcome) (string, error) {
	n, err := g.Resolve(id)
	if err != nil {
		return "", err
	}

	switch n.Action {
	case schema.ActionCall:
		return n.Next, nil

	case schema.ActionGoto:
		return n.Target, nil

	case schema.ActionLoop:
		if outcome.Passed {
			return n.Next, nil
		}
		if outcome.Iteration < n.MaxIter {
			target := n.Target
			if target == "" {
				target = n.ID
			}
			return target, nil
		}
		return "", schema.NewErrorf(schema.ErrCodeLoopBound,
			"loop bound %d exhausted after %d attempts", n.MaxIter, outcome.Iteration).WithNode(id)

	case schema.ActionBranch:
		if target, ok := n.Branch[outcome.Discriminant]; ok {
			return target, nil
		}
		return "", schema.NewErrorf(schema.ErrCodeUnmatchedBranch,
			"no branch matches discriminant %q", outcome.Discriminant).WithNode(id)

	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation,
			"unknown node action %q", n.Action).WithNode(id)
	}
}
