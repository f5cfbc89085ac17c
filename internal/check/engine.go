package check

import "context"

// Engine evaluates a check expression against a task's data.
// Three implementations: Expr (default logic), CEL (guards), GoJQ (JSON
// extraction). All are thread-safe and cache compiled programs.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Environment keys exposed to every engine:
//   - output: the node's agent output, decoded from JSON
//   - input:  the task's original input, decoded from JSON
//   - task:   task metadata (id, work_id, plan_id, attempt)
//   - node:   node metadata (id, code)
const (
	KeyOutput = "output"
	KeyInput  = "input"
	KeyTask   = "task"
	KeyNode   = "node"
)
