package schema

// WorkflowDefinition is the declarative workflow format loaded at process
// start. It is immutable once loaded; reconfiguration requires a reload.
type WorkflowDefinition struct {
	Code     string           `json:"code"`
	Name     string           `json:"name,omitempty"`
	Desc     string           `json:"desc,omitempty"`
	Entry    string           `json:"entry"`
	Nodes    []NodeDefinition `json:"nodes"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// NodeDefinition describes a single workflow node (one step of the graph).
type NodeDefinition struct {
	ID     string            `json:"id"`
	PID    string            `json:"pid,omitempty"`    // parent node, empty for the root
	Code   string            `json:"code"`             // symbolic step identifier, binds the agent
	Action NodeAction        `json:"action,omitempty"` // default: call
	Desc   string            `json:"desc,omitempty"`
	Check  *CheckSpec        `json:"check,omitempty"`
	Type   EdgeType          `json:"type,omitempty"`     // default: forward
	Next   string            `json:"next,omitempty"`     // single declared successor
	Target string            `json:"target,omitempty"`   // goto target / loop re-entry (default: self)
	Branch map[string]string `json:"branch,omitempty"`   // discriminant value -> node ID
	MaxIter int              `json:"max_iter,omitempty"` // loop bound (default: 3)
	Retry  *RetryPolicy      `json:"retry,omitempty"`
}

// NodeAction is the closed set of node actions. Successor resolution
// switches exhaustively over these values.
type NodeAction string

const (
	ActionCall   NodeAction = "call"
	ActionGoto   NodeAction = "goto"
	ActionLoop   NodeAction = "loop"
	ActionBranch NodeAction = "branch"
)

// EdgeType categorizes a node's edge semantics. The set is closed; new
// values require a design decision, not silent extension.
type EdgeType string

const (
	EdgeForward    EdgeType = "forward"
	EdgeBacktrack  EdgeType = "backtrack"
	EdgeLoopRepeat EdgeType = "loop-repeat"
)

// CheckSpec is a predicate evaluated against a task's output before the
// successor is computed. Engine selects the expression language.
type CheckSpec struct {
	Engine     string `json:"engine,omitempty"` // expr | cel | jq (default: expr)
	Expression string `json:"expression"`
	Retryable  bool   `json:"retryable,omitempty"` // re-invoke on failure instead of stopping
}

// RetryPolicy configures retry behavior for agent invocations at a node.
type RetryPolicy struct {
	Max      int    `json:"max"`                 // max retry attempts
	Backoff  string `json:"backoff,omitempty"`   // none | constant | linear | exponential
	Delay    string `json:"delay,omitempty"`     // initial delay (e.g. "1s", "500ms")
	MaxDelay string `json:"max_delay,omitempty"` // cap for computed delays
}

// DefaultMaxIter is the loop bound applied when a loop node declares none.
const DefaultMaxIter = 3
