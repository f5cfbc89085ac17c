package agent

import (
	"context"
	"encoding/json"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// Invoker is the single capability all agents expose, regardless of backing
// implementation (local function, remote model, tool-protocol-mediated).
// Which invoker binds to which node code is configuration, not code.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, node *schema.NodeDefinition, input json.RawMessage) (json.RawMessage, error)
}

// Compensator is implemented by invokers whose tool effects can be undone.
// The plan layer calls it during log reversal; an invoker without it makes
// its entries irreversible.
type Compensator interface {
	Compensate(ctx context.Context, req CompensationRequest) (json.RawMessage, error)
}

// CompensationRequest carries the original invocation an undo must reverse.
type CompensationRequest struct {
	Tool     string          `json:"tool"`
	NodeID   string          `json:"node_id,omitempty"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc struct {
	name string
	fn   func(ctx context.Context, node *schema.NodeDefinition, input json.RawMessage) (json.RawMessage, error)
}

// NewInvokerFunc wraps fn as a named Invoker.
func NewInvokerFunc(name string, fn func(ctx context.Context, node *schema.NodeDefinition, input json.RawMessage) (json.RawMessage, error)) *InvokerFunc {
	return &InvokerFunc{name: name, fn: fn}
}

func (f *InvokerFunc) Name() string { return f.name }

func (f *InvokerFunc) Invoke(ctx context.Context, node *schema.NodeDefinition, input json.RawMessage) (json.RawMessage, error) {
	return f.fn(ctx, node, input)
}

// Echo is a trivial invoker that returns its input unchanged. Used as the
// default binding for dry runs and in tests.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Invoke(_ context.Context, _ *schema.NodeDefinition, input json.RawMessage) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return input, nil
}
