package check

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benbenlabs/taskloom/pkg/schema"
)

// Result is the interpreted outcome of a check evaluation.
type Result struct {
	Passed       bool
	Discriminant string // string form of the raw result, used by branch nodes
}

// Evaluator dispatches check specs to the configured engines.
type Evaluator struct {
	engines map[string]Engine
	def     string // default engine name
}

// NewEvaluator builds an Evaluator with the expr, cel and jq engines
// registered. expr is the default when a spec names no engine.
func NewEvaluator() (*Evaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}

	ev := &Evaluator{
		engines: map[string]Engine{},
		def:     "expr",
	}
	for _, e := range []Engine{NewExprEngine(), celEngine, NewGoJQEngine()} {
		ev.engines[e.Name()] = e
	}
	return ev, nil
}

// Evaluate runs the check spec against the environment and interprets the
// raw result:
//   - nil spec or empty expression always passes
//   - bool results pass or fail directly
//   - string results become the branch discriminant; empty string fails
//   - any other value passes with its string form as discriminant
func (ev *Evaluator) Evaluate(ctx context.Context, spec *schema.CheckSpec, data map[string]any) (Result, error) {
	if spec == nil || spec.Expression == "" {
		return Result{Passed: true}, nil
	}

	name := spec.Engine
	if name == "" {
		name = ev.def
	}
	engine, ok := ev.engines[name]
	if !ok {
		return Result{}, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown check engine %q", name)
	}

	raw, err := engine.Evaluate(ctx, spec.Expression, data)
	if err != nil {
		return Result{}, err
	}

	switch v := raw.(type) {
	case nil:
		return Result{Passed: false}, nil
	case bool:
		return Result{Passed: v, Discriminant: fmt.Sprintf("%t", v)}, nil
	case string:
		return Result{Passed: v != "", Discriminant: v}, nil
	default:
		return Result{Passed: true, Discriminant: fmt.Sprint(v)}, nil
	}
}

// Environment assembles the evaluation data map from raw task JSON.
// Unparseable payloads are passed through as raw strings rather than
// failing the check, so agents emitting plain text still work.
func Environment(input, output json.RawMessage, task, node map[string]any) map[string]any {
	return map[string]any{
		KeyInput:  decodeJSON(input),
		KeyOutput: decodeJSON(output),
		KeyTask:   task,
		KeyNode:   node,
	}
}

// buildActivation normalizes the data map to exactly the four check
// variables, defaulting absent or nil ones to empty maps so no engine
// dereferences a missing key at runtime.
func buildActivation(data map[string]any) map[string]any {
	activation := make(map[string]any, 4)
	for _, key := range []string{KeyOutput, KeyInput, KeyTask, KeyNode} {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = map[string]any{}
		}
	}
	return activation
}

func decodeJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
