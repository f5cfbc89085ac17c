package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbenlabs/taskloom/internal/agent"
	"github.com/benbenlabs/taskloom/internal/check"
	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/logging"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// DefaultMaxAgentRetries bounds agent invocation attempts per node.
const DefaultMaxAgentRetries = 3

// Config holds execution engine configuration.
type Config struct {
	MaxAgentRetries int                 // invocation attempts per node (default 3)
	DefaultRetry    *schema.RetryPolicy // backoff applied when a node declares none
}

// Engine drives one task at a time through its workflow graph: resolve the
// current node, invoke the bound agent, record the tool log entry, evaluate
// the node's check and persist the transition. One logical execution thread
// per task; the running map only tracks detachment handles.
type Engine struct {
	store  store.Store
	graphs map[string]*graph.Graph
	agents *agent.Registry
	checks *check.Evaluator
	fsm    *TaskFSM
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

// StepResult summarizes one committed step.
type StepResult struct {
	WID       string          `json:"wid"` // node the task now stands at
	Completed bool            `json:"completed"`
	Output    json.RawMessage `json:"output,omitempty"`
	Ordinal   int64           `json:"ordinal"` // tool log ordinal of the invocation
}

// New creates an Engine over the given store, loaded graphs and agent registry.
func New(s store.Store, graphs map[string]*graph.Graph, agents *agent.Registry, checks *check.Evaluator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxAgentRetries <= 0 {
		cfg.MaxAgentRetries = DefaultMaxAgentRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		graphs:  graphs,
		agents:  agents,
		checks:  checks,
		fsm:     NewTaskFSM(s),
		cfg:     cfg,
		logger:  logger,
		running: make(map[int64]context.CancelFunc),
	}
}

// FSM exposes the task state machine for collaborators in the plan layer.
func (e *Engine) FSM() *TaskFSM { return e.fsm }

// Graph returns the loaded graph for a workflow code.
func (e *Engine) Graph(code string) (*graph.Graph, error) {
	g, ok := e.graphs[code]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not loaded", code)
	}
	return g, nil
}

// Start transitions a created task to running and drives it until it
// completes, stops, or is detached by suspension or cancellation.
func (e *Engine) Start(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := e.fsm.Transition(ctx, task, schema.TaskStateRunning, store.TaskUpdate{
		StartedAt:     &now,
		AppendHistory: []string{"task started"},
	}); err != nil {
		return err
	}
	return e.run(ctx, taskID)
}

// Cancel terminates a running task on behalf of the plan layer. Explicit
// decision only; there is no timeout path to cancellation.
func (e *Engine) Cancel(ctx context.Context, taskID int64, reason string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := e.fsm.Transition(ctx, task, schema.TaskStateCancelled, store.TaskUpdate{
		AppendHistory: []string{"task cancelled: " + reason},
		CompletedAt:   timePtr(time.Now().UTC()),
	}); err != nil {
		return err
	}
	e.Interrupt(taskID)
	return nil
}

// Interrupt detaches the in-flight run for a task, if any. The persisted
// state decides what the run loop does when it notices.
func (e *Engine) Interrupt(taskID int64) {
	e.mu.Lock()
	cancel, ok := e.running[taskID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// run drives the step loop. The record is reloaded before every step so an
// external suspend or cancel written between steps detaches cleanly.
func (e *Engine) run(ctx context.Context, taskID int64) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running[taskID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, taskID)
		e.mu.Unlock()
	}()

	for {
		if runCtx.Err() != nil {
			return nil // detached
		}
		task, err := e.store.GetTask(runCtx, taskID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if task.State != schema.TaskStateRunning {
			return nil // suspended or cancelled between steps
		}

		stepCtx := logging.WithIDs(runCtx, task.ID, task.WID, task.WorkID)
		res, err := e.Step(stepCtx, task)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if isConflict(err) {
				// The row moved under the step's commit; the reload at
				// the top of the loop decides whether to detach.
				continue
			}
			return e.stopTask(ctx, taskID, err)
		}
		if res.Completed {
			e.logger.InfoContext(stepCtx, "task completed")
			return nil
		}
	}
}

// Step executes exactly one node of a running task and commits the result
// atomically with its tool log entry. On error nothing is persisted: the
// prior wid/state stay observable and the caller decides the consequence.
func (e *Engine) Step(ctx context.Context, task *store.TaskRecord) (*StepResult, error) {
	if task.State != schema.TaskStateRunning {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidState,
			"task %d is %s, not running", task.ID, task.State)
	}

	g, err := e.Graph(task.WorkflowCode)
	if err != nil {
		return nil, err
	}
	node, err := g.Resolve(task.WID)
	if err != nil {
		return nil, err
	}
	inv, err := e.agents.Resolve(node.Code)
	if err != nil {
		return nil, err
	}

	attempt := task.Attempt + 1
	output, err := e.invoke(ctx, inv, node, task)
	if err != nil {
		return nil, err
	}

	entry := &store.ToolLogEntry{
		WorkID:   task.WorkID,
		PlanID:   task.PlanID,
		TaskID:   task.ID,
		NodeID:   node.ID,
		Tool:     inv.Name(),
		Request:  task.Input,
		Response: output,
	}

	result, err := e.checks.Evaluate(ctx, node.Check, check.Environment(
		task.Input, output,
		map[string]any{"id": task.ID, "work_id": task.WorkID, "plan_id": task.PlanID, "attempt": attempt},
		map[string]any{"id": node.ID, "code": node.Code},
	))
	if err != nil {
		return nil, err
	}

	// Failed check on a plain node: retryable re-invokes within the bound,
	// non-retryable is fatal. Loop and branch nodes feed the outcome into
	// successor resolution instead.
	if !result.Passed && node.Check != nil &&
		(node.Action == schema.ActionCall || node.Action == schema.ActionGoto) {
		if node.Check.Retryable && attempt < e.cfg.MaxAgentRetries {
			running := schema.TaskStateRunning
			update := store.TaskUpdate{
				ExpectState:   &running,
				Output:        output,
				Attempt:       &attempt,
				AppendHistory: []string{"check failed at node " + node.ID + ", retrying"},
			}
			if err := e.store.CommitStep(ctx, task.ID, update, entry); err != nil {
				return nil, err
			}
			task.Attempt = attempt
			return &StepResult{WID: node.ID, Output: output, Ordinal: entry.Ordinal}, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"check failed after %d attempts", attempt).WithNode(node.ID)
	}

	next, err := g.Next(node.ID, graph.Outcome{
		Passed:       result.Passed,
		Discriminant: result.Discriminant,
		Iteration:    attempt,
	})
	if err != nil {
		return nil, err // LOOP_BOUND_EXCEEDED / UNMATCHED_BRANCH: fatal, never retried
	}

	// The commit is guarded on the row still being running: a suspend or
	// cancel written by another process between the reload and this point
	// must win over the in-flight step.
	running := schema.TaskStateRunning
	update := store.TaskUpdate{ExpectState: &running, Output: output}
	res := &StepResult{Output: output}
	switch {
	case next == "":
		completed := schema.TaskStateCompleted
		if err := ValidateTransition(task.State, completed); err != nil {
			return nil, err
		}
		update.State = &completed
		update.CompletedAt = timePtr(time.Now().UTC())
		update.AppendHistory = []string{"node " + node.ID + " completed the run"}
		res.Completed = true
		res.WID = node.ID
	case next == node.ID:
		// Loop re-entry keeps counting attempts at this node.
		update.Attempt = &attempt
		update.AppendHistory = []string{"node " + node.ID + " repeating"}
		res.WID = node.ID
	default:
		zero := 0
		update.WID = &next
		update.Attempt = &zero
		update.AppendHistory = []string{"node " + node.ID + " -> " + next}
		res.WID = next
	}

	if err := e.store.CommitStep(ctx, task.ID, update, entry); err != nil {
		return nil, err
	}
	res.Ordinal = entry.Ordinal

	task.WID = res.WID
	task.Output = output
	if update.Attempt != nil {
		task.Attempt = *update.Attempt
	}
	if res.Completed {
		task.State = schema.TaskStateCompleted
	}
	e.logger.DebugContext(ctx, "step committed", slog.String("next", res.WID), slog.Int64("ordinal", res.Ordinal))
	return res, nil
}

// invoke calls the bound agent, retrying transient failures up to the
// configured bound with backoff. Exhaustion surfaces as AGENT_INVOCATION_FAILURE.
func (e *Engine) invoke(ctx context.Context, inv agent.Invoker, node *schema.NodeDefinition, task *store.TaskRecord) (json.RawMessage, error) {
	policy := node.Retry
	if policy == nil {
		policy = e.cfg.DefaultRetry
	}

	var lastErr error
	for i := 0; i < e.cfg.MaxAgentRetries; i++ {
		output, err := inv.Invoke(ctx, node, task.Input)
		if err == nil {
			return output, nil
		}
		lastErr = err
		if !IsRetryableInvocationError(err) {
			break
		}
		e.logger.WarnContext(ctx, "agent invocation failed",
			slog.String("agent", inv.Name()), slog.Int("attempt", i+1), slog.String("error", err.Error()))
		if err := WaitForBackoff(ctx, ComputeBackoff(policy, i)); err != nil {
			return nil, err
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeAgentFailure,
		"agent %s failed: %s", inv.Name(), lastErr.Error()).
		WithNode(node.ID).
		WithCause(lastErr).
		WithDetails(map[string]any{"attempts": e.cfg.MaxAgentRetries})
}

// stopTask persists the stopped state with the step's error payload. The
// wid is left untouched: the failed step committed nothing.
func (e *Engine) stopTask(ctx context.Context, taskID int64, stepErr error) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.State != schema.TaskStateRunning {
		return stepErr // already moved externally; nothing to persist
	}
	if err := e.fsm.Transition(ctx, task, schema.TaskStateStopped, store.TaskUpdate{
		Error:         errorPayload(stepErr),
		CompletedAt:   timePtr(time.Now().UTC()),
		AppendHistory: []string{"task stopped: " + stepErr.Error()},
	}); err != nil {
		if isConflict(err) {
			return stepErr // moved externally while stopping; that write wins
		}
		return err
	}
	e.logger.ErrorContext(ctx, "task stopped",
		slog.Int64("task_id", task.ID), slog.String("error", stepErr.Error()))
	return stepErr
}

func isConflict(err error) bool {
	var lerr *schema.LoomError
	return errors.As(err, &lerr) && lerr.Code == schema.ErrCodeConflict
}

func errorPayload(err error) json.RawMessage {
	var lerr *schema.LoomError
	if errors.As(err, &lerr) {
		if data, mErr := json.Marshal(lerr); mErr == nil {
			return data
		}
	}
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	return data
}

func timePtr(t time.Time) *time.Time { return &t }
