package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbenlabs/taskloom/internal/check"
	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/logging"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// SuspendController pauses running tasks for human review and resumes them
// on an explicit decision. Resumption is never time-based; a pending task
// waits indefinitely until Resume or Cancel.
type SuspendController struct {
	store  store.Store
	engine *Engine
	logger *slog.Logger
}

// NewSuspendController creates a controller sharing the engine's store.
func NewSuspendController(e *Engine, logger *slog.Logger) *SuspendController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuspendController{store: e.store, engine: e, logger: logger}
}

// Suspend moves a running task to pending and detaches its run loop. The
// wid is untouched, so the record shows exactly where execution halted.
func (c *SuspendController) Suspend(ctx context.Context, taskID int64, reason string) error {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := c.engine.fsm.Transition(ctx, task, schema.TaskStatePending, store.TaskUpdate{
		SuspendReason: &reason,
		AppendHistory: []string{"task suspended: " + reason},
	}); err != nil {
		return err
	}
	c.engine.Interrupt(taskID)
	c.logger.InfoContext(ctx, "task suspended",
		slog.Int64("task_id", taskID), slog.String("reason", reason))
	return nil
}

// Resume moves a pending task back to running and drives it.
//
// With ResumeNext the reviewer accepts the recorded output of the node the
// task is standing at: its check is evaluated against that output and the
// task advances to the successor without re-invoking the agent. With
// ResumeRetry the recorded output is discarded, the attempt counter is
// reset, and the node runs again from scratch.
func (c *SuspendController) Resume(ctx context.Context, taskID int64, decision schema.ResumeDecision) error {
	if !decision.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown resume decision %q", decision)
	}
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.State != schema.TaskStatePending {
		return schema.NewErrorf(schema.ErrCodeInvalidState,
			"task %d is %s, only pending tasks can be resumed", task.ID, task.State)
	}

	cleared := ""
	update := store.TaskUpdate{
		SuspendReason: &cleared,
		AppendHistory: []string{"task resumed with decision " + string(decision)},
	}
	if decision == schema.ResumeRetry {
		zero := 0
		update.ClearOutput = true
		update.Attempt = &zero
	}
	if err := c.engine.fsm.Transition(ctx, task, schema.TaskStateRunning, update); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "task resumed",
		slog.Int64("task_id", taskID), slog.String("decision", string(decision)))

	if decision == schema.ResumeNext {
		if err := c.advance(ctx, task); err != nil {
			return c.engine.stopTask(ctx, taskID, err)
		}
		if task.State.Terminal() {
			return nil
		}
	}
	return c.engine.run(ctx, taskID)
}

// advance moves a just-resumed task past the node it halted at, reusing
// the output recorded before suspension. No agent runs and no tool log
// entry is written; the invocation already happened.
func (c *SuspendController) advance(ctx context.Context, task *store.TaskRecord) error {
	ctx = logging.WithIDs(ctx, task.ID, task.WID, task.WorkID)

	g, err := c.engine.Graph(task.WorkflowCode)
	if err != nil {
		return err
	}
	node, err := g.Resolve(task.WID)
	if err != nil {
		return err
	}

	result, err := c.engine.checks.Evaluate(ctx, node.Check, check.Environment(
		task.Input, task.Output,
		map[string]any{"id": task.ID, "work_id": task.WorkID, "plan_id": task.PlanID, "attempt": task.Attempt},
		map[string]any{"id": node.ID, "code": node.Code},
	))
	if err != nil {
		return err
	}

	next, err := g.Next(node.ID, graph.Outcome{
		Passed:       result.Passed,
		Discriminant: result.Discriminant,
		Iteration:    task.Attempt,
	})
	if err != nil {
		return err
	}

	switch {
	case next == "":
		return c.engine.fsm.Transition(ctx, task, schema.TaskStateCompleted, store.TaskUpdate{
			CompletedAt:   timePtr(time.Now().UTC()),
			AppendHistory: []string{"node " + node.ID + " accepted, run complete"},
		})
	case next == node.ID:
		// Accepting the output of a repeating loop node re-runs it; the
		// iteration count carries forward.
		return nil
	default:
		zero := 0
		running := schema.TaskStateRunning
		return c.store.TransitionTask(ctx, task.ID, store.TaskUpdate{
			ExpectState:   &running,
			WID:           &next,
			Attempt:       &zero,
			AppendHistory: []string{"node " + node.ID + " accepted -> " + next},
		})
	}
}
