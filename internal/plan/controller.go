package plan

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/benbenlabs/taskloom/internal/agent"
	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// Plan entry result states.
const (
	StateSuccess = "success"
	StateFailure = "failure"
)

// TaskRunner is the slice of the execution engine the plan layer drives.
type TaskRunner interface {
	Start(ctx context.Context, taskID int64) error
	Cancel(ctx context.Context, taskID int64, reason string) error
	Graph(code string) (*graph.Graph, error)
}

// Controller owns the plan tree of the supervising agent: it spawns tasks,
// picks the next one to run, records outcomes on plan entries and unwinds
// tool invocations when a plan is abandoned. It never mutates task state
// directly; all execution flows through the TaskRunner.
type Controller struct {
	store  store.Store
	runner TaskRunner
	agents *agent.Registry
	logger *slog.Logger
}

// NewController creates a plan controller.
func NewController(s store.Store, runner TaskRunner, agents *agent.Registry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: s, runner: runner, agents: agents, logger: logger}
}

// CreatePlan creates a root plan entry. An empty id gets a generated one.
func (c *Controller) CreatePlan(ctx context.Context, id string) (*store.PlanEntry, error) {
	if id == "" {
		id = uuid.New().String()
	}
	entry := &store.PlanEntry{ID: id}
	if err := c.store.CreatePlan(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// InsertSubplan inserts a sub-plan under a parent at the given position
// among its siblings. Siblings at or after the position shift down one
// slot. Task records are untouched.
func (c *Controller) InsertSubplan(ctx context.Context, id, parentID string, position int) (*store.PlanEntry, error) {
	if _, err := c.store.GetPlan(ctx, parentID); err != nil {
		return nil, err
	}
	siblings, err := c.store.ListSubplans(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if position < 0 || position > len(siblings) {
		position = len(siblings)
	}
	for i := len(siblings) - 1; i >= 0; i-- {
		if siblings[i].Position < position {
			break
		}
		shifted := siblings[i].Position + 1
		if err := c.store.UpdatePlan(ctx, siblings[i].ID, store.PlanUpdate{Position: &shifted}); err != nil {
			return nil, err
		}
	}

	if id == "" {
		id = uuid.New().String()
	}
	entry := &store.PlanEntry{ID: id, ParentID: parentID, Position: position}
	if err := c.store.CreatePlan(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SetOnTop marks which child sub-plan the supervising agent is currently
// working; SelectNext visits it before its siblings.
func (c *Controller) SetOnTop(ctx context.Context, planID, childID string) error {
	if childID != "" {
		child, err := c.store.GetPlan(ctx, childID)
		if err != nil {
			return err
		}
		if child.ParentID != planID {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"plan %s is not a child of %s", childID, planID)
		}
	}
	return c.store.UpdatePlan(ctx, planID, store.PlanUpdate{OnTop: &childID})
}

// RecordResult records the outcome of a plan entry once its tasks settled.
func (c *Controller) RecordResult(ctx context.Context, planID, state string) error {
	if state != StateSuccess && state != StateFailure {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown plan result %q", state)
	}
	return c.store.UpdatePlan(ctx, planID, store.PlanUpdate{State: &state})
}

// SpawnTask creates a task record for the plan at the workflow's entry
// node. An empty workID gets a fresh correlation tag; passing an existing
// one ties the new record to a prior run of the same logical work.
func (c *Controller) SpawnTask(ctx context.Context, planID, workflowCode, workID string, input json.RawMessage) (*store.TaskRecord, error) {
	if _, err := c.store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	g, err := c.runner.Graph(workflowCode)
	if err != nil {
		return nil, err
	}
	if workID == "" {
		workID = uuid.New().String()
	}
	task := &store.TaskRecord{
		WorkID:       workID,
		PlanID:       planID,
		WorkflowCode: workflowCode,
		WID:          g.Entry(),
		State:        schema.TaskStateCreated,
		Input:        input,
	}
	if err := c.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "task spawned",
		slog.Int64("task_id", task.ID), slog.String("plan_id", planID),
		slog.String("workflow", workflowCode), slog.String("work_id", workID))
	return task, nil
}

// SelectNext picks the next runnable task for a plan: the sub-plan tree is
// walked depth first in declared position order (the on-top child first),
// and within an entry created and pending tasks compete by creation order.
// Returns nil when nothing is runnable.
func (c *Controller) SelectNext(ctx context.Context, planID string) (*store.TaskRecord, error) {
	if _, err := c.store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return c.selectIn(ctx, planID)
}

func (c *Controller) selectIn(ctx context.Context, planID string) (*store.TaskRecord, error) {
	if task, err := c.nextTaskOf(ctx, planID); err != nil || task != nil {
		return task, err
	}
	entry, err := c.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	children, err := c.store.ListSubplans(ctx, planID)
	if err != nil {
		return nil, err
	}
	ordered := make([]*store.PlanEntry, 0, len(children))
	for _, child := range children {
		if child.ID == entry.OnTop {
			ordered = append([]*store.PlanEntry{child}, ordered...)
			continue
		}
		ordered = append(ordered, child)
	}
	for _, child := range ordered {
		task, err := c.selectIn(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
	}
	return nil, nil
}

func (c *Controller) nextTaskOf(ctx context.Context, planID string) (*store.TaskRecord, error) {
	var best *store.TaskRecord
	for _, state := range []schema.TaskState{schema.TaskStateCreated, schema.TaskStatePending} {
		st := state
		tasks, err := c.store.ListTasks(ctx, store.TaskFilter{PlanID: planID, State: &st, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			continue
		}
		if best == nil || tasks[0].ID < best.ID {
			best = tasks[0]
		}
	}
	return best, nil
}

// RunNext selects and starts the next created task of a plan. A pending
// task is returned unstarted: re-admission requires an explicit resume
// decision and is never taken silently here.
func (c *Controller) RunNext(ctx context.Context, planID string) (*store.TaskRecord, error) {
	task, err := c.SelectNext(ctx, planID)
	if err != nil || task == nil {
		return nil, err
	}
	if task.State == schema.TaskStatePending {
		return task, nil
	}
	if err := c.runner.Start(ctx, task.ID); err != nil {
		return task, err
	}
	return task, nil
}

// CancelTask cancels a task on the plan's behalf.
func (c *Controller) CancelTask(ctx context.Context, taskID int64, reason string) error {
	return c.runner.Cancel(ctx, taskID, reason)
}

// ReversalReport describes how far a reversal got.
type ReversalReport struct {
	WorkID   string  `json:"work_id"`
	Reversed []int64 `json:"reversed,omitempty"` // ordinals reversed, most recent first
	Boundary int64   `json:"boundary,omitempty"` // first ordinal that could not be reversed
}

// Reverse unwinds the tool log of a run from the most recent entry down to
// uptoOrdinal inclusive, invoking each tool's compensating action in strict
// reverse-ordinal order. An entry whose tool has no compensating action
// stops the walk with IrreversibleEntry; entries below it stay unreversed
// and the report records the boundary. Already-reversed entries and
// compensating entries are skipped.
func (c *Controller) Reverse(ctx context.Context, workID string, uptoOrdinal int64) (*ReversalReport, error) {
	history, err := c.store.ToolLogHistory(ctx, workID)
	if err != nil {
		return nil, err
	}
	report := &ReversalReport{WorkID: workID}

	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Ordinal < uptoOrdinal {
			break
		}
		if entry.Reversed || entry.ReversalOf != 0 {
			continue
		}

		comp := c.agents.Compensator(entry.Tool)
		if comp == nil {
			report.Boundary = entry.Ordinal
			return report, schema.NewErrorf(schema.ErrCodeIrreversible,
				"tool %s has no compensating action", entry.Tool).
				WithDetails(map[string]any{"work_id": workID, "ordinal": entry.Ordinal})
		}

		resp, err := comp.Compensate(ctx, agent.CompensationRequest{
			Tool:     entry.Tool,
			NodeID:   entry.NodeID,
			Request:  entry.Request,
			Response: entry.Response,
		})
		if err != nil {
			report.Boundary = entry.Ordinal
			return report, schema.NewErrorf(schema.ErrCodeExecution,
				"compensating %s failed", entry.Tool).
				WithNode(entry.NodeID).WithCause(err).
				WithDetails(map[string]any{"work_id": workID, "ordinal": entry.Ordinal})
		}

		if err := c.store.ReverseToolLog(ctx, workID, entry.Ordinal); err != nil {
			return report, err
		}
		if _, err := c.store.AppendToolLog(ctx, &store.ToolLogEntry{
			WorkID:     workID,
			PlanID:     entry.PlanID,
			TaskID:     entry.TaskID,
			NodeID:     entry.NodeID,
			Tool:       entry.Tool,
			Request:    entry.Response, // undoing what the invocation produced
			Response:   resp,
			ReversalOf: entry.Ordinal,
			Timestamp:  time.Now().UTC(),
		}); err != nil {
			return report, err
		}
		report.Reversed = append(report.Reversed, entry.Ordinal)
	}
	return report, nil
}
