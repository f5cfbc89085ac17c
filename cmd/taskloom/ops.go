package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/benbenlabs/taskloom/internal/logging"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

func newLogger(level string) *slog.Logger {
	handler := logging.NewCorrelationHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(level),
	}))
	return slog.New(handler)
}

// runSpawn creates a task for a plan and drives it to its first settle
// point: taskloom spawn <plan-id> <workflow-code> [input-json]
func runSpawn(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: taskloom spawn <plan-id> <workflow-code> [input-json]")
	}
	var input json.RawMessage
	if len(args) > 2 {
		if !json.Valid([]byte(args[2])) {
			return fmt.Errorf("input is not valid JSON")
		}
		input = json.RawMessage(args[2])
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.planner.SpawnTask(ctx, args[0], args[1], "", input)
	if err != nil {
		return err
	}
	if err := a.engine.Start(ctx, task.ID); err != nil {
		return err
	}
	return printTask(ctx, a, task.ID)
}

// runSuspend parks a running task: taskloom suspend <task-id> <reason>
func runSuspend(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: taskloom suspend <task-id> <reason>")
	}
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad task id %q", args[0])
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.suspender.Suspend(ctx, taskID, args[1]); err != nil {
		return err
	}
	return printTask(ctx, a, taskID)
}

// runResume re-admits a pending task: taskloom resume <task-id> <next|retry>
func runResume(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: taskloom resume <task-id> <next|retry>")
	}
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("bad task id %q", args[0])
	}
	decision := schema.ResumeDecision(args[1])
	if !decision.Valid() {
		return fmt.Errorf("bad decision %q (expected next or retry)", args[1])
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.suspender.Resume(ctx, taskID, decision); err != nil {
		return err
	}
	return printTask(ctx, a, taskID)
}

// runReverse unwinds a run's tool log: taskloom reverse <work-id> [upto-ordinal]
func runReverse(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: taskloom reverse <work-id> [upto-ordinal]")
	}
	upto := int64(1)
	if len(args) > 1 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || n < 1 {
			return fmt.Errorf("bad ordinal %q", args[1])
		}
		upto = n
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, rerr := a.planner.Reverse(ctx, args[0], upto)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	return rerr
}

// runVacuum compacts the database file.
func runVacuum() error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.store.Vacuum(ctx)
}

func printTask(ctx context.Context, a *app, taskID int64) error {
	task, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
