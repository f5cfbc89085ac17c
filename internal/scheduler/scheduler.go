package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/benbenlabs/taskloom/internal/store"
)

// TaskSpawner creates a fresh task record for a schedule firing. Satisfied
// by the plan controller (avoids an import cycle).
type TaskSpawner interface {
	SpawnTask(ctx context.Context, planID, workflowCode, workID string, input json.RawMessage) (*store.TaskRecord, error)
}

// TaskStarter drives a created task. Satisfied by the execution engine.
type TaskStarter interface {
	Start(ctx context.Context, taskID int64) error
}

// Scheduler polls the store for due schedules and spawns new tasks for
// them. It only ever creates tasks; a pending task is never resumed on a
// timer.
type Scheduler struct {
	store   store.Store
	spawner TaskSpawner
	starter TaskStarter
	parser  cron.Parser
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently firing (dedup)
}

// New creates a Scheduler.
func New(s store.Store, spawner TaskSpawner, starter TaskStarter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		spawner:  spawner,
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every enabled schedule that is due.
func (s *Scheduler) Tick(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.NextRunAt == nil || !sched.NextRunAt.After(now) {
			if !s.tryAcquire(sched.ID) {
				continue // still firing from a previous tick
			}
			if err := s.fire(ctx, sched, now); err != nil {
				s.logger.Error("failed to fire schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sched.ID)
		}
	}
}

// fire spawns and starts a new task for the schedule and updates its
// timestamps. Every firing gets its own work id.
func (s *Scheduler) fire(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("firing schedule",
		slog.String("schedule_id", sched.ID),
		slog.String("workflow", sched.WorkflowCode),
	)

	status := "success"
	task, err := s.spawner.SpawnTask(ctx, sched.PlanID, sched.WorkflowCode, "", sched.Input)
	if err != nil {
		status = "error"
		s.logger.Error("schedule spawn failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
	} else if s.starter != nil {
		if err := s.starter.Start(ctx, task.ID); err != nil {
			status = "error"
			s.logger.Error("scheduled task failed",
				slog.String("schedule_id", sched.ID),
				slog.Int64("task_id", task.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.updateStatus(ctx, sched, now, status)
}

func (s *Scheduler) updateStatus(ctx context.Context, sched *store.Schedule, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(sched.CronExpr, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}

	return s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// tryAcquire returns true and marks the schedule in-flight if it is not already firing.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next firing time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// RecoverMissed fires schedules whose next_run_at passed while the process
// was down, once each.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range schedules {
		if sched.NextRunAt != nil && sched.NextRunAt.Before(now) {
			if !s.tryAcquire(sched.ID) {
				continue
			}
			if err := s.fire(ctx, sched, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
				s.release(sched.ID)
				continue
			}
			s.release(sched.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
