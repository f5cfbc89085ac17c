package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbenlabs/taskloom/internal/agent"
	"github.com/benbenlabs/taskloom/internal/check"
	"github.com/benbenlabs/taskloom/internal/engine"
	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/plan"
	"github.com/benbenlabs/taskloom/internal/scheduler"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/internal/validation"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "spawn":
		err = runSpawn(args)
	case "suspend":
		err = runSuspend(args)
	case "resume":
		err = runResume(args)
	case "reverse":
		err = runReverse(args)
	case "vacuum":
		err = runVacuum()
	default:
		err = fmt.Errorf("unknown command %q (expected serve, spawn, suspend, resume, reverse or vacuum)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "taskloom:", err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by every command.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	agents    *agent.Registry
	graphs    map[string]*graph.Graph
	engine    *engine.Engine
	suspender *engine.SuspendController
	planner   *plan.Controller
}

func newApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	agents := agent.NewRegistry()
	if err := agents.Register(agent.Echo{}); err != nil {
		s.Close()
		return nil, err
	}
	if err := agents.SetFallback(agent.Echo{}.Name()); err != nil {
		s.Close()
		return nil, err
	}

	validator, err := validation.NewWorkflowValidator(agents)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init validator: %w", err)
	}
	graphs, err := loadWorkflows(ctx, cfg.WorkflowsDir, validator, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	checks, err := check.NewEvaluator()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init check engines: %w", err)
	}

	eng := engine.New(s, graphs, agents, checks, engine.Config{
		MaxAgentRetries: cfg.MaxAgentRetries,
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		agents:    agents,
		graphs:    graphs,
		engine:    eng,
		suspender: engine.NewSuspendController(eng, logger),
		planner:   plan.NewController(s, eng, agents, logger),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler {
		sched = scheduler.New(a.store, a.planner, a.engine, a.logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			a.logger.Error("missed schedule recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	a.logger.Info("taskloom started",
		slog.String("db", a.cfg.DBPath),
		slog.Int("workflows", len(a.graphs)),
		slog.Bool("scheduler", a.cfg.Scheduler))

	<-ctx.Done()
	a.logger.Info("shutting down")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			a.logger.Error("scheduler stop failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
