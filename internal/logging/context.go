package logging

import (
	"context"
	"log/slog"
	"strconv"
)

type ctxKey int

const (
	taskIDKey ctxKey = iota
	nodeIDKey
	workIDKey
)

// WithTaskID returns a context with the task ID set.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// WithNodeID returns a context with the workflow node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// WithWorkID returns a context with the work correlation ID set.
func WithWorkID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workIDKey, id)
}

// TaskID extracts the task ID from the context, or 0 if absent.
func TaskID(ctx context.Context) int64 {
	v, _ := ctx.Value(taskIDKey).(int64)
	return v
}

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string {
	v, _ := ctx.Value(nodeIDKey).(string)
	return v
}

// WorkID extracts the work correlation ID from the context, or "" if absent.
func WorkID(ctx context.Context) string {
	v, _ := ctx.Value(workIDKey).(string)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, taskID int64, nodeID, workID string) context.Context {
	ctx = WithTaskID(ctx, taskID)
	ctx = WithNodeID(ctx, nodeID)
	ctx = WithWorkID(ctx, workID)
	return ctx
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := TaskID(ctx); v != 0 {
		r.AddAttrs(slog.String("task_id", strconv.FormatInt(v, 10)))
	}
	if v := NodeID(ctx); v != "" {
		r.AddAttrs(slog.String("node_id", v))
	}
	if v := WorkID(ctx); v != "" {
		r.AddAttrs(slog.String("work_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
