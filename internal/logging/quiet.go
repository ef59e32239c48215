package logging

import (
	"context"
	"log/slog"
)

// floorHandler drops records below a minimum level before delegating.
type floorHandler struct {
	next  slog.Handler
	floor slog.Level
}

func (h *floorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *floorHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.floor {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *floorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &floorHandler{next: h.next.WithAttrs(attrs), floor: h.floor}
}

func (h *floorHandler) WithGroup(name string) slog.Handler {
	return &floorHandler{next: h.next.WithGroup(name), floor: h.floor}
}

// WithMinLevel returns a logger that suppresses records below level while
// keeping the wrapped logger's attributes and outputs. Batch commands use it
// to hide per-bottle chatter.
func WithMinLevel(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if existing, ok := next.(*floorHandler); ok {
		next = existing.next
	}
	return slog.New(&floorHandler{next: next, floor: level})
}
