// Package logging assembles structured slog loggers and formatting helpers used
// across winescan.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code tags log lines with the
// request correlation id, image id, and bottle index. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
