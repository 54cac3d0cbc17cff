// Package logging assembles structured slog loggers and formatting helpers used
// across the HandReceipt agent, CLI, and receiver.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so sync code can tag log lines
// with transfer and property identifiers. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
