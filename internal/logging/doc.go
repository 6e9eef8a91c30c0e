// Package logging assembles structured slog loggers and formatting helpers used
// across graphmem.
//
// It owns the console and JSON handlers, tees terminal output into the
// persistent log file, and exposes context-aware helpers so stage code can
// tag log lines with job IDs, stages, and run IDs. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
