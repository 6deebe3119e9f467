// Package logging builds slog loggers with json or single-line console output,
// shared attribute helpers, and log file retention pruning.
package logging
