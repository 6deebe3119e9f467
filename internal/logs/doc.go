// Package logs provides bounded-memory tailing of the worker log file.
//
// It supports negative offsets for "last N lines" reads and offset-resuming
// follow mode for `funnel logs --follow`. Callers supply context deadlines
// so background polling shuts down cleanly when the CLI exits.
package logs
