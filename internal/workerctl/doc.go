// Package workerctl starts, stops, and inspects the worker daemon process
// from the CLI. It has no IPC channel to the worker; liveness is derived
// from the instance lock in the queue directory and identity from the pid
// file, so control works even when the worker is wedged.
package workerctl
