// Package worker implements the queue-draining daemon. Exactly one worker
// runs per queue directory, enforced by a file lock. The worker moves
// through a fixed lifecycle: acquire the lock, recover entries orphaned by
// a previous crash, then loop between waiting for work and executing
// batches until shut down or idle long enough to exit.
//
// Wakeups come from a WakeSource, either filesystem events on the pending
// partition or interval polling. Event mode silently downgrades to polling
// when the watcher cannot be created or dies, so the worker never depends
// on inotify being available.
package worker
