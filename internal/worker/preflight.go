package worker

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"funnel/internal/logging"
)

// preflight verifies the worker can actually do its job before it starts
// claiming entries: the queue directory must be writable and the downstream
// datastore reachable. Failing here is cheaper than failing mid-batch.
func (w *Worker) preflight(ctx context.Context) error {
	if err := unix.Access(w.store.Root(), unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("queue directory %s not writable: %w", w.store.Root(), err)
	}
	if err := w.exec.Ping(ctx); err != nil {
		return fmt.Errorf("datastore unreachable: %w", err)
	}
	w.logger.Debug("preflight checks passed", logging.String("queue_dir", w.store.Root()))
	return nil
}
