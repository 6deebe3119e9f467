package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"funnel/internal/config"
	"funnel/internal/executor"
	"funnel/internal/logging"
	"funnel/internal/queue"
)

// LockFileName is the single-instance worker lock inside the queue directory.
const LockFileName = ".lock"

// ErrAlreadyRunning reports that another worker instance holds the lock.
// This is expected during normal operation, not a failure; callers exit 0.
var ErrAlreadyRunning = errors.New("another worker instance is active")

// Worker is the single-instance daemon that drains the queue. It claims
// batches of pending entries in priority order, executes them sequentially
// against the downstream datastore, and routes each outcome to completed,
// back to pending with backoff, or to failed.
type Worker struct {
	cfg    *config.Config
	store  *queue.Store
	exec   executor.Executor
	logger *slog.Logger

	lock  *flock.Flock
	runID string
	wake  WakeSource

	eventsProcessed uint64
}

// New constructs a worker for the given store and executor.
func New(cfg *config.Config, store *queue.Store, exec executor.Executor, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		store:  store,
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "worker"),
		lock:   flock.New(filepath.Join(store.Root(), LockFileName)),
		runID:  uuid.NewString(),
	}
}

// RunID identifies this worker process in heartbeats and logs.
func (w *Worker) RunID() string {
	return w.runID
}

// Run executes the full daemon lifecycle: acquire the instance lock, recover
// orphans, then alternate between waiting for work and draining batches until
// the context is cancelled or the idle window expires. Returns
// ErrAlreadyRunning without touching any state when another instance is live.
func (w *Worker) Run(ctx context.Context) error {
	release, err := w.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := w.startup(ctx); err != nil {
		return err
	}

	wake, err := NewWakeSource(w.cfg.Worker.WakeMode, filepath.Join(w.store.Root(), string(queue.StatePending)), w.logger)
	if err != nil {
		return fmt.Errorf("create wake source: %w", err)
	}
	w.wake = wake
	defer func() { _ = w.wake.Close() }()

	w.logger.Info("worker started",
		logging.String(logging.FieldRunID, w.runID),
		logging.String("wake_mode", w.wake.Mode()),
		logging.Int("batch_size", w.cfg.Worker.BatchSize),
	)

	pollInterval := time.Duration(w.cfg.Worker.PollInterval) * time.Second
	idleExit := time.Duration(w.cfg.Worker.IdleExitSeconds) * time.Second
	idleSince := time.Now()

	for {
		processed := w.processBatch(ctx)
		w.writeHeartbeat()

		if ctx.Err() != nil {
			w.logger.Info("worker draining for shutdown", logging.String(logging.FieldRunID, w.runID))
			return nil
		}

		if processed > 0 {
			idleSince = time.Now()
		} else if idleExit > 0 && time.Since(idleSince) >= idleExit {
			w.logger.Info("worker idle limit reached; exiting",
				logging.String(logging.FieldRunID, w.runID),
				logging.Duration("idle", time.Since(idleSince)),
			)
			return nil
		}

		if _, err := w.wake.Wait(ctx, pollInterval); err != nil {
			w.downgrade(err)
		}
		if ctx.Err() != nil {
			w.logger.Info("worker stopping", logging.String(logging.FieldRunID, w.runID))
			return nil
		}
	}
}

// RunOnce acquires the lock, recovers orphans, drains a single batch, and
// exits. Useful for scripted environments with no long-running daemon.
func (w *Worker) RunOnce(ctx context.Context) error {
	release, err := w.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := w.startup(ctx); err != nil {
		return err
	}
	w.wake = pollingSource{}

	processed := w.processBatch(ctx)
	w.writeHeartbeat()
	w.logger.Info("single batch processed",
		logging.Int("entries", processed),
		logging.String(logging.FieldRunID, w.runID),
	)
	return nil
}

// acquire takes the single-instance lock and writes the pid file. The
// returned release function undoes both.
func (w *Worker) acquire() (func(), error) {
	ok, err := w.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	pidPath := w.cfg.WorkerPIDPath()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = w.lock.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return func() {
		_ = os.Remove(pidPath)
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("failed to release worker lock", logging.Error(err))
		}
	}, nil
}

// startup runs the Recovering phase: preflight checks, orphan recovery, and
// quarantine of undecodable entry files.
func (w *Worker) startup(ctx context.Context) error {
	if err := w.preflight(ctx); err != nil {
		return err
	}

	timeout := time.Duration(w.cfg.Worker.ProcessingTimeoutSeconds) * time.Second
	result, err := w.store.RecoverOrphans(timeout, w.cfg.Worker.MaxRetries, false)
	if err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}
	if result.Total() > 0 {
		w.logger.Info("recovered orphaned entries",
			logging.Int("requeued", result.Requeued),
			logging.Int("failed", result.Failed),
			logging.String(logging.FieldEventType, "orphans_recovered"),
		)
	}

	for _, state := range []queue.State{queue.StatePending, queue.StateProcessing} {
		moved, err := w.store.QuarantineMalformed(state)
		if err != nil {
			w.logger.Warn("quarantine scan failed", logging.Error(err), logging.String("partition", string(state)))
			continue
		}
		for _, name := range moved {
			w.logger.Warn("quarantined malformed entry file",
				logging.String("file", name),
				logging.String("partition", string(state)),
				logging.String(logging.FieldEventType, "entry_quarantined"),
			)
		}
	}
	return nil
}

// processBatch claims and executes up to batch_size eligible pending entries
// in priority-major, sequence-minor order. Entries within a batch run
// sequentially; the downstream datastore requires serialized writes, which
// is the reason this queue exists. Returns the number of entries executed.
func (w *Worker) processBatch(ctx context.Context) int {
	entries, err := w.store.List(queue.StatePending)
	if err != nil {
		w.logger.Error("failed to list pending entries",
			logging.Error(err),
			logging.String(logging.FieldEventType, "pending_list_failed"),
			logging.String(logging.FieldErrorHint, "check queue directory access"),
		)
		return 0
	}

	now := time.Now()
	processed := 0
	for _, entry := range entries {
		if processed >= w.cfg.Worker.BatchSize {
			break
		}
		// Graceful shutdown: stop claiming, finish what is in flight.
		if ctx.Err() != nil {
			break
		}
		if !entry.Eligible(now) {
			continue
		}

		claimed, err := w.store.Claim(entry)
		if err != nil {
			w.logger.Error("claim failed", logging.Uint64(logging.FieldSeq, entry.Seq), logging.Error(err))
			continue
		}
		if !claimed {
			// Lost the rename race; not an error.
			continue
		}

		w.executeEntry(entry)
		processed++
	}
	return processed
}

// executeEntry runs one claimed entry to a terminal decision. The executor
// call gets its own deadline detached from the daemon context so an in-flight
// entry finishes even during shutdown.
func (w *Worker) executeEntry(entry *queue.Entry) {
	execCtx, cancel := context.WithTimeout(context.Background(), time.Duration(w.cfg.Worker.ExecutorTimeoutSeconds)*time.Second)
	err := w.exec.Execute(execCtx, entry.Operation, entry.Payload)
	cancel()

	if err == nil {
		if err := w.store.Complete(entry); err != nil {
			w.logger.Error("complete transition failed", logging.Uint64(logging.FieldSeq, entry.Seq), logging.Error(err))
			return
		}
		w.eventsProcessed++
		w.logger.Info("entry completed",
			logging.Uint64(logging.FieldSeq, entry.Seq),
			logging.String(logging.FieldOperation, entry.Operation),
			logging.Int(logging.FieldPriority, entry.Priority),
		)
		return
	}

	if executor.IsPermanent(err) {
		failed, failErr := w.store.Fail(entry, queue.StateProcessing, err)
		if failErr != nil {
			w.logger.Error("fail transition failed", logging.Uint64(logging.FieldSeq, entry.Seq), logging.Error(failErr))
			return
		}
		if !failed {
			w.logger.Warn("entry vanished before fail transition", logging.Uint64(logging.FieldSeq, entry.Seq))
			return
		}
		w.logger.Warn("entry dead-lettered",
			logging.Uint64(logging.FieldSeq, entry.Seq),
			logging.String(logging.FieldOperation, entry.Operation),
			logging.Error(err),
			logging.String(logging.FieldEventType, "entry_failed_permanent"),
		)
		return
	}

	attempt := entry.Retries + 1
	if attempt < w.cfg.Worker.MaxRetries {
		notBefore := time.Now().Add(backoffDelay(w.cfg.Backoff, attempt))
		retried, retryErr := w.store.Retry(entry, err, notBefore, w.cfg.Worker.RetryPriorityBump)
		if retryErr != nil {
			w.logger.Error("retry transition failed", logging.Uint64(logging.FieldSeq, entry.Seq), logging.Error(retryErr))
			return
		}
		if !retried {
			w.logger.Warn("entry vanished before retry transition", logging.Uint64(logging.FieldSeq, entry.Seq))
			return
		}
		w.logger.Warn("entry requeued after transient failure",
			logging.Uint64(logging.FieldSeq, entry.Seq),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", time.Until(notBefore)),
			logging.Error(err),
		)
		return
	}

	entry.Retries = attempt
	failed, failErr := w.store.Fail(entry, queue.StateProcessing, err)
	if failErr != nil {
		w.logger.Error("fail transition failed", logging.Uint64(logging.FieldSeq, entry.Seq), logging.Error(failErr))
		return
	}
	if !failed {
		w.logger.Warn("entry vanished before fail transition", logging.Uint64(logging.FieldSeq, entry.Seq))
		return
	}
	w.logger.Warn("entry dead-lettered after exhausting retries",
		logging.Uint64(logging.FieldSeq, entry.Seq),
		logging.Int("retries", entry.Retries),
		logging.Error(err),
		logging.String(logging.FieldEventType, "entry_failed_exhausted"),
	)
}

// downgrade swaps a dead event source for polling without interrupting the
// main loop.
func (w *Worker) downgrade(cause error) {
	if w.wake.Mode() == ModePolling {
		return
	}
	_ = w.wake.Close()
	w.wake = pollingSource{}
	w.logger.Warn("file watcher died; downgraded to polling",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "wake_source_downgraded"),
	)
}

func (w *Worker) writeHeartbeat() {
	mode := ModePolling
	if w.wake != nil {
		mode = w.wake.Mode()
	}
	hb := queue.Heartbeat{
		PID:             os.Getpid(),
		RunID:           w.runID,
		Mode:            mode,
		LastActiveAt:    time.Now().UTC(),
		EventsProcessed: w.eventsProcessed,
	}
	if err := w.store.WriteHeartbeat(hb); err != nil {
		w.logger.Warn("heartbeat update failed", logging.Error(err))
	}
}
