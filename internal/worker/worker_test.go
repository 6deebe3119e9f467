package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"funnel/internal/config"
	"funnel/internal/executor"
	"funnel/internal/logging"
	"funnel/internal/queue"
	"funnel/internal/testsupport"
)

func newTestWorker(t *testing.T, exec executor.Executor, opts ...testsupport.ConfigOption) (*Worker, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	return New(cfg, store, exec, logging.NewNop()), store, cfg
}

func mustEnqueue(t *testing.T, store *queue.Store, operation, payload string, priority int) *queue.Entry {
	t.Helper()
	e, err := store.Enqueue(context.Background(), operation, payload, priority, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return e
}

func TestRunOnceCompletesPendingEntries(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	w, store, _ := newTestWorker(t, exec)

	mustEnqueue(t, store, "insert", "INSERT INTO t VALUES (1)", 5)
	mustEnqueue(t, store, "insert", "INSERT INTO t VALUES (2)", 5)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := executed.Load(); got != 2 {
		t.Fatalf("executed %d entries, want 2", got)
	}
	if n, _ := store.Count(queue.StateCompleted); n != 2 {
		t.Fatalf("completed count = %d, want 2", n)
	}
	if n, _ := store.Count(queue.StatePending); n != 0 {
		t.Fatalf("pending count = %d, want 0", n)
	}
}

func TestRunOnceExecutesInPriorityThenSequenceOrder(t *testing.T) {
	var order []string
	exec := executor.Func(func(_ context.Context, _, payload string) error {
		order = append(order, payload)
		return nil
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithBatchSize(10))

	mustEnqueue(t, store, "op", "low-first", 8)
	mustEnqueue(t, store, "op", "high", 1)
	mustEnqueue(t, store, "op", "low-second", 8)
	mustEnqueue(t, store, "op", "mid", 4)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	want := []string{"high", "mid", "low-first", "low-second"}
	if len(order) != len(want) {
		t.Fatalf("executed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("executed %v, want %v", order, want)
		}
	}
}

func TestTransientFailureRequeuesWithBackoff(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		return executor.Transient(errors.New("database is locked"))
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithMaxRetries(3))

	mustEnqueue(t, store, "op", "p", 5)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	entries, err := store.List(queue.StatePending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("pending count = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Retries != 1 {
		t.Fatalf("retries = %d, want 1", e.Retries)
	}
	if e.NotBefore == nil || !e.NotBefore.After(time.Now().Add(-time.Second)) {
		t.Fatalf("not_before not set to a future time: %v", e.NotBefore)
	}
	if e.LastError == "" {
		t.Fatal("last_error not recorded")
	}
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		return executor.Transient(errors.New("still busy"))
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithMaxRetries(3))

	mustEnqueue(t, store, "op", "p", 5)

	// Each pass retries once; backoff in the test config is 1s, so clear
	// not_before between passes instead of sleeping.
	for i := 0; i < 3; i++ {
		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once #%d: %v", i+1, err)
		}
		clearNotBefore(t, store)
	}

	if n, _ := store.Count(queue.StatePending); n != 0 {
		t.Fatalf("pending count = %d, want 0", n)
	}
	entries, err := store.List(queue.StateFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("failed count = %d, want 1", len(entries))
	}
	if entries[0].Retries != 3 {
		t.Fatalf("retries = %d, want 3", entries[0].Retries)
	}
}

// clearNotBefore rewrites pending entries with not_before unset so retry
// tests do not have to wait out real backoff delays.
func clearNotBefore(t *testing.T, store *queue.Store) {
	t.Helper()
	entries, err := store.List(queue.StatePending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	for _, e := range entries {
		if ok, err := store.Claim(e); err != nil || !ok {
			t.Fatalf("claim for rewrite: ok=%v err=%v", ok, err)
		}
		e.NotBefore = nil
		if ok, err := store.Release(e); err != nil || !ok {
			t.Fatalf("release: ok=%v err=%v", ok, err)
		}
	}
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		return executor.Permanent(errors.New("syntax error"))
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithMaxRetries(5))

	mustEnqueue(t, store, "op", "p", 5)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	entries, err := store.List(queue.StateFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("failed count = %d, want 1", len(entries))
	}
	if entries[0].Retries != 0 {
		t.Fatalf("retries = %d, want 0 for a permanent failure", entries[0].Retries)
	}
}

func TestBatchSizeLimitsOnePass(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithBatchSize(2))

	for i := 0; i < 5; i++ {
		mustEnqueue(t, store, "op", fmt.Sprintf("p%d", i), 5)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := executed.Load(); got != 2 {
		t.Fatalf("executed %d entries, want batch size 2", got)
	}
	if n, _ := store.Count(queue.StatePending); n != 3 {
		t.Fatalf("pending count = %d, want 3", n)
	}
}

func TestEntriesWithFutureNotBeforeAreSkipped(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	w, store, _ := newTestWorker(t, exec)

	e := mustEnqueue(t, store, "op", "deferred", 5)
	if ok, err := store.Claim(e); err != nil || !ok {
		t.Fatalf("claim for rewrite: ok=%v err=%v", ok, err)
	}
	future := time.Now().Add(time.Hour)
	e.NotBefore = &future
	if ok, err := store.Release(e); err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}
	mustEnqueue(t, store, "op", "ready", 5)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := executed.Load(); got != 1 {
		t.Fatalf("executed %d entries, want 1", got)
	}
	if n, _ := store.Count(queue.StatePending); n != 1 {
		t.Fatalf("pending count = %d, want 1", n)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error { return nil })
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first := New(cfg, store, exec, logging.NewNop())
	release, err := first.acquire()
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	second := New(cfg, store, exec, logging.NewNop())
	if err := second.RunOnce(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second instance error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunDrainsThenExitsOnCancel(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	w, store, _ := newTestWorker(t, exec, testsupport.WithWakeMode(ModePolling))

	mustEnqueue(t, store, "op", "p", 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for executed.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never processed the entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunExitsAfterIdleWindow(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	w, store, cfg := newTestWorker(t, exec, testsupport.WithWakeMode(ModePolling))
	cfg.Worker.IdleExitSeconds = 1

	mustEnqueue(t, store, "op", "p", 5)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit after idle window")
	}
	if executed.Load() != 1 {
		t.Fatalf("executed %d entries before idling out, want 1", executed.Load())
	}

	// The instance lock must be free again so a respawned worker can start.
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("respawn after idle exit: %v", err)
	}
}

func TestDowngradeSwapsEventSourceForPolling(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error { return nil })
	w, store, _ := newTestWorker(t, exec)

	src, err := newEventSource(store.Root())
	if err != nil {
		t.Fatalf("create event source: %v", err)
	}
	w.wake = src

	w.downgrade(errors.New("watcher closed"))
	if got := w.wake.Mode(); got != ModePolling {
		t.Fatalf("wake mode after downgrade = %q, want %q", got, ModePolling)
	}
	// A second downgrade is a no-op once polling is active.
	w.downgrade(errors.New("watcher closed again"))
	if got := w.wake.Mode(); got != ModePolling {
		t.Fatalf("wake mode after repeated downgrade = %q, want %q", got, ModePolling)
	}
}

func TestRunRecoversOrphansOnStartup(t *testing.T) {
	var executed atomic.Int64
	exec := executor.Func(func(_ context.Context, _, _ string) error {
		executed.Add(1)
		return nil
	})
	cfg := testsupport.NewConfig(t)
	cfg.Worker.ProcessingTimeoutSeconds = 0
	store := testsupport.MustOpenStore(t, cfg)

	// Simulate a crash mid-execution: entry stranded in processing.
	e := mustEnqueue(t, store, "op", "stranded", 5)
	if ok, err := store.Claim(e); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	w := New(cfg, store, exec, logging.NewNop())
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := executed.Load(); got != 1 {
		t.Fatalf("executed %d entries, want 1 recovered entry", got)
	}
	if n, _ := store.Count(queue.StateCompleted); n != 1 {
		t.Fatalf("completed count = %d, want 1", n)
	}
}

func TestHeartbeatWrittenAfterBatch(t *testing.T) {
	exec := executor.Func(func(_ context.Context, _, _ string) error { return nil })
	w, store, _ := newTestWorker(t, exec)

	mustEnqueue(t, store, "op", "p", 5)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	hb, err := store.ReadHeartbeat()
	if err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if hb.RunID != w.RunID() {
		t.Fatalf("heartbeat run_id = %q, want %q", hb.RunID, w.RunID())
	}
	if hb.EventsProcessed != 1 {
		t.Fatalf("events_processed = %d, want 1", hb.EventsProcessed)
	}
	if hb.PID <= 0 {
		t.Fatalf("heartbeat pid = %d", hb.PID)
	}
}
