package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"funnel/internal/queue"
)

func decodeStatus(t *testing.T, out string) statusSnapshot {
	t.Helper()
	var snapshot statusSnapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode status output %q: %v", out, err)
	}
	return snapshot
}

func enqueueSeq(t *testing.T, out string) uint64 {
	t.Helper()
	var seq uint64
	var priority int
	if _, err := fmt.Sscanf(out, "Enqueued entry %d (priority %d)", &seq, &priority); err != nil {
		t.Fatalf("parse enqueue output %q: %v", out, err)
	}
	return seq
}

func TestEnqueueThenStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env, "enqueue", "exec", "CREATE TABLE IF NOT EXISTS kv (k TEXT)")
	if !strings.Contains(out, "Enqueued entry") {
		t.Fatalf("enqueue output = %q", out)
	}

	status := decodeStatus(t, mustRunCLI(t, env, "status", "--json"))
	if status.Queue.Pending != 1 {
		t.Fatalf("pending = %d, want 1", status.Queue.Pending)
	}
	if status.WorkerRunning {
		t.Fatal("no worker was started but status reports one running")
	}
	if status.Stats.Enqueued != 1 {
		t.Fatalf("stats enqueued = %d, want 1", status.Stats.Enqueued)
	}
}

func TestEnqueueRejectsInvalidPriority(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "enqueue", "exec", "SELECT 1", "--priority", "0"); err == nil {
		t.Fatal("priority 0 should be rejected")
	}
	status := decodeStatus(t, mustRunCLI(t, env, "status", "--json"))
	if status.Queue.Pending != 0 {
		t.Fatalf("rejected entry was queued anyway (pending = %d)", status.Queue.Pending)
	}
}

func TestWorkerOnceDrainsQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	mustRunCLI(t, env, "enqueue", "exec", "CREATE TABLE IF NOT EXISTS kv (k TEXT, v TEXT)")
	mustRunCLI(t, env, "enqueue", "exec", "INSERT INTO kv (k, v) VALUES ('a', '1')")

	mustRunCLI(t, env, "worker", "once")

	status := decodeStatus(t, mustRunCLI(t, env, "status", "--json"))
	if status.Queue.Completed != 2 {
		t.Fatalf("completed = %d, want 2", status.Queue.Completed)
	}
	if status.Queue.Pending != 0 {
		t.Fatalf("pending = %d, want 0", status.Queue.Pending)
	}
	if status.Heartbeat == nil {
		t.Fatal("worker run left no heartbeat")
	}
}

func TestEnqueueFallsBackToDirectWhenStoreUnusable(t *testing.T) {
	env := setupCLITestEnv(t)

	// A regular file where the pending partition belongs makes the store
	// unopenable while the queue directory itself stays writable.
	if err := os.MkdirAll(env.cfg.Paths.QueueDir, 0o755); err != nil {
		t.Fatalf("create queue dir: %v", err)
	}
	blocker := filepath.Join(env.cfg.Paths.QueueDir, string(queue.StatePending))
	if err := os.WriteFile(blocker, []byte("in the way"), 0o644); err != nil {
		t.Fatalf("block pending partition: %v", err)
	}

	out := mustRunCLI(t, env, "enqueue", "exec", "CREATE TABLE IF NOT EXISTS kv (k TEXT)")
	if !strings.Contains(out, "executed directly") {
		t.Fatalf("expected direct-execution fallback, got %q", out)
	}

	stats, err := queue.NewStatsFile(env.cfg.Paths.QueueDir).Read()
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	if stats.Direct != 1 {
		t.Fatalf("stats direct = %d, want 1", stats.Direct)
	}
}

func TestRequeueFailedEntry(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Worker.MaxRetries = 1
	writeTestConfig(t, env.configPath, env.cfg)

	out := mustRunCLI(t, env, "enqueue", "exec", "THIS IS NOT SQL")
	seq := enqueueSeq(t, out)

	mustRunCLI(t, env, "worker", "once")

	status := decodeStatus(t, mustRunCLI(t, env, "status", "--json"))
	if status.Queue.Failed != 1 {
		t.Fatalf("failed = %d, want 1", status.Queue.Failed)
	}

	mustRunCLI(t, env, "requeue", fmt.Sprint(seq))

	status = decodeStatus(t, mustRunCLI(t, env, "status", "--json"))
	if status.Queue.Pending != 1 || status.Queue.Failed != 0 {
		t.Fatalf("after requeue: pending=%d failed=%d, want 1/0", status.Queue.Pending, status.Queue.Failed)
	}
}

func TestRequeueUnknownSequence(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env, "requeue", "9999"); err == nil {
		t.Fatal("requeue of a missing sequence should fail")
	}
}

func TestCleanupRecoverDryRun(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env, "cleanup", "recover", "--dry-run")
	if !strings.Contains(out, "Would recover") {
		t.Fatalf("dry-run output = %q", out)
	}
}

func TestCleanupArchiveRetentionOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env, "cleanup", "archive", "--dry-run", "--retention-hours", "1")
	if !strings.Contains(out, "Would archive 0") {
		t.Fatalf("archive output = %q", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out := mustRunCLI(t, env, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("config init output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
	if _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestWorkerStatusWithoutWorker(t *testing.T) {
	env := setupCLITestEnv(t)
	out := mustRunCLI(t, env, "worker", "status")
	if !strings.Contains(out, "Worker not running") {
		t.Fatalf("worker status output = %q", out)
	}
}
