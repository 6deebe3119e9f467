package queue_test

import (
	"sync"
	"testing"

	"funnel/internal/queue"
)

func TestStatsIncrementAndRead(t *testing.T) {
	stats := queue.NewStatsFile(t.TempDir())

	for i := 0; i < 3; i++ {
		if err := stats.Increment(queue.CounterEnqueued); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}
	if err := stats.Increment(queue.CounterDirect); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	got, err := stats.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Enqueued != 3 || got.Direct != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

func TestStatsConcurrentIncrements(t *testing.T) {
	dir := t.TempDir()

	const writers = 6
	const perWriter = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate instances model separate producer processes.
			stats := queue.NewStatsFile(dir)
			for j := 0; j < perWriter; j++ {
				if err := stats.Increment(queue.CounterProcessed); err != nil {
					t.Errorf("Increment failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := queue.NewStatsFile(dir).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Processed != writers*perWriter {
		t.Fatalf("lost increments: want %d, got %d", writers*perWriter, got.Processed)
	}
}

func TestStatsReset(t *testing.T) {
	stats := queue.NewStatsFile(t.TempDir())
	if err := stats.Increment(queue.CounterFailed); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := stats.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, err := stats.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != (queue.Stats{}) {
		t.Fatalf("expected zeroed stats, got %+v", got)
	}
}
