package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"funnel/internal/queue"
)

func TestNextSeqIsStrictlyIncreasing(t *testing.T) {
	dir := t.TempDir()
	seq := queue.NewSequencer(dir)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 20; i++ {
		value, err := seq.NextSeq(ctx)
		if err != nil {
			t.Fatalf("NextSeq failed: %v", err)
		}
		if value <= last {
			t.Fatalf("sequence not increasing: %d after %d", value, last)
		}
		last = value
	}
}

func TestNextSeqSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := queue.NewSequencer(dir)
	before, err := first.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq failed: %v", err)
	}

	// A fresh instance simulates a process restart sharing the counter file.
	second := queue.NewSequencer(dir)
	after, err := second.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq failed: %v", err)
	}
	if after <= before {
		t.Fatalf("restart broke monotonicity: %d then %d", before, after)
	}
}

func TestNextSeqUniqueUnderConcurrentProducers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	const producers = 8
	const perProducer = 25

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, producers*perProducer)
	var wg sync.WaitGroup
	errs := make(chan error, producers)

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each producer gets its own instance, as separate processes would.
			seq := queue.NewSequencer(dir)
			for j := 0; j < perProducer; j++ {
				value, err := seq.NextSeq(ctx)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				if _, dup := seen[value]; dup {
					mu.Unlock()
					errs <- fmt.Errorf("duplicate sequence issued: %d", value)
					return
				}
				seen[value] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent NextSeq: %v", err)
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d unique values, got %d", producers*perProducer, len(seen))
	}
}
