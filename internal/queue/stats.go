package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Counter names the monotonically-accumulating stats fields.
type Counter string

const (
	CounterEnqueued  Counter = "enqueued"
	CounterProcessed Counter = "processed"
	CounterFailed    Counter = "failed"
	CounterRetried   Counter = "retried"
	CounterDirect    Counter = "direct"
)

// Stats accumulates lifetime counters across worker runs. Direct counts
// fallback executions that bypassed the queue. Reset only by operator action.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	Direct    uint64 `json:"direct"`
}

const (
	statsFileName = "stats.json"
	statsLockName = ".stats.lock"
	statsLockWait = 2 * time.Second
	statsLockPoll = 10 * time.Millisecond
)

// StatsFile guards read-modify-write cycles on stats.json with an advisory
// lock so producers and the worker can update counters concurrently. Each
// write replaces the file atomically; readers see old or new, never partial.
type StatsFile struct {
	path string
	lock *flock.Flock
}

// NewStatsFile builds the counter file handle rooted at the queue directory.
func NewStatsFile(queueDir string) *StatsFile {
	return &StatsFile{
		path: filepath.Join(queueDir, statsFileName),
		lock: flock.New(filepath.Join(queueDir, statsLockName)),
	}
}

// Increment adds one to the named counter.
func (f *StatsFile) Increment(counter Counter) error {
	return f.update(func(s *Stats) {
		switch counter {
		case CounterEnqueued:
			s.Enqueued++
		case CounterProcessed:
			s.Processed++
		case CounterFailed:
			s.Failed++
		case CounterRetried:
			s.Retried++
		case CounterDirect:
			s.Direct++
		}
	})
}

// Read returns the current counters. A missing file reads as all zeros.
func (f *StatsFile) Read() (Stats, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	return s, nil
}

// Reset zeroes all counters. Operator action only.
func (f *StatsFile) Reset() error {
	return f.update(func(s *Stats) { *s = Stats{} })
}

func (f *StatsFile) update(mutate func(*Stats)) error {
	ctx, cancel := context.WithTimeout(context.Background(), statsLockWait)
	defer cancel()
	ok, err := f.lock.TryLockContext(ctx, statsLockPoll)
	if err != nil {
		return fmt.Errorf("acquire stats lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("stats lock busy")
	}
	defer f.lock.Unlock()

	stats, err := f.Read()
	if err != nil {
		return err
	}
	mutate(&stats)

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace stats: %w", err)
	}
	return nil
}
