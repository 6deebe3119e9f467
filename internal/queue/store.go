package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"funnel/internal/config"
)

const stagingDirName = ".staging"

// minFreeBytes is the free-space floor below which the store reports itself
// unavailable to producers.
const minFreeBytes = 1 << 20

// Store manages entry persistence across the four partition directories.
type Store struct {
	root       string
	archiveDir string
	seq        *Sequencer
	stats      *StatsFile
}

// Open initializes the queue directory layout and returns a store.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	root := cfg.Paths.QueueDir
	for _, state := range allStates {
		if err := os.MkdirAll(filepath.Join(root, string(state)), 0o755); err != nil {
			return nil, fmt.Errorf("create partition %s: %w", state, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, stagingDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}

	return &Store{
		root:       root,
		archiveDir: cfg.Paths.ArchiveDir,
		seq:        NewSequencer(root),
		stats:      NewStatsFile(root),
	}, nil
}

// Root returns the queue directory.
func (s *Store) Root() string {
	return s.root
}

// Stats exposes the shared counter file.
func (s *Store) Stats() *StatsFile {
	return s.stats
}

// Sequencer exposes the identifier source, mainly for tests.
func (s *Store) Sequencer() *Sequencer {
	return s.seq
}

func (s *Store) dir(state State) string {
	return filepath.Join(s.root, string(state))
}

func (s *Store) entryPath(state State, e *Entry) string {
	return filepath.Join(s.dir(state), e.FileName())
}

// Enqueue validates and atomically publishes a new entry into the pending
// partition. It never blocks on worker availability; typical latency is a
// couple of file operations.
func (s *Store) Enqueue(ctx context.Context, operation, payload string, priority int, metadata map[string]string) (*Entry, error) {
	candidate := &Entry{
		Seq:       1, // placeholder so Validate can run before the sequencer
		Priority:  priority,
		Operation: operation,
		Payload:   payload,
		Metadata:  metadata,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkWritable(); err != nil {
		return nil, err
	}

	seq, err := s.seq.NextSeq(ctx)
	if err != nil {
		return nil, err
	}
	candidate.Seq = seq
	candidate.CreatedAt = time.Now().UTC()

	if err := s.publish(candidate); err != nil {
		return nil, err
	}
	if err := s.stats.Increment(CounterEnqueued); err != nil {
		// The entry is already durable; counter drift is tolerable.
		return candidate, nil
	}
	return candidate, nil
}

// publish stages the serialized entry and moves it into pending with a
// single rename.
func (s *Store) publish(e *Entry) error {
	staged, err := s.writeStaged(e)
	if err != nil {
		return err
	}
	target := s.entryPath(StatePending, e)
	if err := os.Rename(staged, target); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("%w: publish entry: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) writeStaged(e *Entry) (string, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	staged := filepath.Join(s.root, stagingDirName, fmt.Sprintf("%d-%s", os.Getpid(), e.FileName()))
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: stage entry: %v", ErrUnavailable, err)
	}
	return staged, nil
}

func (s *Store) checkWritable() error {
	var fs unix.Statfs_t
	if err := unix.Statfs(s.root, &fs); err != nil {
		return fmt.Errorf("%w: statfs: %v", ErrUnavailable, err)
	}
	if fs.Bavail*uint64(fs.Bsize) < minFreeBytes {
		return fmt.Errorf("%w: filesystem full", ErrUnavailable)
	}
	return nil
}

// Read loads and validates an entry file from a partition.
func (s *Store) Read(state State, name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(state), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", name, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns the entries of a partition in priority-major, sequence-minor
// order. Files that fail to parse or validate are skipped; the worker routes
// them to failed via QuarantineMalformed.
func (s *Store) List(state State) ([]*Entry, error) {
	names, err := s.listNames(state)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(names))
	for _, name := range names {
		e, err := s.Read(state, name)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) listNames(state State) ([]string, error) {
	dirents, err := os.ReadDir(s.dir(state))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", state, err)
	}
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if _, _, err := ParseFileName(d.Name()); err != nil {
			continue
		}
		names = append(names, d.Name())
	}
	// Zero-padded names sort lexicographically into claim order.
	sort.Strings(names)
	return names, nil
}

// Count returns the number of entries in a partition.
func (s *Store) Count(state State) (int, error) {
	names, err := s.listNames(state)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Summary returns entry counts for all partitions.
func (s *Store) Summary() (Summary, error) {
	var sum Summary
	counts := []struct {
		state State
		dst   *int
	}{
		{StatePending, &sum.Pending},
		{StateProcessing, &sum.Processing},
		{StateCompleted, &sum.Completed},
		{StateFailed, &sum.Failed},
	}
	for _, c := range counts {
		n, err := s.Count(c.state)
		if err != nil {
			return Summary{}, err
		}
		*c.dst = n
	}
	return sum, nil
}

// Find locates an entry by sequence across the given partitions (all of them
// when none are specified).
func (s *Store) Find(seq uint64, states ...State) (*Entry, State, error) {
	if len(states) == 0 {
		states = allStates
	}
	for _, state := range states {
		names, err := s.listNames(state)
		if err != nil {
			return nil, "", err
		}
		for _, name := range names {
			_, fileSeq, err := ParseFileName(name)
			if err != nil || fileSeq != seq {
				continue
			}
			e, err := s.Read(state, name)
			if err != nil {
				return nil, "", err
			}
			return e, state, nil
		}
	}
	return nil, "", ErrNotFound
}

// MTime returns the last-modified timestamp of an entry in a partition.
// For processing entries this doubles as the implicit lease timestamp.
func (s *Store) MTime(state State, e *Entry) (time.Time, error) {
	info, err := os.Stat(s.entryPath(state, e))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("stat entry: %w", err)
	}
	return info.ModTime(), nil
}
