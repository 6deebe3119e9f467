package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	seqFileName    = ".seq"
	seqLockName    = ".seq.lock"
	seqLockTimeout = 2 * time.Second
	seqLockRetry   = 10 * time.Millisecond
)

// Sequencer hands out globally unique, strictly increasing entry identifiers
// across all producer processes on the host, surviving restarts. The counter
// lives in a single file guarded by an advisory lock; the critical section is
// read-increment-replace and nothing else.
type Sequencer struct {
	counterPath string
	lock        *flock.Flock
}

// NewSequencer builds a sequencer rooted at the queue directory.
func NewSequencer(queueDir string) *Sequencer {
	return &Sequencer{
		counterPath: filepath.Join(queueDir, seqFileName),
		lock:        flock.New(filepath.Join(queueDir, seqLockName)),
	}
}

// NextSeq returns the next identifier. If the lock cannot be acquired within
// the bounded wait it returns ErrLockTimeout so the producer can fall back to
// direct execution.
func (s *Sequencer) NextSeq(ctx context.Context) (uint64, error) {
	lockCtx, cancel := context.WithTimeout(ctx, seqLockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(lockCtx, seqLockRetry)
	if err != nil {
		if lockCtx.Err() != nil && ctx.Err() == nil {
			return 0, ErrLockTimeout
		}
		return 0, fmt.Errorf("acquire sequencer lock: %w", err)
	}
	if !ok {
		return 0, ErrLockTimeout
	}
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.write(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Current returns the last issued identifier without advancing the counter.
func (s *Sequencer) Current() (uint64, error) {
	return s.read()
}

func (s *Sequencer) read() (uint64, error) {
	data, err := os.ReadFile(s.counterPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence counter: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence counter %q: %w", trimmed, err)
	}
	return value, nil
}

func (s *Sequencer) write(value uint64) error {
	tmp := s.counterPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(value, 10)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write sequence counter: %w", err)
	}
	if err := os.Rename(tmp, s.counterPath); err != nil {
		return fmt.Errorf("replace sequence counter: %w", err)
	}
	return nil
}
