package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Claim attempts to move an entry from pending to processing. The rename is
// the compare-and-swap: if the entry is no longer present another actor
// already claimed it, which is reported as ok=false, not an error.
func (s *Store) Claim(e *Entry) (bool, error) {
	src := s.entryPath(StatePending, e)
	dst := s.entryPath(StateProcessing, e)
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim entry %d: %w", e.Seq, err)
	}
	// Refresh the mtime so the lease window starts at claim time, not at
	// enqueue time.
	now := time.Now()
	_ = os.Chtimes(dst, now, now)
	return true, nil
}

// Complete moves a processing entry to completed and bumps the processed
// counter.
func (s *Store) Complete(e *Entry) error {
	if err := s.move(e, StateProcessing, StateCompleted); err != nil {
		return err
	}
	_ = s.stats.Increment(CounterProcessed)
	return nil
}

// Retry returns a processing entry to pending after a transient failure.
// The rename out of processing is the compare-and-swap: when the entry is
// already gone (recovery beat us to it) nothing is written and ok=false is
// returned. On the winning path the retry count, last error, and
// backoff-derived not-before timestamp are persisted while the entry sits in
// staging, so it is never visible in two partitions at once. A positive
// priorityBump raises the ordering key (lower number) for the requeued
// attempt.
func (s *Store) Retry(e *Entry, execErr error, notBefore time.Time, priorityBump int) (bool, error) {
	staged, ok, err := s.withdraw(s.entryPath(StateProcessing, e), e)
	if err != nil || !ok {
		return false, err
	}

	e.Retries++
	e.LastError = errString(execErr)
	if notBefore.IsZero() {
		e.NotBefore = nil
	} else {
		nb := notBefore.UTC()
		e.NotBefore = &nb
	}
	if priorityBump > 0 {
		bumped := e.Priority - priorityBump
		if bumped < PriorityMin {
			bumped = PriorityMin
		}
		e.Priority = bumped
	}

	if err := s.land(staged, e, StatePending); err != nil {
		return false, err
	}
	_ = s.stats.Increment(CounterRetried)
	return true, nil
}

// Fail moves an entry from the given partition to failed, recording the
// error. Used for exhausted retries, permanent failures, and orphans whose
// retry budget ran out. A lost rename race is reported as ok=false.
func (s *Store) Fail(e *Entry, from State, execErr error) (bool, error) {
	staged, ok, err := s.withdraw(s.entryPath(from, e), e)
	if err != nil || !ok {
		return false, err
	}
	e.LastError = errString(execErr)
	if err := s.land(staged, e, StateFailed); err != nil {
		return false, err
	}
	_ = s.stats.Increment(CounterFailed)
	return true, nil
}

// Release returns a processing entry to pending, persisting whatever fields
// the caller mutated but recording no retry stat. Orphan recovery uses this
// after adjusting the retry count itself. A lost rename race is reported as
// ok=false.
func (s *Store) Release(e *Entry) (bool, error) {
	staged, ok, err := s.withdraw(s.entryPath(StateProcessing, e), e)
	if err != nil || !ok {
		return false, err
	}
	if err := s.land(staged, e, StatePending); err != nil {
		return false, err
	}
	return true, nil
}

// Requeue resets a failed entry and returns it to pending for another run.
// Operator tool for dead-letter replay.
func (s *Store) Requeue(seq uint64) (*Entry, error) {
	e, _, err := s.Find(seq, StateFailed)
	if err != nil {
		return nil, err
	}
	staged, ok, err := s.withdraw(s.entryPath(StateFailed, e), e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	e.Retries = 0
	e.LastError = ""
	e.NotBefore = nil
	if err := s.land(staged, e, StatePending); err != nil {
		return nil, err
	}
	return e, nil
}

// QuarantineMalformed moves files that no longer decode or validate out of
// the given partition into failed, so a corrupt record cannot wedge the
// worker. Returns the quarantined filenames.
func (s *Store) QuarantineMalformed(state State) ([]string, error) {
	names, err := s.listNames(state)
	if err != nil {
		return nil, err
	}
	var moved []string
	for _, name := range names {
		src := filepath.Join(s.dir(state), name)
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err == nil && e.Validate() == nil {
			continue
		}
		if err := os.Rename(src, filepath.Join(s.dir(StateFailed), name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return moved, fmt.Errorf("quarantine %s: %w", name, err)
		}
		moved = append(moved, name)
	}
	return moved, nil
}

// move renames an entry between partitions without touching its contents.
func (s *Store) move(e *Entry, from, to State) error {
	if err := os.Rename(s.entryPath(from, e), s.entryPath(to, e)); err != nil {
		return fmt.Errorf("move entry %d from %s to %s: %w", e.Seq, from, to, err)
	}
	return nil
}

// withdraw renames an entry file out of its partition into the staging area.
// The rename is the compare-and-swap: ENOENT means another actor moved the
// entry first, reported as ok=false. The staged path is returned so the
// caller can rewrite the entry there before landing it.
func (s *Store) withdraw(src string, e *Entry) (string, bool, error) {
	staged := filepath.Join(s.root, stagingDirName, fmt.Sprintf("%d-%s", os.Getpid(), e.FileName()))
	if err := os.Rename(src, staged); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("withdraw entry %d: %w", e.Seq, err)
	}
	return staged, true, nil
}

// land serializes the mutated entry over its staged file and renames it into
// the target partition.
func (s *Store) land(staged string, e *Entry, to State) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return fmt.Errorf("%w: stage entry: %v", ErrUnavailable, err)
	}
	if err := os.Rename(staged, s.entryPath(to, e)); err != nil {
		return fmt.Errorf("land entry %d in %s: %w", e.Seq, to, err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
