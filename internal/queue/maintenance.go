package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecoverResult reports what an orphan-recovery pass did (or would do, for a
// dry pass).
type RecoverResult struct {
	Requeued int
	Failed   int
}

// Total returns the number of orphans the pass touched.
func (r RecoverResult) Total() int {
	return r.Requeued + r.Failed
}

// RecoverOrphans scans processing for entries whose implicit lease expired
// (mtime older than processingTimeout). Each orphan has its retry count
// incremented and is returned to pending while attempts remain, or moved to
// failed once the budget is exhausted. Safe to run while a worker is active:
// entries the worker is still touching have fresh mtimes, and a lost rename
// race is skipped silently.
func (s *Store) RecoverOrphans(processingTimeout time.Duration, maxRetries int, dryRun bool) (RecoverResult, error) {
	var result RecoverResult
	entries, err := s.List(StateProcessing)
	if err != nil {
		return result, err
	}
	cutoff := time.Now().Add(-processingTimeout)

	for _, e := range entries {
		mtime, err := s.MTime(StateProcessing, e)
		if err != nil {
			continue
		}
		if mtime.After(cutoff) {
			continue
		}

		e.Retries++
		if e.Retries < maxRetries {
			if dryRun {
				result.Requeued++
				continue
			}
			e.LastError = "orphaned: worker lease expired"
			released, err := s.Release(e)
			if err != nil {
				return result, err
			}
			if released {
				result.Requeued++
			}
		} else {
			if dryRun {
				result.Failed++
				continue
			}
			failed, err := s.Fail(e, StateProcessing, fmt.Errorf("orphaned: worker lease expired after %d attempts", e.Retries))
			if err != nil {
				return result, err
			}
			if failed {
				result.Failed++
			}
		}
	}
	return result, nil
}

// Archive moves completed entries older than the retention window into cold
// storage under the archive directory, grouped by completion date.
func (s *Store) Archive(retention time.Duration, dryRun bool) (int, error) {
	if s.archiveDir == "" {
		return 0, fmt.Errorf("archive directory not configured")
	}
	cutoff := time.Now().Add(-retention)
	names, err := s.listNames(StateCompleted)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, name := range names {
		src := filepath.Join(s.dir(StateCompleted), name)
		info, err := os.Stat(src)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		archived++
		if dryRun {
			continue
		}
		day := info.ModTime().UTC().Format("2006-01-02")
		destDir := filepath.Join(s.archiveDir, day)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return archived, fmt.Errorf("create archive directory: %w", err)
		}
		if err := os.Rename(src, filepath.Join(destDir, name)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return archived, fmt.Errorf("archive %s: %w", name, err)
		}
	}
	return archived, nil
}

// Purge deletes failed entries older than the retention window. Dead letters
// are kept for inspection until this window passes; nothing is deleted
// implicitly before then.
func (s *Store) Purge(retention time.Duration, dryRun bool) (int, error) {
	cutoff := time.Now().Add(-retention)
	names, err := s.listNames(StateFailed)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, name := range names {
		path := filepath.Join(s.dir(StateFailed), name)
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		purged++
		if dryRun {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return purged, fmt.Errorf("purge %s: %w", name, err)
		}
	}
	return purged, nil
}

// RotateLog caps the given log file: once it exceeds maxBytes it is renamed
// to path.1 with older rotations shifted up, keeping at most keep rotated
// files. Returns whether a rotation happened (or would happen).
func RotateLog(path string, maxBytes int64, keep int, dryRun bool) (bool, error) {
	if maxBytes <= 0 || keep <= 0 {
		return false, nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() <= maxBytes {
		return false, nil
	}
	if dryRun {
		return true, nil
	}

	// Shift path.(keep-1) -> path.keep, ..., path.1 -> path.2.
	_ = os.Remove(fmt.Sprintf("%s.%d", path, keep))
	for i := keep - 1; i >= 1; i-- {
		older := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(older); err == nil {
			if err := os.Rename(older, fmt.Sprintf("%s.%d", path, i+1)); err != nil {
				return false, fmt.Errorf("shift rotated log: %w", err)
			}
		}
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return false, fmt.Errorf("rotate log: %w", err)
	}
	return true, nil
}
