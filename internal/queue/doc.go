// Package queue persists work entries as JSON files across four state
// partitions (pending, processing, completed, failed) and exposes helpers
// for driving their lifecycle.
//
// State lives in location: an entry belongs to exactly one partition
// directory at any instant, and every transition is a single atomic rename.
// New entries are staged under .staging and published with a rename so
// concurrent readers never observe partial writes; the claim step is a
// rename from pending to processing that doubles as a compare-and-swap,
// losing the race simply means another actor already owns the entry.
//
// The pending filename {priority:02d}_{seq:020d}.json makes a sorted
// directory listing yield priority-major, sequence-minor order, so claim
// order falls out of the filesystem. The sequencer and the stats counters
// are the only pieces guarded by an advisory file lock.
//
// Treat this package as the single source of truth for queue semantics;
// the worker and the maintenance jobs build on its transitions rather than
// touching partition directories directly.
package queue
