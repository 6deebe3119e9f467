package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State identifies the partition an entry currently lives in.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// PriorityMin and PriorityMax bound the accepted priority range;
// lower values are claimed first.
const (
	PriorityMin = 1
	PriorityMax = 10
)

var allStates = []State{StatePending, StateProcessing, StateCompleted, StateFailed}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return normalized, true
	}
	return "", false
}

// Entry represents one unit of queued work. Seq, Priority, Operation,
// Payload, and Metadata are fixed at enqueue time; only Retries, LastError,
// and NotBefore change across the lifecycle.
type Entry struct {
	Seq       uint64            `json:"seq"`
	Priority  int               `json:"priority"`
	Operation string            `json:"operation"`
	Payload   string            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Retries   int               `json:"retries"`
	LastError string            `json:"last_error,omitempty"`
	NotBefore *time.Time        `json:"not_before,omitempty"`
}

// FileName returns the ordering key the entry is stored under:
// {priority:02d}_{seq:020d}.json. Zero padding keeps lexicographic
// directory order equal to (priority, seq) numeric order.
func (e *Entry) FileName() string {
	return fmt.Sprintf("%02d_%020d.json", e.Priority, e.Seq)
}

// ParseFileName extracts priority and sequence from an entry filename.
func ParseFileName(name string) (priority int, seq uint64, err error) {
	base := strings.TrimSuffix(name, ".json")
	if base == name {
		return 0, 0, fmt.Errorf("entry filename %q: missing .json suffix", name)
	}
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("entry filename %q: want {priority}_{seq}", name)
	}
	priority, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("entry filename %q: priority: %w", name, err)
	}
	seq, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("entry filename %q: seq: %w", name, err)
	}
	return priority, seq, nil
}

// Validate checks the schema constraints enforced at every read boundary.
// Entries failing validation are routed to the failed partition rather than
// crashing the worker.
func (e *Entry) Validate() error {
	if e.Seq == 0 {
		return &ValidationError{Field: "seq", Reason: "must be assigned"}
	}
	if e.Priority < PriorityMin || e.Priority > PriorityMax {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be between %d and %d, got %d", PriorityMin, PriorityMax, e.Priority)}
	}
	if strings.TrimSpace(e.Operation) == "" {
		return &ValidationError{Field: "operation", Reason: "must not be empty"}
	}
	if e.Retries < 0 {
		return &ValidationError{Field: "retries", Reason: "must not be negative"}
	}
	return nil
}

// Eligible reports whether the entry may be claimed at the given instant.
// Entries carrying a backoff-derived not-before timestamp stay in pending
// until it passes.
func (e *Entry) Eligible(now time.Time) bool {
	return e.NotBefore == nil || !now.Before(*e.NotBefore)
}

// Summary describes aggregated entry counts per partition.
type Summary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the number of entries across all partitions.
func (s Summary) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed
}
