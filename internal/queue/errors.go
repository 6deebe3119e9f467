package queue

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the entry store cannot accept writes (storage
// full or unreachable). Producers fall back to direct execution.
var ErrUnavailable = errors.New("queue store unavailable")

// ErrLockTimeout indicates the sequencer lock could not be acquired within
// its bounded wait. Treated the same way as ErrUnavailable by producers.
var ErrLockTimeout = errors.New("sequencer lock timeout")

// ErrNotFound indicates no entry with the requested sequence exists in the
// inspected partition.
var ErrNotFound = errors.New("entry not found")

// ValidationError rejects a malformed enqueue request synchronously; the
// request is never queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid entry: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err means the store cannot accept the entry
// and the caller should execute directly against the datastore instead.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrLockTimeout)
}
