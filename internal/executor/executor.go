package executor

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel markers for failure classification. The worker's retry decision
// rests entirely on this boundary: transient failures are retried with
// backoff, permanent ones are dead-lettered immediately.
var (
	ErrTransient = errors.New("transient execution failure")
	ErrPermanent = errors.New("permanent execution failure")
)

// Transient tags err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent tags err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether the failure should skip the retry budget.
// Unclassified errors are treated as transient so nothing is dead-lettered
// on the executor's behalf without an explicit verdict.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Executor applies an entry's payload to the downstream datastore and
// classifies any failure as transient or permanent.
type Executor interface {
	Execute(ctx context.Context, operation, payload string) error
	Ping(ctx context.Context) error
	Close() error
}

// Func adapts a function to the Executor interface, mainly for tests.
type Func func(ctx context.Context, operation, payload string) error

func (f Func) Execute(ctx context.Context, operation, payload string) error {
	return f(ctx, operation, payload)
}

func (f Func) Ping(context.Context) error { return nil }

func (f Func) Close() error { return nil }
