package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"funnel/internal/logging"
)

// Wake mode labels persisted into the heartbeat.
const (
	ModeEvents  = "events"
	ModePolling = "polling"
)

// WakeSource tells an idle worker that new work may be available. Wait
// returns woken=true when an event fired and false on timeout; a non-nil
// error means the source died and the caller should downgrade to polling.
type WakeSource interface {
	Wait(ctx context.Context, timeout time.Duration) (woken bool, err error)
	Mode() string
	Close() error
}

// NewWakeSource selects an implementation for the configured mode. "auto"
// prefers file-change events and quietly falls back to polling when the
// platform refuses a watcher.
func NewWakeSource(mode, pendingDir string, logger *slog.Logger) (WakeSource, error) {
	switch mode {
	case ModePolling:
		return pollingSource{}, nil
	case ModeEvents:
		return newEventSource(pendingDir)
	default: // auto
		source, err := newEventSource(pendingDir)
		if err != nil {
			if logger != nil {
				logger.Warn("file watcher unavailable; falling back to polling",
					logging.Error(err),
					logging.String(logging.FieldEventType, "wake_source_fallback"),
				)
			}
			return pollingSource{}, nil
		}
		return source, nil
	}
}

// pollingSource wakes on a fixed interval regardless of activity. The
// guaranteed-correct fallback: it never misses work, it just notices late.
type pollingSource struct{}

func (pollingSource) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, nil
	case <-timer.C:
		return false, nil
	}
}

func (pollingSource) Mode() string { return ModePolling }

func (pollingSource) Close() error { return nil }

// eventSource wakes immediately when the pending partition changes. Wait
// still bounds itself by the poll interval so backoff-delayed retries get
// re-evaluated even with no new entries arriving.
type eventSource struct {
	watcher *fsnotify.Watcher
}

func newEventSource(pendingDir string) (*eventSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(pendingDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &eventSource{watcher: watcher}, nil
}

func (s *eventSource) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-timer.C:
			return false, nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return false, errors.New("watcher event channel closed")
			}
			// Entries arrive via rename out of .staging; retries re-enter
			// pending the same way.
			if event.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				return true, nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return false, errors.New("watcher error channel closed")
			}
			return false, err
		}
	}
}

func (s *eventSource) Mode() string { return ModeEvents }

func (s *eventSource) Close() error { return s.watcher.Close() }
