package queue_test

import (
	"errors"
	"testing"
	"time"

	"funnel/internal/queue"
	"funnel/internal/testsupport"
)

func TestHeartbeatRoundTrips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.ReadHeartbeat(); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first write, got %v", err)
	}

	hb := queue.Heartbeat{
		PID:             1234,
		RunID:           "run-1",
		Mode:            "events",
		LastActiveAt:    time.Now().UTC().Truncate(time.Second),
		EventsProcessed: 7,
	}
	if err := store.WriteHeartbeat(hb); err != nil {
		t.Fatalf("WriteHeartbeat failed: %v", err)
	}

	got, err := store.ReadHeartbeat()
	if err != nil {
		t.Fatalf("ReadHeartbeat failed: %v", err)
	}
	if got.PID != hb.PID || got.Mode != hb.Mode || got.EventsProcessed != 7 {
		t.Fatalf("heartbeat mismatch: %+v", got)
	}
	if !got.LastActiveAt.Equal(hb.LastActiveAt) {
		t.Fatalf("timestamp mismatch: %v vs %v", got.LastActiveAt, hb.LastActiveAt)
	}
}
