package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const heartbeatFileName = ".heartbeat"

// Heartbeat is the worker's liveness record, overwritten atomically once per
// wake cycle. Mode reports the active wake mechanism so monitoring can tell
// an event-driven worker from one that downgraded to polling.
type Heartbeat struct {
	PID             int       `json:"pid"`
	RunID           string    `json:"run_id"`
	Mode            string    `json:"mode"`
	LastActiveAt    time.Time `json:"last_active_at"`
	EventsProcessed uint64    `json:"events_processed"`
}

// WriteHeartbeat replaces the heartbeat record. Readers see either the old
// or the new complete value.
func (s *Store) WriteHeartbeat(hb Heartbeat) error {
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	path := filepath.Join(s.root, heartbeatFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace heartbeat: %w", err)
	}
	return nil
}

// ReadHeartbeat returns the last persisted heartbeat, or ErrNotFound when no
// worker has written one yet.
func (s *Store) ReadHeartbeat() (Heartbeat, error) {
	data, err := os.ReadFile(filepath.Join(s.root, heartbeatFileName))
	if os.IsNotExist(err) {
		return Heartbeat{}, ErrNotFound
	}
	if err != nil {
		return Heartbeat{}, fmt.Errorf("read heartbeat: %w", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return Heartbeat{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return hb, nil
}
