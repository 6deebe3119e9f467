package testsupport

import (
	"testing"

	"funnel/internal/config"
	"funnel/internal/queue"
)

// MustOpenStore opens a queue store for the given config, failing the test on
// error.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	return store
}
