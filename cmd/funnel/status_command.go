package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"funnel/internal/config"
	"funnel/internal/queue"
	"funnel/internal/workerctl"
)

// statusSnapshot is the JSON shape of `funnel status --json`.
type statusSnapshot struct {
	WorkerRunning bool             `json:"worker_running"`
	WorkerPID     int              `json:"worker_pid,omitempty"`
	Heartbeat     *queue.Heartbeat `json:"heartbeat,omitempty"`
	HeartbeatAge  string           `json:"heartbeat_age,omitempty"`
	Queue         queue.Summary    `json:"queue"`
	Stats         queue.Stats      `json:"stats"`
	QueueDir      string           `json:"queue_dir"`
	DatastorePath string           `json:"datastore_path"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, worker liveness, and lifetime counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := buildStatusSnapshot(ctx, cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	return cmd
}

func buildStatusSnapshot(ctx *commandContext, cfg *config.Config) (*statusSnapshot, error) {
	store, err := ctx.openStore()
	if err != nil {
		return nil, err
	}

	summary, err := store.Summary()
	if err != nil {
		return nil, err
	}

	snapshot := &statusSnapshot{
		Queue:         summary,
		QueueDir:      cfg.Paths.QueueDir,
		DatastorePath: cfg.DatastorePath(),
	}

	running, pid, err := workerctl.Running(cfg)
	if err == nil {
		snapshot.WorkerRunning = running
		snapshot.WorkerPID = pid
	}

	hb, err := store.ReadHeartbeat()
	if err == nil {
		snapshot.Heartbeat = &hb
		snapshot.HeartbeatAge = time.Since(hb.LastActiveAt).Round(time.Second).String()
	} else if !errors.Is(err, queue.ErrNotFound) {
		return nil, err
	}

	stats, err := store.Stats().Read()
	if err != nil {
		return nil, err
	}
	snapshot.Stats = stats

	return snapshot, nil
}
