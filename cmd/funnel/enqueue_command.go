package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"funnel/internal/executor"
	"funnel/internal/queue"
	"funnel/internal/workerctl"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var priority int
	var metaFlags []string
	var noAutostart bool

	cmd := &cobra.Command{
		Use:   "enqueue <operation> <payload>",
		Short: "Queue a write for the worker (pass '-' to read the payload from stdin)",
		Long: "Queue a write for the worker to apply to the datastore.\n\n" +
			"Enqueue never blocks on the datastore. If the queue store itself is\n" +
			"unavailable the write is executed directly against the datastore\n" +
			"instead, so the caller still gets a durable outcome.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			operation := strings.TrimSpace(args[0])
			payload := args[1]
			if payload == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload from stdin: %w", err)
				}
				payload = string(data)
			}

			metadata, err := parseMetadata(metaFlags)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return executeDirect(cmd, ctx, operation, payload, err)
			}

			entry, err := store.Enqueue(cmd.Context(), operation, payload, priority, metadata)
			if err != nil {
				if queue.IsUnavailable(err) {
					return executeDirect(cmd, ctx, operation, payload, err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued entry %d (priority %d)\n", entry.Seq, entry.Priority)

			if cfg.Worker.Autostart && !noAutostart {
				autostartWorker(cmd, ctx)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 5, "Entry priority (1 highest, 10 lowest)")
	cmd.Flags().StringArrayVarP(&metaFlags, "meta", "m", nil, "Metadata as key=value (repeatable)")
	cmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "Do not launch a worker even if autostart is configured")
	return cmd
}

// executeDirect is the fallback path when the queue store cannot accept the
// entry: apply the write synchronously so it is not lost.
func executeDirect(cmd *cobra.Command, ctx *commandContext, operation, payload string, cause error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	exec, err := executor.NewSQLite(cfg)
	if err != nil {
		return fmt.Errorf("queue unavailable (%v) and datastore fallback failed: %w", cause, err)
	}
	defer exec.Close()

	if err := exec.Execute(cmd.Context(), operation, payload); err != nil {
		return fmt.Errorf("queue unavailable (%v) and direct execution failed: %w", cause, err)
	}
	// Best effort: the counter file does not depend on the store handle, so
	// the direct write is recorded even when opening the store failed.
	_ = queue.NewStatsFile(cfg.Paths.QueueDir).Increment(queue.CounterDirect)
	fmt.Fprintf(cmd.OutOrStdout(), "Queue unavailable; executed directly against the datastore\n")
	return nil
}

// autostartWorker launches a detached worker after a successful enqueue.
// Best effort: a failure to launch leaves the entry queued for the next
// worker and must not fail the enqueue.
func autostartWorker(cmd *cobra.Command, ctx *commandContext) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return
	}
	running, _, err := workerctl.Running(cfg)
	if err != nil || running {
		return
	}
	exe, err := workerDaemonPath()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: cannot autostart worker: %v\n", err)
		return
	}
	if err := workerctl.Launch(exe, ctx.configPath()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: worker autostart failed: %v\n", err)
		return
	}
	// Don't block the producer; the worker announces itself via heartbeat.
	_, _ = workerctl.WaitForStart(cfg, 2*time.Second)
}

// workerDaemonPath resolves the funneld binary, preferring a sibling of the
// current executable.
func workerDaemonPath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	sibling := strings.TrimSuffix(self, "funnel") + "funneld"
	if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
		return sibling, nil
	}
	return "funneld", nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
