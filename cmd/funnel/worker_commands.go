package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"funnel/internal/executor"
	"funnel/internal/logging"
	"funnel/internal/queue"
	"funnel/internal/worker"
	"funnel/internal/workerctl"
)

const (
	workerStartTimeout = 10 * time.Second
	workerStopGrace    = 30 * time.Second
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Control the queue worker daemon",
	}

	workerCmd.AddCommand(newWorkerStartCommand(ctx))
	workerCmd.AddCommand(newWorkerStopCommand(ctx))
	workerCmd.AddCommand(newWorkerRestartCommand(ctx))
	workerCmd.AddCommand(newWorkerStatusCommand(ctx))
	workerCmd.AddCommand(newWorkerOnceCommand(ctx))

	return workerCmd
}

func newWorkerStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the worker daemon if it is not already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := workerDaemonPath()
			if err != nil {
				return err
			}
			result, err := workerctl.EnsureStarted(cfg, exe, ctx.configPath(), workerStartTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case workerctl.StartStateAlreadyRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "Worker already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Worker started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
}

func newWorkerStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal the worker to drain and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := workerctl.Stop(cfg, workerStopGrace)
			if errors.Is(err, workerctl.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Worker not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Worker (pid %d) did not drain in time and was killed\n", result.PID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Worker stopped (pid %d)\n", result.PID)
			}
			return nil
		},
	}
}

func newWorkerRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the worker if running, then start a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := workerDaemonPath()
			if err != nil {
				return err
			}
			result, err := workerctl.Restart(cfg, exe, ctx.configPath(), workerStopGrace, workerStartTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Worker restarted (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newWorkerStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report worker liveness and last heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := workerctl.Running(cfg)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			hb, hbErr := store.ReadHeartbeat()

			if jsonOut {
				out := struct {
					Running   bool             `json:"running"`
					PID       int              `json:"pid,omitempty"`
					Heartbeat *queue.Heartbeat `json:"heartbeat,omitempty"`
				}{Running: running, PID: pid}
				if hbErr == nil {
					out.Heartbeat = &hb
				}
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			if running {
				fmt.Fprintf(w, "Worker running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(w, "Worker not running")
			}
			if hbErr == nil {
				fmt.Fprintf(w, "Last heartbeat: run %s, wake %s, %s ago, %d processed\n",
					hb.RunID, hb.Mode, time.Since(hb.LastActiveAt).Round(time.Second), hb.EventsProcessed)
			} else if errors.Is(hbErr, queue.ErrNotFound) {
				fmt.Fprintln(w, "No heartbeat recorded yet")
			} else {
				return hbErr
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output worker status as JSON")
	return cmd
}

// newWorkerOnceCommand runs a single batch in the foreground. Unlike start,
// this executes in-process so scripts get the worker's exit status.
func newWorkerOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Process a single batch in the foreground, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			exec, err := executor.NewSQLite(cfg)
			if err != nil {
				return err
			}
			defer exec.Close()

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stdout"},
			})
			if err != nil {
				return err
			}

			w := worker.New(cfg, store, exec, logger)
			if err := w.RunOnce(cmd.Context()); errors.Is(err, worker.ErrAlreadyRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Worker already running; leaving the batch to it")
				return nil
			} else if err != nil {
				return err
			}
			return nil
		},
	}
}
