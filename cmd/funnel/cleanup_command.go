package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"funnel/internal/logging"
	"funnel/internal/queue"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Queue maintenance: archive, purge, recover, rotate",
	}

	cleanupCmd.AddCommand(newCleanupArchiveCommand(ctx))
	cleanupCmd.AddCommand(newCleanupPurgeCommand(ctx))
	cleanupCmd.AddCommand(newCleanupRecoverCommand(ctx))
	cleanupCmd.AddCommand(newCleanupRotateCommand(ctx))

	return cleanupCmd
}

func newCleanupArchiveCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var retentionHours int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move old completed entries into the archive directory",
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
			retention := resolveRetention(retentionHours, cfg.Maintenance.ArchiveRetentionHours)
			moved, err := store.Archive(retention, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%d completed entries older than %s\n",
				dryRunPrefix(dryRun, "Would archive ", "Archived "), moved, retention)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without touching anything")
	cmd.Flags().IntVar(&retentionHours, "retention-hours", 0, "Override configured archive retention")
	return cmd
}

func newCleanupPurgeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var retentionHours int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old failed entries permanently",
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
			retention := resolveRetention(retentionHours, cfg.Maintenance.PurgeRetentionHours)
			removed, err := store.Purge(retention, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%d failed entries older than %s\n",
				dryRunPrefix(dryRun, "Would purge ", "Purged "), removed, retention)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without touching anything")
	cmd.Flags().IntVar(&retentionHours, "retention-hours", 0, "Override configured purge retention")
	return cmd
}

func newCleanupRecoverCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Requeue or fail entries stranded in the processing partition",
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
			timeout := time.Duration(cfg.Worker.ProcessingTimeoutSeconds) * time.Second
			result, err := store.RecoverOrphans(timeout, cfg.Worker.MaxRetries, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%d orphans (%d requeued, %d failed)\n",
				dryRunPrefix(dryRun, "Would recover ", "Recovered "), result.Total(), result.Requeued, result.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without touching anything")
	return cmd
}

func newCleanupRotateCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the worker log if it exceeds the configured size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			maxBytes := int64(cfg.Maintenance.WorkerLogMaxMiB) << 20
			rotated, err := queue.RotateLog(cfg.WorkerLogPath(), maxBytes, cfg.Maintenance.RotatedLogKeep, dryRun)
			if err != nil {
				return err
			}
			if !dryRun {
				logging.CleanupOldLogs(logging.NewNop(), cfg.Logging.RetentionDays, logging.RetentionTarget{
					Dir:     cfg.Paths.LogDir,
					Pattern: "worker.log.*",
					Exclude: []string{cfg.WorkerLogPath()},
				})
			}
			out := cmd.OutOrStdout()
			switch {
			case rotated && dryRun:
				fmt.Fprintln(out, "Would rotate worker log")
			case rotated:
				fmt.Fprintln(out, "Rotated worker log")
			default:
				fmt.Fprintln(out, "Worker log under size limit; nothing to do")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without touching anything")
	return cmd
}

func resolveRetention(overrideHours, configuredHours int) time.Duration {
	hours := configuredHours
	if overrideHours > 0 {
		hours = overrideHours
	}
	return time.Duration(hours) * time.Hour
}

func dryRunPrefix(dryRun bool, would, did string) string {
	if dryRun {
		return would
	}
	return did
}
