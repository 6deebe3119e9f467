package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"funnel/internal/queue"
)

// newRequeueCommand sends a failed entry back to pending with its retry
// budget reset, for operator-driven replays after the underlying fault is
// fixed.
func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <seq>",
		Short: "Move a failed entry back to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", args[0], err)
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			entry, err := store.Requeue(seq)
			if errors.Is(err, queue.ErrNotFound) {
				return fmt.Errorf("no failed entry with sequence %d", seq)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued entry %d (priority %d)\n", entry.Seq, entry.Priority)
			return nil
		},
	}
}
