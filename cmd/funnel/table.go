package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"funnel/internal/queue"
)

// partitionTable renders the per-partition entry counts as a rounded
// two-column table, counts right-aligned.
func partitionTable(sum queue.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Partition", "Entries"})
	tw.AppendRows([]table.Row{
		{string(queue.StatePending), sum.Pending},
		{string(queue.StateProcessing), sum.Processing},
		{string(queue.StateCompleted), sum.Completed},
		{string(queue.StateFailed), sum.Failed},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
