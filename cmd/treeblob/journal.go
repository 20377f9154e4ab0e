package main

import (
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Ning0612/treeblob/internal/journal"
	"github.com/Ning0612/treeblob/internal/progress"
)

func (a *app) journalCommand() *cobra.Command {
	var limit int
	var failed bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent blob moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			records, err := svc.History(cmd.Context(), limit, failed)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("No moves recorded")
				return nil
			}

			printJournal(cmd, records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of moves to show")
	cmd.Flags().BoolVar(&failed, "failed", false, "only show failed moves")
	return cmd
}

func printJournal(cmd *cobra.Command, records []journal.MoveRecord) {
	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Time", "Status", "Method", "Source", "Target", "Size", "Duration", "Speed", "Error"})
	out.SetAutoWrapText(false)
	out.SetBorder(false)

	for _, r := range records {
		out.Append([]string{
			r.StartTime.Local().Format(time.DateTime),
			string(r.Status),
			string(r.Method),
			r.Source,
			r.Target,
			progress.FormatBytes(r.Bytes),
			r.Duration().Round(time.Millisecond).String(),
			moveSpeed(r),
			r.Error,
		})
	}

	out.Render()
}

// moveSpeed is "-" for moves that copied nothing
func moveSpeed(r journal.MoveRecord) string {
	secs := r.Duration().Seconds()
	if r.Bytes == 0 || secs <= 0 {
		return "-"
	}
	return progress.FormatSpeed(float64(r.Bytes) / secs)
}
