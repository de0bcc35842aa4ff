package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history AREA_ID",
		Short: "Show the most recent execution records of an AREA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				if _, err := rt.Store.Areas().Get(ctx, args[0]); err != nil {
					return err
				}
				items, err := rt.Store.Executions().List(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, items)
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "EXECUTED AT\tOUTCOME\tSUCCESS\tMESSAGE")
				for _, e := range items {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", e.ExecutedAt.Format("2006-01-02 15:04:05Z07:00"), e.Outcome, e.Success, e.Message)
				}
				return tw.Flush()
			})
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records")
	rootCmd.AddCommand(historyCmd)
}
