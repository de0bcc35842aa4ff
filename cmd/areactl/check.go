package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/internal/logger"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/scheduler"
	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one evaluation pass over every active AREA now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{SeedCatalog: true}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				sched := scheduler.New(rt.Store.Areas(), rt.Evaluator, logger.NewConsole("areactl", logLevelFlag), scheduler.Options{
					Parallelism: rt.Config.Parallelism,
					QueueSize:   rt.Config.QueueSize,
				})
				defer func() { _ = sched.Close() }()

				report, err := sched.RunOnce(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, report)
				}
				return printReport(os.Stdout, report)
			})
		},
	}
	rootCmd.AddCommand(checkCmd)
}

func printReport(w io.Writer, r *scheduler.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "AREA\tNAME\tOUTCOME\tREACTION\tMESSAGE")
	for _, res := range r.Results {
		reaction := "-"
		if res.Outcome == model.OutcomeTriggered {
			reaction = "failed"
			if res.ReactionSuccess {
				reaction = "ok"
			}
		}
		msg := res.Message
		if msg == "" && res.Err != nil {
			msg = res.Err.Error()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", res.AreaID, orDash(res.Name), res.Outcome, reaction, msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d active, %d triggered, %d not triggered, %d errors in %s\n",
		r.Active, r.Triggered, r.NotTriggered, r.Errors, r.Duration.Round(time.Millisecond))
	return err
}

