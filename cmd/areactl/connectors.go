package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	connectorsCmd := &cobra.Command{
		Use:   "connectors",
		Short: "List registered connectors with their triggers and reactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(_ context.Context, rt *schedulerd.Runtime) error {
				descs := rt.Connectors.Registry.Descriptors()
				if jsonFlag {
					return printJSON(os.Stdout, descs)
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "SERVICE\tAUTH\tFIRST RUN\tTRIGGERS\tREACTIONS")
				for _, d := range descs {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.AuthType, d.FirstRun,
						orDash(strings.Join(d.Triggers, ",")), orDash(strings.Join(d.Effects, ",")))
				}
				return tw.Flush()
			})
		},
	}
	rootCmd.AddCommand(connectorsCmd)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
