package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/logger"
	"github.com/areahq/area-engine/schedulerd"
)

var (
	logLevelFlag string
	jsonFlag     bool
	rootCmd      = &cobra.Command{
		Use:           "areactl",
		Short:         "Operate the AREA engine: run passes, manage AREAs and the catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&logLevelFlag, "log-level", "l", "warn", "Log level for engine diagnostics")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withRuntime loads configuration from the environment, bootstraps the
// engine and hands it to fn. The runtime is closed afterwards.
func withRuntime(cmd *cobra.Command, opts schedulerd.BootstrapOptions, fn func(ctx context.Context, rt *schedulerd.Runtime) error) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	log := logger.NewConsole("areactl", logLevelFlag)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := schedulerd.Bootstrap(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(ctx, rt)
}
