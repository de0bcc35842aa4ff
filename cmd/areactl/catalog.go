package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/internal/catalog"
	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	catalogCmd := &cobra.Command{Use: "catalog", Short: "Catalog operations"}

	var file string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a catalog file against the registered connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(_ context.Context, rt *schedulerd.Runtime) error {
				cat := rt.Catalog
				if file != "" {
					var err error
					if cat, err = catalog.Load(file); err != nil {
						return err
					}
				}
				if err := cat.Validate(rt.Connectors.Registry); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "catalog OK: %d services\n", len(cat.Services))
				return nil
			})
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "Catalog file (defaults to the configured catalog)")
	catalogCmd.AddCommand(validateCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the configured catalog into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				svcs, caps, err := rt.Catalog.Seed(ctx, rt.Store.Catalog())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "seeded %d services, %d capabilities\n", svcs, caps)
				return nil
			})
		},
	}
	catalogCmd.AddCommand(seedCmd)

	rootCmd.AddCommand(catalogCmd)
}
