package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	credentialsCmd := &cobra.Command{Use: "credentials", Short: "Manage linked service tokens"}

	var (
		userID, service, access, refresh string
		expiresIn                        time.Duration
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access token (and optional refresh token) for a user and service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				if !rt.Connectors.Registry.Exists(service) {
					return fmt.Errorf("unknown service %q", service)
				}
				if err := rt.Credentials.Link(ctx, userID, service, access, refresh, expiresIn); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "linked %s for %s\n", service, userID)
				return nil
			})
		},
	}
	setCmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	setCmd.Flags().StringVarP(&service, "service", "s", "", "Service name, e.g. Spotify")
	setCmd.Flags().StringVar(&access, "access-token", "", "OAuth access token")
	setCmd.Flags().StringVar(&refresh, "refresh-token", "", "OAuth refresh token")
	setCmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Access token lifetime; zero means no expiry")
	for _, f := range []string{"user", "service", "access-token"} {
		_ = setCmd.MarkFlagRequired(f)
	}
	credentialsCmd.AddCommand(setCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete USER_ID SERVICE",
		Short: "Unlink a service for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				return rt.Store.Credentials().Delete(ctx, args[0], args[1])
			})
		},
	}
	credentialsCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(credentialsCmd)
}
