package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/schedulerd"
)

func init() {
	areasCmd := &cobra.Command{Use: "areas", Short: "Manage AREAs"}

	var (
		userID, name, action, reaction string
		actionParams, reactionParams   string
		inactive                       bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an AREA from an action and a reaction (Service:identifier)",
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := parseBinding(action, model.KindAction)
			if err != nil {
				return err
			}
			re, err := parseBinding(reaction, model.KindReaction)
			if err != nil {
				return err
			}
			ap, err := parseParams(actionParams)
			if err != nil {
				return errors.Wrap(err, "action params")
			}
			rp, err := parseParams(reactionParams)
			if err != nil {
				return errors.Wrap(err, "reaction params")
			}
			return withRuntime(cmd, schedulerd.BootstrapOptions{SeedCatalog: true}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				a, err := rt.Store.Areas().Create(ctx, &model.Area{
					UserID:         userID,
					Name:           name,
					Action:         act,
					Reaction:       re,
					ActionParams:   ap,
					ReactionParams: rp,
					Active:         !inactive,
				})
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, a)
				}
				_, _ = fmt.Fprintln(os.Stdout, a.AreaID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id")
	createCmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	createCmd.Flags().StringVar(&action, "action", "", "Trigger as Service:identifier, e.g. Timer:timer_every_x_minutes")
	createCmd.Flags().StringVar(&reaction, "reaction", "", "Effect as Service:identifier, e.g. Discord:send_message")
	createCmd.Flags().StringVar(&actionParams, "action-params", "", "Trigger parameters as a JSON object")
	createCmd.Flags().StringVar(&reactionParams, "reaction-params", "", "Effect parameters as a JSON object")
	createCmd.Flags().BoolVar(&inactive, "inactive", false, "Create the AREA disabled")
	_ = createCmd.MarkFlagRequired("user")
	_ = createCmd.MarkFlagRequired("action")
	_ = createCmd.MarkFlagRequired("reaction")
	areasCmd.AddCommand(createCmd)

	var listUser string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List AREAs of a user, or every active AREA when no user is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				var (
					items []*model.Area
					err   error
				)
				if listUser == "" {
					items, err = rt.Store.Areas().ListActive(ctx)
				} else {
					items, err = rt.Store.Areas().List(ctx, listUser)
				}
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, items)
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tUSER\tNAME\tACTION\tREACTION\tACTIVE\tLAST FIRED")
				for _, a := range items {
					last := "never"
					if a.LastExecutedAt != nil {
						last = a.LastExecutedAt.Format("2006-01-02 15:04:05Z07:00")
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s:%s\t%s:%s\t%t\t%s\n", a.AreaID, a.UserID, orDash(a.Name),
						a.Action.Service, a.Action.Identifier, a.Reaction.Service, a.Reaction.Identifier, a.Active, last)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "Owning user id")
	areasCmd.AddCommand(listCmd)

	areasCmd.AddCommand(setActiveCmd("enable", "Resume evaluation of an AREA", true))
	areasCmd.AddCommand(setActiveCmd("disable", "Stop evaluating an AREA", false))

	deleteCmd := &cobra.Command{
		Use:   "delete AREA_ID",
		Short: "Delete an AREA and its execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				return rt.Store.Areas().Delete(ctx, args[0])
			})
		},
	}
	areasCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(areasCmd)
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " AREA_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, schedulerd.BootstrapOptions{}, func(ctx context.Context, rt *schedulerd.Runtime) error {
				return rt.Store.Areas().SetActive(ctx, args[0], active)
			})
		},
	}
}

// parseBinding turns "Service:identifier" into a catalog binding.
func parseBinding(ref string, kind model.CapabilityKind) (model.Binding, error) {
	service, identifier, ok := strings.Cut(ref, ":")
	service, identifier = strings.TrimSpace(service), strings.TrimSpace(identifier)
	if !ok || service == "" || identifier == "" {
		return model.Binding{}, errors.Errorf("%s %q: want Service:identifier", kind, ref)
	}
	return model.Binding{
		CapabilityID: model.CapabilityID(service, kind, identifier),
		Service:      service,
		Identifier:   identifier,
	}, nil
}

func parseParams(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
