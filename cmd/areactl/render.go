package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/areahq/area-engine/internal/templating"
)

func init() {
	var (
		payload string
		at      string
		vars    bool
	)
	renderCmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a reaction template against a trigger payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return errors.Wrap(err, "--at")
				}
				now = t
			}
			return renderTemplate(cmd.OutOrStdout(), args[0], payload, now, vars)
		},
	}
	renderCmd.Flags().StringVarP(&payload, "payload", "p", "{}", "Trigger payload as a JSON object")
	renderCmd.Flags().StringVar(&at, "at", "", "Render time (RFC3339); defaults to now")
	renderCmd.Flags().BoolVar(&vars, "vars", false, "Also print the variable set")
	rootCmd.AddCommand(renderCmd)
}

func renderTemplate(w io.Writer, tmpl, payload string, now time.Time, showVars bool) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return errors.Wrap(err, "payload")
	}
	vs := templating.BuildVariables(data, now)
	if showVars {
		keys := make([]string, 0, len(vs))
		for k := range vs {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s=%s\n", k, vs[k])
		}
		_, _ = fmt.Fprintln(w)
	}
	_, err := fmt.Fprintln(w, templating.NormalizeNewlines(templating.Render(tmpl, vs)))
	return err
}
