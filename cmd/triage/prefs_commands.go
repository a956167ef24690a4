package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/prefs"
)

var knownScreens = []string{screenQueues, screenLocks, screenItems}

func newPrefsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Per-screen preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			store, err := prefs.Open(app.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rows := make([][]string, 0, len(knownScreens))
			for _, screen := range knownScreens {
				enabled, err := store.AutoRefreshEnabled(cmd.Context(), screen)
				if err != nil {
					return err
				}
				rows = append(rows, []string{screen, yesNo(enabled)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{{header: "Screen", captioned: true}, {header: "Auto-Refresh"}},
				rows,
			))
			return nil
		},
	}

	cmd.AddCommand(newPrefsAutoRefreshCommand(ctx))
	return cmd
}

func newPrefsAutoRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-refresh <screen> <on|off>",
		Short: "Toggle auto-refresh for a screen",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			screen := args[0]
			var enabled bool
			switch args[1] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("value must be on or off, got %q", args[1])
			}

			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			store, err := prefs.Open(app.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetAutoRefresh(cmd.Context(), screen, enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Auto-refresh for %s: %s\n", screen, yesNo(enabled))
			return nil
		},
	}
}
