package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLocksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Show the locks you currently hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			if err := app.registry.Refresh(cmd.Context()); err != nil {
				return err
			}

			snapshot := app.registry.Snapshot()
			out := cmd.OutOrStdout()
			if len(snapshot) == 0 {
				fmt.Fprintln(out, "You hold no locks")
				return nil
			}
			rows := make([][]string, 0, len(snapshot))
			for _, lock := range snapshot {
				rows = append(rows, []string{lock.ItemID, lock.QueueID})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "Item"}, {header: "Queue"}},
				rows,
			))
			return nil
		},
	}

	cmd.AddCommand(newLocksReleaseCommand(ctx))
	return cmd
}

func newLocksReleaseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release <item-id>",
		Short: "Release your lock on an item without deciding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			if err := app.registry.Release(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Released lock on %s\n", args[0])
			return nil
		},
	}
}
