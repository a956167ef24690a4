package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/review"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var allPages bool

	cmd := &cobra.Command{
		Use:   "items <queue-id>",
		Short: "List the work items of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			queueID := args[0]

			items, more, err := app.dir.FetchItemsPage(cmd.Context(), queueID)
			if err != nil {
				return err
			}
			for allPages && more {
				items, more, err = app.dir.FetchItemsPage(cmd.Context(), queueID)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue has no items")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "ID"}, {header: "Status"}, {header: "Locked By"}, {header: "Tags"}},
				buildItemRows(items, app.user.ID),
			))
			if more {
				fmt.Fprintln(out, "More items available; rerun with --all to fetch every page")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allPages, "all", false, "Fetch every page instead of the first")
	return cmd
}

func buildItemRows(items []review.WorkItem, userID string) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		lockedBy := item.LockedBy
		if lockedBy == userID {
			lockedBy = "you"
		}
		status := caption(string(item.Status))
		if !item.Active {
			status += " (inactive)"
		}
		rows = append(rows, []string{
			item.ID,
			status,
			lockedBy,
			strings.Join(item.Tags, ", "),
		})
	}
	return rows
}
