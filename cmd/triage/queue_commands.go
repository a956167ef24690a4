package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/review"
)

func newQueuesCommand(ctx *commandContext) *cobra.Command {
	var viewFlag string

	cmd := &cobra.Command{
		Use:   "queues",
		Short: "List the queues visible in a view",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, ok := review.ParseViewType(viewFlag)
			if !ok {
				return fmt.Errorf("unknown view %q (use regular or escalation)", viewFlag)
			}

			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			if err := app.dir.RefreshQueues(cmd.Context(), view); err != nil {
				return err
			}

			queues := app.dir.Queues(view)
			if len(queues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No queues in this view")
				return nil
			}
			out := renderTable(
				[]column{
					{header: "ID"},
					{header: "Name"},
					{header: "Items", numeric: true},
					{header: "Order"},
					{header: "Labels"},
					{header: "Assigned"},
				},
				buildQueueRows(queues, app.user.ID),
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&viewFlag, "view", "regular", "Queue view (regular or escalation)")

	cmd.AddCommand(newQueueShowCommand(ctx))
	return cmd
}

func buildQueueRows(queues []review.Queue, userID string) [][]string {
	rows := make([][]string, 0, len(queues))
	for _, queue := range queues {
		rows = append(rows, []string{
			queue.ID,
			queue.Name,
			strconv.Itoa(queue.Size),
			queueOrderLabel(queue),
			joinLabels(queue.AllowedLabels),
			yesNo(queue.IsAssignee(userID)),
		})
	}
	return rows
}

func queueOrderLabel(queue review.Queue) string {
	if queue.SortingLocked {
		return "strict"
	}
	return "free pick"
}

func joinLabels(labels []review.Label) string {
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, string(label))
	}
	return strings.Join(parts, ", ")
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <queue-id>",
		Short: "Show one queue, including archived ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			queue, err := app.dir.RefreshOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader(queue.Name, colorize))
			fmt.Fprintln(out, renderStatusLine("ID", statusInfo, queue.ID, colorize))
			fmt.Fprintln(out, renderStatusLine("View", statusInfo, caption(string(queue.View())), colorize))
			fmt.Fprintln(out, renderStatusLine("Items", statusInfo, strconv.Itoa(queue.Size), colorize))
			fmt.Fprintln(out, renderStatusLine("Order", statusInfo, queueOrderLabel(*queue), colorize))
			fmt.Fprintln(out, renderStatusLine("Labels", statusInfo, joinLabels(queue.AllowedLabels), colorize))
			fmt.Fprintln(out, renderStatusLine("Reviewers", statusInfo, strings.Join(queue.Reviewers, ", "), colorize))
			fmt.Fprintln(out, renderStatusLine("Supervisors", statusInfo, strings.Join(queue.Supervisors, ", "), colorize))
			if queue.ProcessingDeadline > 0 {
				fmt.Fprintln(out, renderStatusLine("Deadline", statusInfo, queue.ProcessingDeadline.String(), colorize))
			}
			return nil
		},
	}
}
