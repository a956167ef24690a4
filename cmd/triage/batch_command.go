package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/review"
	"triage/internal/session"
)

func newLabelBatchCommand(ctx *commandContext) *cobra.Command {
	var labelFlag string
	var itemsFlag []string
	var notesFlag string

	cmd := &cobra.Command{
		Use:   "label-batch <queue-id>",
		Short: "Apply one label to many items of a queue",
		Long: `Label-batch locks and labels each listed item independently. The run
is best effort: items that fail, for example because someone else
holds their lock, are reported at the end and never block the rest.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, ok := review.ParseLabel(labelFlag)
			if !ok || label.IsHold() {
				return fmt.Errorf("label must be one of good, bad, escalate")
			}
			if len(itemsFlag) == 0 {
				return fmt.Errorf("at least one --item is required")
			}

			app, err := ctx.newServices()
			if err != nil {
				return err
			}

			queueID := args[0]
			if err := app.dir.RefreshQueues(cmd.Context(), review.ViewRegular); err != nil {
				return err
			}
			if queue, ok := app.dir.QueueByID(queueID); ok && !queue.AllowsLabel(label) {
				return fmt.Errorf("label %s is not allowed on queue %s", label, queue.Name)
			}

			batch := make([]session.BatchItem, 0, len(itemsFlag))
			for _, itemID := range itemsFlag {
				itemID = strings.TrimSpace(itemID)
				if itemID == "" {
					continue
				}
				batch = append(batch, session.BatchItem{ItemID: itemID, QueueID: queueID})
			}

			result := app.coord.ApplyLabelBatch(cmd.Context(), batch, label, notesFlag)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Labeled", statusOK, fmt.Sprintf("%d item(s)", result.Succeeded), colorize))
			if result.Failed() == 0 {
				return nil
			}

			rows := make([][]string, 0, result.Failed())
			for _, failure := range result.Failures {
				rows = append(rows, []string{failure.Item.ItemID, failure.Kind, failure.Reason})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{header: "Item"}, {header: "Kind", captioned: true}, {header: "Reason"}},
				rows,
			))
			return fmt.Errorf("%d of %d item(s) failed", result.Failed(), len(batch))
		},
	}
	cmd.Flags().StringVar(&labelFlag, "label", "", "Label to apply (good, bad, escalate)")
	cmd.Flags().StringSliceVar(&itemsFlag, "item", nil, "Item id to label (repeatable)")
	cmd.Flags().StringVar(&notesFlag, "notes", "", "Notes attached to every labeled item")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
