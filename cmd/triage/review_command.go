package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/review"
	"triage/internal/services"
	"triage/internal/session"
	"triage/internal/taskrunner"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var itemFlag string

	cmd := &cobra.Command{
		Use:   "review <queue-id>",
		Short: "Review items from a queue, one locked item at a time",
		Long: `Review walks a queue item by item: each item is locked to you while
you decide, a label releases it and advances to the next item, and
quitting releases the current lock without a decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.newServices()
			if err != nil {
				return err
			}
			if err := startupRunner(app, ctx.ensureLogger()).Start(cmd.Context()); err != nil {
				return err
			}
			return runReviewLoop(cmd, app, args[0], itemFlag)
		},
	}
	cmd.Flags().StringVar(&itemFlag, "item", "", "Review a specific item instead of the next in order")
	return cmd
}

// startupRunner enqueues the refreshes a review session needs before
// the first item can be requested. The runner keeps them strictly
// ordered: the queue directory must be populated before held locks
// are matched against it.
func startupRunner(app *appServices, logger *slog.Logger) *taskrunner.Runner {
	runner := taskrunner.New(logger)
	runner.Enqueue(
		taskrunner.Task{
			Name: "refresh-regular-queues",
			Run: func(ctx context.Context) error {
				return app.dir.RefreshQueues(ctx, review.ViewRegular)
			},
		},
		taskrunner.Task{
			Name: "refresh-escalation-queues",
			Run: func(ctx context.Context) error {
				// Escalation queues are reviewable too; a miss here
				// only narrows the local directory.
				_ = app.dir.RefreshQueues(ctx, review.ViewEscalation)
				return nil
			},
		},
		taskrunner.Task{
			Name: "refresh-locks",
			Run:  app.registry.Refresh,
		},
	)
	return runner
}

func runReviewLoop(cmd *cobra.Command, app *appServices, queueID, itemID string) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	reader := bufio.NewScanner(cmd.InOrStdin())
	runCtx := cmd.Context()

	for {
		view, err := app.coord.Start(runCtx, queueID, itemID)
		itemID = ""
		if err != nil {
			return handleStartFailure(out, app, view, err, colorize)
		}

		printItem(out, view, colorize)
		done, err := promptForDecision(runCtx, reader, out, app, colorize)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func handleStartFailure(out io.Writer, app *appServices, view session.View, err error, colorize bool) error {
	if view.Phase == session.PhaseConflict && view.Conflict != nil {
		conflict := view.Conflict
		fmt.Fprintln(out, renderStatusLine("Conflict", statusWarn,
			fmt.Sprintf("item %s is locked by %s on queue %s", conflict.ItemID, conflict.OwnerID, conflict.QueueID), colorize))
		if held, ok := app.coord.AcknowledgeConflict(); ok {
			fmt.Fprintln(out, renderStatusLine("Hint", statusInfo,
				fmt.Sprintf("resume your held item with: triage review %s --item %s", held.QueueID, held.ItemID), colorize))
		}
		return nil
	}
	if errors.Is(err, services.ErrNotFound) {
		fmt.Fprintln(out, "No more reviewable items")
		return nil
	}
	return err
}

func printItem(out io.Writer, view session.View, colorize bool) {
	item := view.Item
	fmt.Fprintln(out, renderSectionHeader("Item "+item.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, view.Queue.Name, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", statusInfo, caption(string(item.Status)), colorize))
	if len(item.Tags) > 0 {
		fmt.Fprintln(out, renderStatusLine("Tags", statusInfo, strings.Join(item.Tags, ", "), colorize))
	}
	if item.Notes != "" {
		fmt.Fprintln(out, renderStatusLine("Notes", statusInfo, item.Notes, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Labels", statusInfo, joinLabels(view.Queue.AllowedLabels)+", hold", colorize))
}

// promptForDecision reads commands for the currently locked item. It
// returns done=true when the reviewer wants to leave the loop.
func promptForDecision(runCtx context.Context, reader *bufio.Scanner, out io.Writer, app *appServices, colorize bool) (bool, error) {
	var notes string
	for {
		fmt.Fprint(out, "> ")
		if !reader.Scan() {
			// Input closed: release the lock and stop.
			return true, app.coord.Finish(runCtx)
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")

		switch strings.ToLower(verb) {
		case "quit", "q", "skip", "unlock":
			return true, app.coord.Finish(runCtx)
		case "note":
			notes = strings.TrimSpace(rest)
			fmt.Fprintln(out, renderStatusLine("Note", statusOK, "will be attached to the next label", colorize))
		case "resume":
			if _, err := app.coord.Resume(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, err.Error(), colorize))
				continue
			}
			fmt.Fprintln(out, renderStatusLine("Resumed", statusOK, "item is back in the labeling flow", colorize))
		case "help", "?":
			fmt.Fprintln(out, "Commands: good, bad, escalate, hold, note <text>, resume, unlock, quit")
		default:
			label, ok := review.ParseLabel(verb)
			if !ok {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, "unknown command (try help)", colorize))
				continue
			}
			advance, err := app.coord.ApplyLabel(runCtx, label, notes)
			if err != nil {
				if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrTransient) {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, err.Error(), colorize))
					continue
				}
				return true, err
			}
			notes = ""
			if advance {
				fmt.Fprintln(out, renderStatusLine("Labeled", statusOK, string(label), colorize))
				return false, nil
			}
			// Hold keeps the lock and parks the item.
			fmt.Fprintln(out, renderStatusLine("Held", statusWarn, "item parked; resume to continue or quit to keep the hold", colorize))
		}
	}
}
