package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/prefs"
	"triage/internal/refresh"
	"triage/internal/review"
)

// Screen names used as preference and refresh-target keys.
const (
	screenQueues = "queues"
	screenLocks  = "locks"
	screenItems  = "items"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var queueFlag string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep queue and lock state fresh until interrupted",
		Long: `Watch runs the auto-refresh scheduler: one timer whose ticks refresh
each watched resource once its staleness bound has elapsed. Screens
with auto-refresh disabled in preferences are skipped.`,
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

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			scheduler := refresh.NewScheduler(
				time.Duration(app.cfg.Refresh.TickInterval)*time.Second,
				ctx.ensureLogger(),
			)
			registered, err := registerWatchTargets(runCtx, scheduler, store, app, out, queueFlag)
			if err != nil {
				return err
			}
			if registered == 0 {
				fmt.Fprintln(out, "Auto-refresh is disabled for every screen; nothing to watch")
				return nil
			}

			if err := scheduler.Start(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Watching; press Ctrl-C to stop")
			<-runCtx.Done()
			scheduler.Stop()
			fmt.Fprintln(out, "Stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&queueFlag, "queue", "", "Also keep this queue's item pages fresh")
	return cmd
}

func registerWatchTargets(runCtx context.Context, scheduler *refresh.Scheduler, store *prefs.Store, app *appServices, out io.Writer, queueID string) (int, error) {
	cfg := app.cfg.Refresh
	registered := 0

	enabled, err := store.AutoRefreshEnabled(runCtx, screenQueues)
	if err != nil {
		return 0, err
	}
	if enabled {
		scheduler.Register(refresh.Target{
			Key:      screenQueues,
			Interval: time.Duration(cfg.QueueStaleAfter) * time.Second,
			Refresh: func(ctx context.Context) error {
				if err := app.dir.RefreshQueues(ctx, review.ViewRegular); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s queues refreshed (%d in view)\n",
					time.Now().Format("15:04:05"), len(app.dir.Queues(review.ViewRegular)))
				return nil
			},
		})
		registered++
	}

	enabled, err = store.AutoRefreshEnabled(runCtx, screenLocks)
	if err != nil {
		return 0, err
	}
	if enabled {
		scheduler.Register(refresh.Target{
			Key:      screenLocks,
			Interval: time.Duration(cfg.LockStaleAfter) * time.Second,
			Refresh: func(ctx context.Context) error {
				if err := app.registry.Refresh(ctx); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s locks refreshed (%d held)\n",
					time.Now().Format("15:04:05"), len(app.registry.Snapshot()))
				return nil
			},
		})
		registered++
	}

	if queueID != "" {
		enabled, err = store.AutoRefreshEnabled(runCtx, screenItems)
		if err != nil {
			return 0, err
		}
		if enabled {
			scheduler.Register(refresh.Target{
				Key:      screenItems,
				Interval: time.Duration(cfg.ItemStaleAfter) * time.Second,
				Refresh: func(ctx context.Context) error {
					app.dir.ResetItems()
					items, _, err := app.dir.FetchItemsPage(ctx, queueID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s items refreshed (%d on first page of %s)\n",
						time.Now().Format("15:04:05"), len(items), queueID)
					return nil
				},
			})
			registered++
		}
	}

	return registered, nil
}
