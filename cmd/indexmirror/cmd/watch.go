package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meridianhq/indexmirror/internal/syncer"
	"github.com/meridianhq/indexmirror/internal/trigger"
)

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	var owner string
	var all bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously mirror source changes into the indexes",
		Long: `Watch the source database for changes and run a synchronization pass
after each debounced burst of activity. A periodic fallback pass covers
changes the filesystem never reports. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owners, err := resolveOwners(cfg, owner, all)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, owners)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Watch a single owner")
	cmd.Flags().BoolVar(&all, "all", false, "Watch every configured owner")

	return cmd
}

func runWatch(ctx context.Context, owners []string) error {
	runtimes := make([]*ownerRuntime, 0, len(owners))
	defer func() {
		for _, rt := range runtimes {
			rt.Close()
		}
	}()

	for _, o := range owners {
		rt, err := buildOwnerRuntime(cfg, o)
		if err != nil {
			return err
		}
		runtimes = append(runtimes, rt)
	}

	// One watcher feeds every owner: the source database is shared, so
	// any activity may concern any owner's stream.
	fire := func() {
		for _, rt := range runtimes {
			if _, err := rt.orchestrator.Trigger(ctx); err != nil {
				if errors.Is(err, syncer.ErrPassInFlight) || errors.Is(err, context.Canceled) {
					continue
				}
				slog.Error("triggered pass failed",
					slog.String("owner", rt.owner),
					slog.String("error", err.Error()))
			}
		}
	}

	w, err := trigger.New(trigger.Config{
		SourcePath: cfg.Source.Path,
		Debounce:   cfg.Sync.DebounceWindow(),
		Interval:   cfg.Sync.TickInterval(),
	}, fire)
	if err != nil {
		return fmt.Errorf("start source watcher: %w", err)
	}

	// Converge once before settling into event-driven mode.
	fire()

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("watch mode stopped")
		return nil
	}
	return err
}
