package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/indexmirror/internal/syncer"
)

// newSyncCmd creates the sync command.
func newSyncCmd() *cobra.Command {
	var owner string
	var all bool
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass",
		Long: `Run one synchronization pass per owner: full when no successful full
pass is recorded or the last one is stale, incremental otherwise.
Watermarks advance only when the pass completes without error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owners, err := resolveOwners(cfg, owner, all)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return syncOwners(ctx, cmd, owners, full)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Synchronize a single owner")
	cmd.Flags().BoolVar(&all, "all", false, "Synchronize every configured owner")
	cmd.Flags().BoolVar(&full, "full", false, "Force a full resynchronization")

	return cmd
}

// syncOwners runs one pass per owner concurrently. Owner streams share
// nothing, so a failure in one does not stop the others; the first
// error is reported after all passes finish.
func syncOwners(ctx context.Context, cmd *cobra.Command, owners []string, full bool) error {
	grp := &errgroup.Group{}

	for _, owner := range owners {
		owner := owner
		grp.Go(func() error {
			rt, err := buildOwnerRuntime(cfg, owner)
			if err != nil {
				return err
			}
			defer rt.Close()

			var res syncer.Result
			if full {
				res, err = rt.orchestrator.TriggerFull(ctx)
			} else {
				res, err = rt.orchestrator.Trigger(ctx)
			}
			if err != nil {
				return fmt.Errorf("owner %s: %w", owner, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: indexed %d, removed %d, skipped %d\n",
				owner, res.Indexed, res.Removed, res.Skipped)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("synchronization interrupted: %w", err)
		}
		return err
	}
	return nil
}
