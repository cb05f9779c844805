package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newLockCmd(a *app) *cobra.Command {
	var lease, hold time.Duration
	cmd := &cobra.Command{
		Use:   "lock KEY",
		Short: "Acquire a lock, hold it, then release it",
		Long: `Acquire the lock KEY with the configured retry budget, hold it for
--hold (or until interrupted) and release it. Exits non-zero when the lock
is held by someone else or when the lease expired before the release.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lease <= 0 {
				lease = a.cfg.Lock.Lease
			}
			ctx := cmd.Context()
			l, err := a.cache.Lock(args[0], lease)
			if err != nil {
				return err
			}
			defer l.Close(ctx)

			ok, err := l.Acquire(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("lock %s is held by another owner", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "acquired %s for %s\n", args[0], lease)
			wait(ctx, hold)

			released, err := l.Release(ctx)
			if err != nil {
				return err
			}
			if !released {
				return fmt.Errorf("lease on %s expired before release; another owner may have run", args[0])
			}
			fmt.Fprintln(out, "released")
			return nil
		},
	}
	cmd.Flags().DurationVar(&lease, "lease", 0, "lease duration; 0 uses lock.lease from the config")
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the lock before releasing")
	return cmd
}

// wait blocks for d or until SIGINT/SIGTERM.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
