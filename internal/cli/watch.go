package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd() *cobra.Command {
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the cache current while files change",
		Long: "Watch the sweep roots and scan changed assets until interrupted. Unless\n" +
			"--no-sweep is given, a sweep runs alongside to catch changes made while\n" +
			"nothing was watching.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ready := make(chan struct{})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return svc.Watch(gctx, ready)
			})
			if !noSweep {
				g.Go(func() error {
					select {
					case <-ready:
					case <-gctx.Done():
						return nil
					}
					stats, err := svc.Sweep(gctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "sweep done: scanned %d files\n", stats.FilesEnqueued)
					return nil
				})
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s\n", svc.Config().ProjectRoot)

			if err := g.Wait(); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "skip the initial sweep")
	return cmd
}
