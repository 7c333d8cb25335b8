package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/assetref/pkg/assetref"
)

func newSearchCmd() *cobra.Command {
	var opts assetref.Options
	cmd := &cobra.Command{
		Use:   "search <path>",
		Short: "Find every asset referencing an asset",
		Long: "Report cached referrers at once, then search the project files scope by scope,\n" +
			"from the asset's directory outward. New references are added to the cache.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			ps, err := projectPaths(svc, args)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), svc.Config().SearchTimeout)
			defer cancel()

			if flags.jsonMode {
				matches, err := svc.Search(ctx, ps[0], opts)
				if err != nil && !errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("%s: %w", ps[0], err)
				}
				if matches == nil {
					matches = []assetref.Match{}
				}
				if perr := printJSON(cmd.OutOrStdout(), matches); perr != nil {
					return perr
				}
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			if _, err := svc.Start(ps[0], opts, func(m assetref.Match) {
				out.printMatch(m, ps[0])
			}); err != nil {
				return fmt.Errorf("%s: %w", ps[0], err)
			}
			if err := svc.Wait(ctx); err != nil {
				svc.Cancel()
				return fmt.Errorf("search incomplete: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "also report referrers of referrers")
	cmd.Flags().BoolVar(&opts.MatchPath, "match-path", false, "also match the path stem as a whole word")
	return cmd
}

// lockedWriter serializes match output from the search goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printMatch(m assetref.Match, queried string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := m.Path
	if m.Target != queried {
		line += "  -> " + m.Target
	}
	if !m.ByIdentifier {
		line += "  (path match)"
	}
	fmt.Fprintln(l.w, line)
}
