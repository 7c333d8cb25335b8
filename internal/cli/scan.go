package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [path...]",
		Short: "Scan assets into the cache",
		Long: "Scan the given assets, or sweep the project when no path is given. A sweep\n" +
			"skips directories unchanged since the previous completed sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(args) > 0 {
				ps, err := projectPaths(svc, args)
				if err != nil {
					return err
				}
				if err := svc.Scan(cmd.Context(), ps...); err != nil {
					return sysError(err)
				}
				if !flags.jsonMode {
					fmt.Fprintf(cmd.OutOrStdout(), "scanned %d paths\n", len(ps))
				}
				return nil
			}

			stats, err := svc.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			kind := "incremental"
			if stats.Full {
				kind = "full"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sweep: visited %d directories, pruned %d, scanned %d files in %s\n",
				kind, stats.DirsVisited, stats.DirsPruned, stats.FilesEnqueued, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache location and last sweep time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.Status()
			if err != nil {
				return sysError(err)
			}
			cfg := svc.Config()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), struct {
					Project string `json:"project"`
					Cache   string `json:"cache"`
					Status  any    `json:"status"`
				}{cfg.ProjectRoot, cfg.CacheFile(), st})
			}
			last := "never"
			if !st.LastSweep.IsZero() {
				last = st.LastSweep.Local().Format(time.RFC3339)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project:    %s\n", cfg.ProjectRoot)
			fmt.Fprintf(out, "cache:      %s\n", cfg.CacheFile())
			fmt.Fprintf(out, "last sweep: %s\n", last)
			return nil
		},
	}
}

func newTruncateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "truncate",
		Short: "Empty the cache",
		Long:  "Delete every cached record. The next sweep rescans the whole project.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Truncate(); err != nil {
				return sysError(err)
			}
			if !flags.jsonMode {
				fmt.Fprintln(cmd.OutOrStdout(), "cache truncated")
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the cache as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if output == "" || output == "-" {
				if err := svc.Export(cmd.OutOrStdout()); err != nil {
					return sysError(err)
				}
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return sysError(err)
			}
			if err := svc.ExportFile(output); err != nil {
				return sysError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}
