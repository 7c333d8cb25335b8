package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/assetref/pkg/assetref"
)

const modulePath = "github.com/mesh-intelligence/assetref"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the assetref version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": assetref.Version,
					"module":  modulePath,
					"commit":  assetref.Commit,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assetref v%s\nmodule: %s\n", assetref.Version, modulePath)
			if assetref.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", assetref.Commit)
			}
			return nil
		},
	}
}
