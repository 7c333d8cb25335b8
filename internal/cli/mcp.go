package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/assetref/internal/mcpserver"
	"github.com/mesh-intelligence/assetref/pkg/assetref"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the index as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			s := mcpserver.New(svc, assetref.Version, svc.Config().SearchTimeout)
			if err := server.ServeStdio(s); err != nil {
				return sysError(err)
			}
			return nil
		},
	}
}
