package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guid <path>",
		Short: "Print the identifier of an asset",
		Args:  cobra.ExactArgs(1),
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
			guid, err := svc.ResolveIdentifier(ps[0])
			if err != nil {
				return fmt.Errorf("%s: %w", ps[0], err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"path": ps[0], "guid": guid})
			}
			fmt.Fprintln(cmd.OutOrStdout(), guid)
			return nil
		},
	}
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <guid>",
		Short: "Print the path of the asset with an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			p, err := svc.ResolvePath(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"path": p, "guid": args[0]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newRefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs <path>",
		Short: "List cached referrers of an asset",
		Long: "List the assets the cache records as referencing the asset at path. Stale\n" +
			"entries are dropped. Run search for a lookup that also reads the project files.",
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
			refs, err := svc.GetReferences(ps[0])
			if err != nil {
				return fmt.Errorf("%s: %w", ps[0], err)
			}
			return printList(cmd.OutOrStdout(), refs)
		},
	}
}

func newDepsCmd() *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "deps <path>",
		Short: "List identifiers an asset references",
		Args:  cobra.ExactArgs(1),
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
			deps, err := svc.Dependencies(ps[0])
			if err != nil {
				return fmt.Errorf("%s: %w", ps[0], err)
			}
			if resolve {
				for i, g := range deps {
					if p, err := svc.ResolvePath(g); err == nil {
						deps[i] = p
					}
				}
			}
			return printList(cmd.OutOrStdout(), deps)
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "print paths instead of identifiers where known")
	return cmd
}
