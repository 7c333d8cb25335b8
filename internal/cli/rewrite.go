package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newReplaceGUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace-guid <old> <new> [file...]",
		Short: "Point references at a different asset",
		Long: "Rewrite references to <old> so they name <new>. Without files, the cached\n" +
			"referrers of <old> are rewritten. Model sub-object ids are remapped by name\n" +
			"when both identifiers belong to models.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			files, err := projectPaths(svc, args[2:])
			if err != nil {
				return err
			}
			changed, err := svc.ReplaceIdentifier(args[0], args[1], files)
			if perr := printChanged(cmd, changed); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newRemoveGUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-guid <guid> [file...]",
		Short: "Null out references to an asset",
		Long: "Replace each inline reference to <guid> with {fileID: 0}. Without files, the\n" +
			"cached referrers of <guid> are rewritten.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			files, err := projectPaths(svc, args[1:])
			if err != nil {
				return err
			}
			changed, err := svc.RemoveIdentifier(args[0], files)
			if perr := printChanged(cmd, changed); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newFileIDMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fileid-map <source-model> <dest-model>",
		Short: "Pair sub-object ids of two models by name",
		Args:  cobra.ExactArgs(2),
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
			m, err := svc.FileIDMap(ps[0], ps[1])
			if err != nil {
				return err
			}
			if flags.jsonMode {
				out := make(map[string]int64, len(m))
				for k, v := range m {
					out[fmt.Sprint(k)] = v
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			keys := make([]int64, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %d\n", k, m[k])
			}
			return nil
		},
	}
}

func printChanged(cmd *cobra.Command, changed []string) error {
	if flags.jsonMode {
		return printList(cmd.OutOrStdout(), changed)
	}
	for _, p := range changed {
		fmt.Fprintf(cmd.OutOrStdout(), "rewrote %s\n", p)
	}
	if len(changed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to rewrite")
	}
	return nil
}
