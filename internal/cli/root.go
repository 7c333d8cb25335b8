// Package cli implements the assetref command-line interface.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/assetref/internal/paths"
	"github.com/mesh-intelligence/assetref/pkg/assetref"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	project   string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "assetref" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assetref",
		Short: "Find which assets reference an asset in a game project",
		Long: "assetref keeps a cache of identifier references between the text assets of a\n" +
			"project and searches the project files for references the cache does not know.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/assetref)")
	root.PersistentFlags().StringVar(&flags.project, "project", "", "project root (default: nearest ancestor with Assets and ProjectSettings)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newGUIDCmd())
	root.AddCommand(newPathCmd())
	root.AddCommand(newRefsCmd())
	root.AddCommand(newDepsCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newTruncateCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newReplaceGUIDCmd())
	root.AddCommand(newRemoveGUIDCmd())
	root.AddCommand(newFileIDMapCmd())
	root.AddCommand(newMCPCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "assetref:", err)
		os.Exit(exitCode(err))
	}
}

// cliError carries an exit code.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

// sysError marks err as an environment failure rather than bad input.
func sysError(err error) error {
	return &cliError{code: exitSysError, err: err}
}

// exitCode maps err to a process exit code. Lookup and argument failures
// are user errors; anything else is a system error.
func exitCode(err error) int {
	var ce *cliError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidPath),
		errors.Is(err, types.ErrInvalidGUID),
		errors.Is(err, types.ErrSweepRunning):
		return exitUserError
	default:
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			return exitUserError
		}
		return exitSysError
	}
}

// configError wraps configuration validation failures.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// newLogger builds the logger for a command from the config level and the
// --verbose flag.
func newLogger(cfg types.Config, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if flags.verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

// openService loads the configuration and opens the project index. The
// caller must Close the service.
func openService(cmd *cobra.Command) (*assetref.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	svc, err := assetref.Open(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return nil, sysError(err)
	}
	return svc, nil
}

// projectPaths converts arguments to project-relative paths.
func projectPaths(svc *assetref.Service, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		p, err := paths.ProjectRelative(svc.Config().ProjectRoot, a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printList writes items one per line, or as a JSON array in --json mode.
func printList(w io.Writer, items []string) error {
	if flags.jsonMode {
		if items == nil {
			items = []string{}
		}
		return printJSON(w, items)
	}
	for _, it := range items {
		if _, err := fmt.Fprintln(w, it); err != nil {
			return err
		}
	}
	return nil
}
