package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/assetref/internal/sqlite"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	ProjectRoot       string        `yaml:"project_root,omitempty"`
	RipgrepPath       string        `yaml:"ripgrep_path"`
	IgnoreExtensions  []string      `yaml:"ignore_extensions"`
	IgnoreGlobs       []string      `yaml:"ignore_globs"`
	MinScanSize       int64         `yaml:"min_scan_size"`
	UnpauseThreshold  int           `yaml:"unpause_threshold"`
	DocumentSignature string        `yaml:"document_signature"`
	SweepRoots        []string      `yaml:"sweep_roots"`
	SettingsRoot      string        `yaml:"settings_root"`
	LibraryDir        string        `yaml:"library_dir"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	SearchTimeout     time.Duration `yaml:"search_timeout"`
	LogLevel          string        `yaml:"log_level"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the cache",
		Long: "Create the configuration directory with a default config.yaml when missing,\n" +
			"then create the cache file of the resolved project.",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	configDir, configPath, err := configDirPath()
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return sysError(fmt.Errorf("create config directory: %w", err))
	}
	project := flags.project
	if project != "" {
		if project, err = filepath.Abs(project); err != nil {
			return sysError(err)
		}
	}
	wrote, err := writeConfigIfMissing(configPath, project)
	if err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.CacheFile())
	if err != nil {
		return sysError(fmt.Errorf("initialize cache: %w", err))
	}
	if err := store.Close(); err != nil {
		return sysError(fmt.Errorf("finalize cache: %w", err))
	}

	out := cmd.OutOrStdout()
	if wrote {
		fmt.Fprintf(out, "wrote %s\n", configPath)
	}
	fmt.Fprintf(out, "cache ready at %s\n", cfg.CacheFile())
	return nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. It reports whether a file was written.
func writeConfigIfMissing(path, projectRoot string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	def := types.DefaultConfig(projectRoot)
	cfg := configFile{
		ProjectRoot:       projectRoot,
		RipgrepPath:       def.RipgrepPath,
		IgnoreExtensions:  def.IgnoreExtensions,
		IgnoreGlobs:       []string{},
		MinScanSize:       def.MinScanSize,
		UnpauseThreshold:  def.UnpauseThreshold,
		DocumentSignature: def.DocumentSignature,
		SweepRoots:        def.SweepRoots,
		SettingsRoot:      def.SettingsRoot,
		LibraryDir:        def.LibraryDir,
		WatchDebounce:     def.WatchDebounce,
		SearchTimeout:     def.SearchTimeout,
		LogLevel:          def.LogLevel,
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	return true, os.WriteFile(path, data, 0o644)
}
