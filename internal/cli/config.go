package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/assetref/internal/paths"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "ASSETREF"
)

// Config keys.
const (
	cfgKeyProjectRoot       = "project_root"
	cfgKeyCachePath         = "cache_path"
	cfgKeyRipgrepPath       = "ripgrep_path"
	cfgKeyIgnoreExtensions  = "ignore_extensions"
	cfgKeyIgnoreGlobs       = "ignore_globs"
	cfgKeyMinScanSize       = "min_scan_size"
	cfgKeyUnpauseThreshold  = "unpause_threshold"
	cfgKeyDocumentSignature = "document_signature"
	cfgKeySweepRoots        = "sweep_roots"
	cfgKeySettingsRoot      = "settings_root"
	cfgKeyLibraryDir        = "library_dir"
	cfgKeyWatchDebounce     = "watch_debounce"
	cfgKeySearchTimeout     = "search_timeout"
	cfgKeyLogLevel          = "log_level"
)

// newViper returns a Viper reading <configDir>/config.yaml with defaults
// and ASSETREF_* environment overrides. A missing file is not an error.
func newViper(configDir string) (*viper.Viper, error) {
	def := types.DefaultConfig("")

	v := viper.New()
	v.SetDefault(cfgKeyRipgrepPath, def.RipgrepPath)
	v.SetDefault(cfgKeyIgnoreExtensions, def.IgnoreExtensions)
	v.SetDefault(cfgKeyIgnoreGlobs, []string{})
	v.SetDefault(cfgKeyMinScanSize, def.MinScanSize)
	v.SetDefault(cfgKeyUnpauseThreshold, def.UnpauseThreshold)
	v.SetDefault(cfgKeyDocumentSignature, def.DocumentSignature)
	v.SetDefault(cfgKeySweepRoots, def.SweepRoots)
	v.SetDefault(cfgKeySettingsRoot, def.SettingsRoot)
	v.SetDefault(cfgKeyLibraryDir, def.LibraryDir)
	v.SetDefault(cfgKeyWatchDebounce, def.WatchDebounce)
	v.SetDefault(cfgKeySearchTimeout, def.SearchTimeout)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by AutomaticEnv when bound.
	for _, k := range []string{cfgKeyProjectRoot, cfgKeyCachePath} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// loadConfig resolves the config directory and project root and returns
// the validated configuration.
func loadConfig() (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := newViper(configDir)
	if err != nil {
		return types.Config{}, err
	}

	root, err := paths.ResolveProjectRoot(flags.project, v.GetString(cfgKeyProjectRoot))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve project root: %w", err)
	}

	cfg := types.Config{
		ProjectRoot:       root,
		CachePath:         v.GetString(cfgKeyCachePath),
		RipgrepPath:       v.GetString(cfgKeyRipgrepPath),
		IgnoreExtensions:  v.GetStringSlice(cfgKeyIgnoreExtensions),
		IgnoreGlobs:       v.GetStringSlice(cfgKeyIgnoreGlobs),
		MinScanSize:       v.GetInt64(cfgKeyMinScanSize),
		UnpauseThreshold:  v.GetInt(cfgKeyUnpauseThreshold),
		DocumentSignature: v.GetString(cfgKeyDocumentSignature),
		SweepRoots:        v.GetStringSlice(cfgKeySweepRoots),
		SettingsRoot:      v.GetString(cfgKeySettingsRoot),
		LibraryDir:        v.GetString(cfgKeyLibraryDir),
		WatchDebounce:     v.GetDuration(cfgKeyWatchDebounce),
		SearchTimeout:     v.GetDuration(cfgKeySearchTimeout),
		LogLevel:          v.GetString(cfgKeyLogLevel),
	}
	if cfg.CachePath != "" && !filepath.IsAbs(cfg.CachePath) {
		cfg.CachePath = filepath.Join(root, cfg.CachePath)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return types.Config{}, &configError{fmt.Errorf("invalid config: %w", err)}
	}
	return cfg, nil
}

// configDirPath returns the resolved config directory and its config file.
func configDirPath() (string, string, error) {
	dir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, configFileExt), nil
}
