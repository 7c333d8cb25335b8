package types

import (
	"errors"
	"path/filepath"
	"time"
)

// Config holds the parameters shared by the store, scanner and search engine.
// Zero values are replaced by defaults in WithDefaults.
type Config struct {
	// ProjectRoot is the absolute directory all asset paths are relative to.
	ProjectRoot string `json:"project_root" yaml:"project_root"`

	// CachePath is the SQLite cache file. Empty means
	// <ProjectRoot>/<LibraryDir>/AssetDependencyCache.db.
	CachePath string `json:"cache_path" yaml:"cache_path"`

	// RipgrepPath is the search executable; looked up on PATH when relative.
	RipgrepPath string `json:"ripgrep_path" yaml:"ripgrep_path"`

	// IgnoreExtensions are never scanned and are excluded from searches.
	IgnoreExtensions []string `json:"ignore_extensions" yaml:"ignore_extensions"`

	// IgnoreGlobs are doublestar patterns matched against project-relative
	// paths; matching files are neither swept nor watched.
	IgnoreGlobs []string `json:"ignore_globs" yaml:"ignore_globs"`

	// MinScanSize is the smallest file (bytes) worth scanning.
	MinScanSize int64 `json:"min_scan_size" yaml:"min_scan_size"`

	// UnpauseThreshold is the result count above which a running search lets
	// the background scanner resume.
	UnpauseThreshold int `json:"unpause_threshold" yaml:"unpause_threshold"`

	// DocumentSignature is the prefix a text asset must start with.
	DocumentSignature string `json:"document_signature" yaml:"document_signature"`

	// SweepRoots are the directories walked by a full sweep.
	SweepRoots []string `json:"sweep_roots" yaml:"sweep_roots"`

	// SettingsRoot holds builtin resources without companion metadata.
	SettingsRoot string `json:"settings_root" yaml:"settings_root"`

	// LibraryDir holds the reverse metadata index and the default cache file.
	LibraryDir string `json:"library_dir" yaml:"library_dir"`

	// WatchDebounce coalesces file events before they reach the scanner.
	WatchDebounce time.Duration `json:"watch_debounce" yaml:"watch_debounce"`

	// SearchTimeout bounds a blocking search issued from the CLI or MCP tools.
	SearchTimeout time.Duration `json:"search_timeout" yaml:"search_timeout"`

	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Default values.
const (
	DefaultRipgrepPath       = "rg"
	DefaultMinScanSize       = 40
	DefaultUnpauseThreshold  = 5
	DefaultDocumentSignature = "%YAML 1.1"
	DefaultSettingsRoot      = "ProjectSettings"
	DefaultLibraryDir        = "Library"
	DefaultCacheFileName     = "AssetDependencyCache.db"
	DefaultWatchDebounce     = 500 * time.Millisecond
	DefaultSearchTimeout     = 2 * time.Minute
	DefaultLogLevel          = "info"
)

// DefaultIgnoreExtensions lists binary or opaque formats where reference
// scanning is pointless.
var DefaultIgnoreExtensions = []string{".meta", ".png", ".fbx", ".dll"}

// DefaultSweepRoots lists the directories walked by a full sweep.
var DefaultSweepRoots = []string{"Assets"}

// Config validation errors.
var (
	ErrProjectRootEmpty        = errors.New("project root must not be empty")
	ErrMinScanSizeInvalid      = errors.New("min scan size must not be negative")
	ErrUnpauseThresholdInvalid = errors.New("unpause threshold must not be negative")
	ErrSignatureEmpty          = errors.New("document signature must not be empty")
	ErrSweepRootInvalid        = errors.New("sweep roots must be relative to the project root")
)

// DefaultConfig returns a Config for the project at root with every default
// applied.
func DefaultConfig(root string) Config {
	return Config{ProjectRoot: root}.WithDefaults()
}

// WithDefaults returns a copy of c where unset fields carry their defaults.
func (c Config) WithDefaults() Config {
	if c.RipgrepPath == "" {
		c.RipgrepPath = DefaultRipgrepPath
	}
	if c.IgnoreExtensions == nil {
		c.IgnoreExtensions = append([]string(nil), DefaultIgnoreExtensions...)
	}
	if c.MinScanSize == 0 {
		c.MinScanSize = DefaultMinScanSize
	}
	if c.UnpauseThreshold == 0 {
		c.UnpauseThreshold = DefaultUnpauseThreshold
	}
	if c.DocumentSignature == "" {
		c.DocumentSignature = DefaultDocumentSignature
	}
	if len(c.SweepRoots) == 0 {
		c.SweepRoots = append([]string(nil), DefaultSweepRoots...)
	}
	if c.SettingsRoot == "" {
		c.SettingsRoot = DefaultSettingsRoot
	}
	if c.LibraryDir == "" {
		c.LibraryDir = DefaultLibraryDir
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = DefaultWatchDebounce
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.ProjectRoot == "" {
		return ErrProjectRootEmpty
	}
	if c.MinScanSize < 0 {
		return ErrMinScanSizeInvalid
	}
	if c.UnpauseThreshold < 0 {
		return ErrUnpauseThresholdInvalid
	}
	if c.DocumentSignature == "" {
		return ErrSignatureEmpty
	}
	for _, root := range c.SweepRoots {
		if filepath.IsAbs(root) || root == ".." || len(root) > 2 && root[:3] == "../" {
			return ErrSweepRootInvalid
		}
	}
	return nil
}

// CacheFile returns the cache database location.
func (c Config) CacheFile() string {
	if c.CachePath != "" {
		return c.CachePath
	}
	lib := c.LibraryDir
	if lib == "" {
		lib = DefaultLibraryDir
	}
	return filepath.Join(c.ProjectRoot, lib, DefaultCacheFileName)
}
