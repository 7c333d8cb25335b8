// Package paths resolves the configuration directory and the project root,
// and turns command line path arguments into project-relative paths.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

// AppName names the per-user configuration directory.
const AppName = "assetref"

// Environment variable names for directory overrides.
const (
	EnvConfigDir   = "ASSETREF_CONFIG_DIR"
	EnvProjectRoot = "ASSETREF_PROJECT_ROOT"
)

// projectMarkers must all exist for a directory to count as a project root.
var projectMarkers = []string{"Assets", "ProjectSettings"}

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/assetref (fallback ~/.config/assetref)
// macOS:   ~/Library/Application Support/assetref
// Windows: %APPDATA%/assetref
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", AppName), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > ASSETREF_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveProjectRoot returns the project root following the precedence
// chain: flag > configValue > ASSETREF_PROJECT_ROOT env > the nearest
// ancestor of the working directory that looks like a project > the
// working directory.
func ResolveProjectRoot(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvProjectRoot)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	if root, ok := FindProjectRoot(cwd); ok {
		return root, nil
	}
	return cwd, nil
}

// FindProjectRoot walks up from start to the first directory holding every
// project marker.
func FindProjectRoot(start string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		if isProject(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func isProject(dir string) bool {
	for _, m := range projectMarkers {
		fi, err := os.Stat(filepath.Join(dir, m))
		if err != nil || !fi.IsDir() {
			return false
		}
	}
	return true
}

// ProjectRelative converts a command line argument to a slash-separated
// path relative to root. Absolute arguments and arguments naming an
// existing file from the working directory are made relative to root;
// anything else is taken as already project-relative. Arguments resolving
// outside root return ErrInvalidPath.
func ProjectRelative(root, arg string) (string, error) {
	if arg == "" {
		return "", types.ErrInvalidPath
	}
	abs := ""
	switch {
	case filepath.IsAbs(arg):
		abs = arg
	default:
		if cwd, err := platformDir.getwd(); err == nil {
			if _, err := os.Stat(filepath.Join(cwd, arg)); err == nil {
				abs = filepath.Join(cwd, arg)
			}
		}
	}
	if abs == "" {
		abs = filepath.Join(root, filepath.FromSlash(arg))
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", arg, types.ErrInvalidPath)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project: %w", arg, types.ErrInvalidPath)
	}
	return rel, nil
}
