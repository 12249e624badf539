// Package paths provides centralized path handling for dotsync.
// It implements XDG Base Directory defaults for the configuration file
// and the staging area, plus tilde expansion helpers used throughout
// configuration resolution.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/dotsync/pkg/errors"
)

// Environment variable names
const (
	// EnvConfigHome overrides the base directory for the config file
	EnvConfigHome = "XDG_CONFIG_HOME"

	// EnvCacheHome overrides the base directory for the staging area
	EnvCacheHome = "XDG_CACHE_HOME"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Default directories and files.
// The staging layout <staging-root>/<group-name>/<relative-path> is part
// of dotsync's on-disk contract and is not user-configurable beyond the
// staging root itself.
const (
	// DotsyncDirName is the directory name for dotsync-specific files
	DotsyncDirName = "dotsync"

	// ConfigFileName is the name of the configuration file
	ConfigFileName = "config.toml"

	// StagingDirName is the subdirectory for staged (rendered) content
	StagingDirName = "staging"
)

// DefaultConfigPath returns the default configuration file location,
// honoring XDG_CONFIG_HOME with a ~/.config fallback.
func DefaultConfigPath() string {
	configHome := os.Getenv(EnvConfigHome)
	if configHome == "" {
		configHome = xdg.ConfigHome
	}
	return filepath.Join(configHome, DotsyncDirName, ConfigFileName)
}

// DefaultStagingDir returns the default staging root, honoring
// XDG_CACHE_HOME with a ~/.cache fallback.
func DefaultStagingDir() string {
	cacheHome := os.Getenv(EnvCacheHome)
	if cacheHome == "" {
		cacheHome = xdg.CacheHome
	}
	return filepath.Join(cacheHome, DotsyncDirName, StagingDirName)
}

// ExpandHome expands a leading ~ to the user's home directory
func ExpandHome(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = os.Getenv(EnvHome)
			if homeDir == "" {
				// Can't expand, return as-is
				return path
			}
		}

		if len(path) == 1 {
			return homeDir
		}

		if path[1] == '/' || path[1] == filepath.Separator {
			return filepath.Join(homeDir, path[2:])
		}

		// ~something (another user's home), leave untouched
		return path
	}

	return path
}

// Normalize expands home, makes the path absolute and cleans it
func Normalize(path string) (string, error) {
	if path == "" {
		return "", errors.New(errors.ErrPath, "empty path")
	}

	expanded := ExpandHome(path)

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrPath, "failed to get absolute path for %q", path)
	}

	return filepath.Clean(abs), nil
}

// Hostname returns the current machine's hostname used for
// host-specific item filtering
func Hostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrIo, "failed to get hostname")
	}
	return hostname, nil
}
