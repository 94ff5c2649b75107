// Package paths resolves the prospector configuration file location.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative config location.
const (
	DefaultConfigDirName = ".goldrush"
	ConfigFileName       = "config.yaml"
)

// EnvConfigFile overrides the config file path.
const EnvConfigFile = "GOLDRUSH_CONFIG"

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

// DefaultConfigDir returns the platform-specific configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/goldrush (fallback ~/.config/goldrush)
// macOS:   ~/Library/Application Support/goldrush
// Windows: %APPDATA%/goldrush
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "goldrush"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "goldrush"), nil
	default:
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "goldrush"), nil
	}
}

// LocalConfigFile returns $(CWD)/.goldrush/config.yaml.
func LocalConfigFile() (string, error) {
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName, ConfigFileName), nil
}

// ResolveConfigFile returns the config file following the precedence chain:
// flag > GOLDRUSH_CONFIG env > ./.goldrush/config.yaml > platform config dir.
//
// An explicit flag or env value is returned even if the file is missing, so
// the caller reports it. The two defaults are returned only when they exist;
// otherwise the result is empty and no file is read.
func ResolveConfigFile(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return filepath.Abs(env)
	}

	local, err := LocalConfigFile()
	if err != nil {
		return "", err
	}
	if exists(local) {
		return local, nil
	}

	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	if platform := filepath.Join(dir, ConfigFileName); exists(platform) {
		return platform, nil
	}
	return "", nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
