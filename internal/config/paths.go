package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "CAMERABRIDGE_CONFIG"
	// ConfigFileName is the config file name looked up in the working directory
	ConfigFileName = "camerabridge.yaml"
	// ConfigDirName is the config directory name under XDG and /etc
	ConfigDirName = "camerabridge"
)

// SearchPaths lists config file candidates in priority order. Entries whose
// environment variable is unset are omitted.
func SearchPaths() []string {
	var paths []string

	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, ConfigFileName)
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing entry of SearchPaths, or ""
func FindConfigPath() string {
	for _, p := range SearchPaths() {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// EnsureConfigDir creates the parent directory of a config or data path
func EnsureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
