package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveDataDir returns the absolute data directory memoria should operate
// in. Relative paths resolve against the current working directory.
func ResolveDataDir(cfg *Config) string {
	dir := DefaultDataDir
	if cfg != nil && strings.TrimSpace(cfg.DataDir) != "" {
		dir = strings.TrimSpace(cfg.DataDir)
	}
	dir = expandHomeDir(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// LogDir returns the directory structured logs are written to, defaulting
// to <data_dir>/logs when not configured.
func (c *Config) LogDir() string {
	if c != nil && strings.TrimSpace(c.Logging.Dir) != "" {
		return expandHomeDir(strings.TrimSpace(c.Logging.Dir))
	}
	return filepath.Join(ResolveDataDir(c), "logs")
}

// StoragePath returns the sqlite snapshot path, defaulting to
// <data_dir>/memoria.db when not configured.
func (c *Config) StoragePath() string {
	if c != nil && strings.TrimSpace(c.Storage.Path) != "" {
		return expandHomeDir(strings.TrimSpace(c.Storage.Path))
	}
	return filepath.Join(ResolveDataDir(c), "memoria.db")
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
