// Package pangu holds process-wide defaults shared by the agent's packages.
package pangu

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "pangu"
	DefaultDatabaseType = "libsql"
)

var (
	// DefaultConfigPath is the per-user configuration directory.
	DefaultConfigPath = filepath.Join(userHome(), ".config", DefaultAppName)
	// DefaultCacheDir holds downloaded or extracted artifacts.
	DefaultCacheDir = filepath.Join(userHome(), ".cache", DefaultAppName)
	// DefaultDatabaseDir is where the embedded libsql file lives.
	DefaultDatabaseDir = filepath.Join(userHome(), ".local", "share", DefaultAppName)
	// DefaultDatabaseDSN is the embedded database path.
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "pangu.db")
)

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
