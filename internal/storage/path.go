package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "openbbox"

// DataDirEnv overrides the data directory.
const DataDirEnv = "OPENBBOX_HOME"

// DataDir returns the directory to store history, logs and config.
// - $OPENBBOX_HOME when set
// - Linux: $XDG_DATA_HOME/openbbox or ~/.local/share/openbbox
// - macOS: ~/Library/Application Support/openbbox
// - Windows: %APPDATA%/openbbox (falls back to UserConfigDir)
func DataDir() (string, error) {
	dir, err := resolveDataDir(runtime.GOOS)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure data directory: %w", err)
	}
	return dir, nil
}

func resolveDataDir(goos string) (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}
	switch goos {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			var err error
			base, err = os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("resolve config directory: %w", err)
			}
		}
		return filepath.Join(base, appName), nil
	default:
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			base = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(base, appName), nil
	}
}

// DatabasePath is the history database inside dir.
func DatabasePath(dir string) string {
	return filepath.Join(dir, "history.db")
}

// LogPath is the log file inside dir.
func LogPath(dir string) string {
	return filepath.Join(dir, appName+".log")
}
