package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const dataDirEnvVar = "VULNZ_AGENT_DATA_DIR"

// getDataDir returns the directory holding the agent database for the
// current OS, following the XDG Base Directory specification on Linux/Unix.
// The directory is created when the database is first opened.
func getDataDir() (string, error) {
	if dir := os.Getenv(dataDirEnvVar); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "windows":
		// Windows: %LOCALAPPDATA%\vulnz-agent
		baseDir := os.Getenv("LOCALAPPDATA")
		if baseDir == "" {
			baseDir = os.Getenv("APPDATA")
		}
		if baseDir == "" {
			return "", fmt.Errorf("could not determine Windows data directory")
		}
		return filepath.Join(baseDir, defaultConfigName), nil

	case "darwin":
		// macOS: ~/Library/Application Support/vulnz-agent
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", defaultConfigName), nil

	default:
		// Priority: $XDG_DATA_HOME/vulnz-agent > ~/.local/share/vulnz-agent
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return filepath.Join(xdgDataHome, defaultConfigName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".local", "share", defaultConfigName), nil
	}
}

// defaultDBPath falls back to the working directory when no data directory
// can be determined.
func defaultDBPath() string {
	dir, err := getDataDir()
	if err != nil {
		return defaultDBFile
	}
	return filepath.Join(dir, defaultDBFile)
}
