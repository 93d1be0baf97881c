package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/netwave/internal/constants"
)

// GlobalNetwavePath returns the path to the per-user .netwave directory.
// On Unix: ~/.netwave
// On Windows: %USERPROFILE%\.netwave
func GlobalNetwavePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.ConfigDirName), nil
}

// GlobalConfigPath returns ~/.netwave/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalNetwavePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureGlobalNetwaveDir creates the .netwave directory if it doesn't exist.
// Returns nil if the directory already exists or was successfully created.
func EnsureGlobalNetwaveDir() error {
	globalPath, err := GlobalNetwavePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return fmt.Errorf("failed to create global .netwave directory: %w", err)
	}

	return nil
}
