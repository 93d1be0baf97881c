// Package pathutil confines archive reads and writes to netwave's own
// directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/netwave/internal/constants"
)

// BackupsDirName is the archive directory under ~/.netwave and under the
// output directory.
const BackupsDirName = "backups"

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath reports an error unless path, after cleaning and symlink
// resolution, lies inside one of allowedDirs.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	target, err := resolve(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	for _, dir := range allowedDirs {
		base, err := filepath.Abs(filepath.Clean(dir))
		if err != nil {
			continue
		}
		if base, err = resolveExisting(base); err != nil {
			continue
		}
		if within(target, base) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(target))
}

// resolve makes path absolute and resolves symlinks in its directory. The
// file itself need not exist.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("cannot resolve parent directory: %w", err)
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of dir
// and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolved, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

// within reports whether path is base or below it. "/tmp/foobar" is not
// within "/tmp/foo".
func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}

// GlobalBackupDir returns ~/.netwave/backups.
func GlobalBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.ConfigDirName, BackupsDirName), nil
}

// AllowedBackupDirs returns the directories archives may be written to or
// read from: ~/.netwave/backups and <outputDir>/backups.
func AllowedBackupDirs(outputDir string) ([]string, error) {
	global, err := GlobalBackupDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{global}
	if outputDir != "" {
		dirs = append(dirs, filepath.Join(outputDir, BackupsDirName))
	}
	return dirs, nil
}
