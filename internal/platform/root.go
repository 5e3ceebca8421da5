package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrRootNotFound is returned when no workspace root exists above a directory.
var ErrRootNotFound = errors.New("root not found")

// ConfigNames are the config files FindConfig looks for, in order.
var ConfigNames = []string{"canopy.yaml", "canopy.yml", "canopy.toml"}

// FindRoot recursively looks upwards for a workspace root indicator.
// Indicators are: a .canopy directory, a .git directory, or a canopy config file.
// If found, returns the absolute path to the root.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, ".canopy") || hasFile(dir, ".git") || configIn(dir) != "" {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", ErrRootNotFound
}

// FindConfig returns the config file of the workspace containing startDir,
// or "" when the root carries none.
func FindConfig(startDir string) (string, error) {
	root, err := FindRoot(startDir)
	if err != nil {
		return "", err
	}
	return configIn(root), nil
}

func configIn(dir string) string {
	for _, name := range ConfigNames {
		if hasFile(dir, name) {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
