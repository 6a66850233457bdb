package envcipher

import (
	"fmt"
	"os"
	"path/filepath"
)

func expandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	switch path[0] {
	case '~':
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(homeDir, path[1:]), nil
	case '/':
		return path, nil
	case '$':
		envVar := path[1:]
		if value, exists := os.LookupEnv(envVar); exists {
			return value, nil
		}
		return "", fmt.Errorf("environment variable %s is not set", envVar)
	default:
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		return filepath.Join(wd, path), nil
	}
}
