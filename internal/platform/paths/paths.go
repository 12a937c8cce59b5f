package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultDataRoot = "data"

	ConfigDir   = "config"
	LogsDir     = "logs"
	EvidenceDir = "detected_persons"
)

// ResolveDataRoot returns the directory holding config, logs and evidence.
func ResolveDataRoot() string {
	root := os.Getenv("CAMWATCH_DATA_ROOT")
	if root == "" {
		root = DefaultDataRoot
	}
	return root
}

// ResolveConfigPath returns the path of the main configuration file.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	return filepath.Join(ResolveDataRoot(), ConfigDir, "camwatch.yaml")
}

// ResolveSettingsPath returns the path of the per-camera settings file.
func ResolveSettingsPath() string {
	return filepath.Join(ResolveDataRoot(), ConfigDir, "camera_settings.yaml")
}

func ResolveEvidenceDir() string {
	return filepath.Join(ResolveDataRoot(), EvidenceDir)
}

func ResolveLogsDir() string {
	return filepath.Join(ResolveDataRoot(), LogsDir)
}

// EnsureDirs creates the data subdirectories if they don't exist.
func EnsureDirs() error {
	dataRoot := ResolveDataRoot()
	for _, sub := range []string{ConfigDir, LogsDir, EvidenceDir} {
		path := filepath.Join(dataRoot, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// SafeJoin joins path elements and ensures the result is within the base directory (no traversal).
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) || strings.HasPrefix(el, `\\`) {
			return "", fmt.Errorf("path traversal attempt detected: absolute path not allowed in elements: %s", el)
		}
	}
	joined := filepath.Join(append([]string{base}, elements...)...)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}

	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s is outside %s", absJoined, absBase)
	}
	return absJoined, nil
}
