// Package utils provides small shared helpers: advisory token counting,
// identifier sanitizing, and curator workspace scaffolding.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// CuratorDir is the directory name for curator-specific files.
	CuratorDir = ".curator"

	// ConfigFilename is the workspace config file name.
	ConfigFilename = "config.yaml"
)

// DefaultConfigTemplate is written by CreateCuratorWorkspace when no config
// file exists yet. Every uncommented value matches the built-in default.
const DefaultConfigTemplate = `# curator configuration
database:
  path: curator.db
events:
  dir: logs
review:
  confidence_threshold: 0.7
memory:
  token_budget: 8000
  budget_fraction: 0.8
  retention_window: 3
  # Optional advisory model encoding for the stats command, e.g. gpt-4.
  # tokenizer: gpt-4
jobs:
  keep_checkpoints: 5
# metrics:
#   prometheus_url: http://localhost:9090
`

// ConfigPath returns the workspace config file path under workDir.
func ConfigPath(workDir string) string {
	return filepath.Join(workDir, CuratorDir, ConfigFilename)
}

// CreateCuratorWorkspace creates the .curator directory with a default
// config file and the default event log directory. Existing files are left
// alone, so running it twice is safe.
func CreateCuratorWorkspace(workDir string) error {
	curatorPath := filepath.Join(workDir, CuratorDir)
	if err := os.MkdirAll(curatorPath, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", CuratorDir, err)
	}

	if err := os.MkdirAll(filepath.Join(workDir, "logs"), 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	configPath := filepath.Join(curatorPath, ConfigFilename)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", ConfigFilename, err)
		}
	}

	return nil
}
