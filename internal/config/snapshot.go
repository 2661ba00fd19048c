package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const snapshotFile = "config.snapshot.yaml"

// WriteSnapshot records the effective config next to the run history so a
// running server's settings can be inspected later.
func WriteSnapshot(stateDir string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stateDir, snapshotFile), data, 0o600)
}
