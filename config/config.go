package config

import (
	"fmt"
	"os"
)

// Config is the resolved runtime configuration. Persistent per-user
// state (API keys, rotation index, model override, feature flags) lives
// in the storage package; this covers only what must exist before the
// database can be opened.
type Config struct {
	DataDirectory  string
	ModelName      string
	MetaModelName  string
	ImageModelName string
}

// DataDir returns the expanded data directory path.
func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("GEMCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if model := os.Getenv("GEMCHAT_MODEL"); model != "" {
		c.ModelName = model
	}
}

// Load reads the system config (creating the default file on first
// run), applies env overrides, and ensures the data directory exists
// with user-only permissions.
func Load() (*Config, error) {
	cfg, err := LoadSystemConfig()
	if err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := EnsureDir(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}
