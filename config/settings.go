package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type systemConfigFile struct {
	DataDirectory  string `toml:"data_directory"`
	ModelName      string `toml:"model_name"`
	MetaModelName  string `toml:"meta_model_name"`
	ImageModelName string `toml:"image_model_name"`
}

// LoadSystemConfig reads settings.toml, creating the default file if it
// does not exist yet.
func LoadSystemConfig() (*Config, error) {
	cfg := DefaultSystemConfig()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := CreateDefaultSystemConfig(); err != nil {
			return nil, fmt.Errorf("failed to create system config: %w", err)
		}
		return cfg, nil
	}

	var file systemConfigFile
	if _, err := toml.DecodeFile(settingsPath, &file); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	if file.DataDirectory != "" {
		cfg.DataDirectory = file.DataDirectory
	}
	if file.ModelName != "" {
		cfg.ModelName = file.ModelName
	}
	if file.MetaModelName != "" {
		cfg.MetaModelName = file.MetaModelName
	}
	if file.ImageModelName != "" {
		cfg.ImageModelName = file.ImageModelName
	}

	return cfg, nil
}

// CreateDefaultSystemConfig writes the default settings.toml if absent.
func CreateDefaultSystemConfig() error {
	configDir := GetConfigDir()
	if err := EnsureDir(configDir); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) {
		return nil
	}

	content := GenerateSystemConfigTemplate()
	// 0600: settings may name private infrastructure
	if err := os.WriteFile(settingsPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write system config: %w", err)
	}

	return nil
}
