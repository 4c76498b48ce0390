package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ebu/cpa-go/pkg/logging"
)

const (
	userConfigDir  = ".config/cpa"
	configFileName = "config.yaml"

	// EnvConfigPath overrides the configuration file path.
	EnvConfigPath = "CPA_CONFIG"
	// EnvProviderURL overrides provider.url.
	EnvProviderURL = "CPA_PROVIDER_URL"
)

// DefaultConfigPath returns ~/.config/cpa/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// ResolvePath returns path if set, else $CPA_CONFIG, else the default path.
func ResolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return DefaultConfigPath()
}

// Load reads the configuration file at path (see ResolvePath), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	configFilePath, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}

	config := GetDefaultConfig()

	// #nosec G304 -- the path is chosen by the local user
	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("ConfigLoader", "No config file found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	applyEnv(&config)
	config.Store.Path = expandHome(config.Store.Path)
	config.Store.KeyFile = expandHome(config.Store.KeyFile)

	if err := Validate(config); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", configFilePath, err)
	}
	return config, nil
}

// Save writes config to path as YAML, creating the directory if needed.
func Save(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(config *Config) {
	if url := os.Getenv(EnvProviderURL); url != "" {
		config.Provider.URL = url
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
