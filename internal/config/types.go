package config

import "time"

// Config is the top-level configuration of the cpa command.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Client   ClientConfig   `yaml:"client"`
	Store    StoreConfig    `yaml:"store"`
	Polling  PollingConfig  `yaml:"polling"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig locates the authorization provider.
type ProviderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // Per-request HTTP timeout (default: 30s)
}

// ClientConfig is the software identity sent at registration.
type ClientConfig struct {
	Name            string `yaml:"name,omitempty"`
	SoftwareID      string `yaml:"softwareID,omitempty"`
	SoftwareVersion string `yaml:"softwareVersion,omitempty"`
}

// StoreConfig selects the token store backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // memory, file or sqlite (default: file)
	Path    string `yaml:"path,omitempty"`    // Directory or database path; empty selects the backend default
	KeyFile string `yaml:"keyFile,omitempty"` // Enables at-rest encryption when set
}

// PollingConfig tunes device grant polling.
type PollingConfig struct {
	SlowDownIncrement time.Duration `yaml:"slowDownIncrement,omitempty"`
	MaxDuration       time.Duration `yaml:"maxDuration,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig exposes session metrics over HTTP when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}
