package config

import (
	"github.com/ebu/cpa-go/pkg/cpa"
)

const (
	// DefaultStoreBackend keeps tokens across invocations.
	DefaultStoreBackend = "file"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the log format used when none is configured.
	DefaultLogFormat = "text"
)

// GetDefaultConfig returns the configuration used when no file is present.
func GetDefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout: cpa.DefaultHTTPTimeout,
		},
		Client: ClientConfig{
			Name:            cpa.DefaultClientName,
			SoftwareID:      cpa.DefaultSoftwareID,
			SoftwareVersion: cpa.DefaultSoftwareVersion,
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
		},
		Polling: PollingConfig{
			SlowDownIncrement: cpa.DefaultSlowDownIncrement,
			MaxDuration:       cpa.DefaultMaxPollDuration,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
