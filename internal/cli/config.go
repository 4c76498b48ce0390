package cli

import (
	"fmt"
	"io"

	"github.com/ebu/cpa-go/internal/config"
	"github.com/ebu/cpa-go/pkg/logging"
)

// LoadConfig loads the configuration selected by flags and applies the
// command line overrides on top of it.
func LoadConfig(flags *CommandFlags) (config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.ProviderURL != "" {
		cfg.Provider.URL = flags.ProviderURL
	}
	if flags.Debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// InitLogging installs the process logger described by cfg, writing to out.
func InitLogging(cfg config.LoggingConfig, out io.Writer) error {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logging.Init(level, logging.Format(cfg.Format), out)
	return nil
}
