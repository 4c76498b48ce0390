package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ebu/cpa-go/internal/config"
	"github.com/ebu/cpa-go/internal/securestore"
	"github.com/ebu/cpa-go/pkg/cpa"
	"github.com/ebu/cpa-go/pkg/logging"
)

// ErrNoProviderURL is returned when no authorization provider is configured.
var ErrNoProviderURL = errors.New("no authorization provider configured: set provider.url in the config file, CPA_PROVIDER_URL or --provider")

// OpenStore opens the token store selected by the configuration. onChange,
// if not nil, is called when another process changes a file-backed store.
func OpenStore(cfg config.Config, onChange func()) (securestore.Store, error) {
	store, err := securestore.Open(securestore.Options{
		Backend:  cfg.Store.Backend,
		Path:     cfg.Store.Path,
		KeyFile:  cfg.Store.KeyFile,
		OnChange: onChange,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s token store: %w", cfg.Store.Backend, err)
	}
	return store, nil
}

// NewProvider builds a provider from the configuration on top of store.
// Extra options are applied after the configured ones.
func NewProvider(cfg config.Config, store cpa.SecureStore, opts ...cpa.Option) (*cpa.Provider, error) {
	if cfg.Provider.URL == "" {
		return nil, ErrNoProviderURL
	}

	timeout := cfg.Provider.Timeout
	if timeout <= 0 {
		timeout = cpa.DefaultHTTPTimeout
	}

	base := []cpa.Option{
		cpa.WithLogger(logging.Logger("Provider")),
		cpa.WithSlowDownIncrement(cfg.Polling.SlowDownIncrement),
		cpa.WithMaxPollDuration(cfg.Polling.MaxDuration),
		cpa.WithClientOptions(
			cpa.WithHTTPClient(&http.Client{Timeout: timeout}),
			cpa.WithSoftware(cfg.Client.Name, cfg.Client.SoftwareID, cfg.Client.SoftwareVersion),
		),
	}

	provider, err := cpa.New(cfg.Provider.URL, store, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	return provider, nil
}
