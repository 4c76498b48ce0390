package cli

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ebu/cpa-go/internal/config"
	"github.com/ebu/cpa-go/internal/devprovider"
	"github.com/ebu/cpa-go/internal/securestore"
	"github.com/ebu/cpa-go/pkg/cpa"
)

func TestNewProviderRequiresURL(t *testing.T) {
	cfg := config.GetDefaultConfig()
	store := securestore.NewMemoryStore()

	_, err := NewProvider(cfg, store)
	assert.ErrorIs(t, err, ErrNoProviderURL)
}

func TestNewProviderAgainstDevProvider(t *testing.T) {
	dev := devprovider.New(devprovider.Options{
		Domains:    []devprovider.Domain{{Name: "news.example", DisplayName: "News"}},
		BcryptCost: bcrypt.MinCost,
	})
	srv := httptest.NewServer(dev)
	defer srv.Close()

	cfg := config.GetDefaultConfig()
	cfg.Provider.URL = srv.URL
	cfg.Provider.Timeout = 5 * time.Second
	cfg.Store.Backend = securestore.BackendMemory

	store, err := OpenStore(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	provider, err := NewProvider(cfg, store)
	require.NoError(t, err)
	defer provider.Close()
	assert.Equal(t, srv.URL, provider.BaseURL())

	token, err := provider.Token(context.Background(), "news.example", false)
	require.NoError(t, err)
	assert.Equal(t, cpa.TokenTypeClient, token.Type())
	assert.Equal(t, "News", token.DomainName())

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"news.example"}, keys)
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Backend = "etcd"

	_, err := OpenStore(cfg, nil)
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  url: https://from-file.example\n"), 0600))
	t.Setenv(config.EnvProviderURL, "")

	cfg, err := LoadConfig(&CommandFlags{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "https://from-file.example", cfg.Provider.URL)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg, err = LoadConfig(&CommandFlags{ConfigPath: path, ProviderURL: "https://flag.example", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example", cfg.Provider.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestInitLogging(t *testing.T) {
	assert.NoError(t, InitLogging(config.LoggingConfig{Level: "debug", Format: "json"}, os.Stderr))
	assert.Error(t, InitLogging(config.LoggingConfig{Level: "loud"}, os.Stderr))
	assert.NoError(t, InitLogging(config.LoggingConfig{}, os.Stderr))
}
