package devprovider_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ebu/cpa-go/internal/devprovider"
	"github.com/ebu/cpa-go/internal/metrics"
	"github.com/ebu/cpa-go/internal/securestore"
	"github.com/ebu/cpa-go/pkg/cpa"
)

// instantClock fires every wait immediately.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestProviderAgainstDevProvider(t *testing.T) {
	ctx := context.Background()

	dev := devprovider.New(devprovider.Options{
		Domains: []devprovider.Domain{
			{Name: "news.example", DisplayName: "News"},
			{Name: "radio.example", DisplayName: "Radio", TokenLifetime: 30 * time.Minute},
		},
		BcryptCost: bcrypt.MinCost,
	})
	srv := httptest.NewServer(dev)
	defer srv.Close()

	dir := t.TempDir()
	store, err := securestore.Open(securestore.Options{
		Backend: securestore.BackendSQLite,
		Path:    filepath.Join(dir, "tokens.db"),
		KeyFile: filepath.Join(dir, "store.key"),
	})
	require.NoError(t, err)
	defer store.Close()

	registry := metrics.NewRegistry()
	approvals := make(chan cpa.Approval, 1)
	provider, err := cpa.New(srv.URL, store,
		cpa.WithClock(instantClock{}),
		cpa.WithObserver(registry.Observer()),
		cpa.WithApprovalHandler(func(ctx context.Context, approval cpa.Approval) {
			_, err := dev.Approve(approval.UserCode, "Alice")
			assert.NoError(t, err)
			approvals <- approval
		}),
	)
	require.NoError(t, err)
	defer provider.Close()

	t.Run("client mode", func(t *testing.T) {
		token, err := provider.Token(ctx, "news.example", false)
		require.NoError(t, err)
		assert.Equal(t, cpa.TokenTypeClient, token.Type())
		assert.Equal(t, "News", token.DomainName())
		assert.Equal(t, int64(3600), token.LifetimeInSeconds())
	})

	t.Run("user mode", func(t *testing.T) {
		token, err := provider.Token(ctx, "radio.example", true)
		require.NoError(t, err)
		assert.Equal(t, cpa.TokenTypeUser, token.Type())
		assert.Equal(t, "Alice", token.UserName())
		assert.Equal(t, int64(1800), token.LifetimeInSeconds())

		approval := <-approvals
		assert.Equal(t, "radio.example", approval.Domain)
		assert.Equal(t, srv.URL+devprovider.VerifyPath, approval.VerificationURI)
	})

	t.Run("tokens persist across providers", func(t *testing.T) {
		other, err := cpa.New(srv.URL, store)
		require.NoError(t, err)
		defer other.Close()

		token, err := other.TokenForDomain(ctx, "radio.example")
		require.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, cpa.TokenTypeUser, token.Type())
	})

	t.Run("unknown domain", func(t *testing.T) {
		_, err := provider.Token(ctx, "other.example", false)
		assert.ErrorIs(t, err, cpa.ErrInvalidRequest)
	})

	t.Run("discard", func(t *testing.T) {
		require.NoError(t, provider.DiscardTokenForDomain(ctx, "news.example"))
		token, err := provider.TokenForDomain(ctx, "news.example")
		require.NoError(t, err)
		assert.Nil(t, token)

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"radio.example"}, keys)
	})

	// news.example and radio.example succeeded, other.example failed.
	count, err := testutil.GatherAndCount(registry.Gatherer(), "cpa_session_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
