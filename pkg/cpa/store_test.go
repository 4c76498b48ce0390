package cpa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing domain is absent", func(t *testing.T) {
		store := NewTokenStore(newMemStore(), nil)
		token, err := store.Get(ctx, "news.example")
		require.NoError(t, err)
		assert.Nil(t, token)
	})

	t.Run("put then get", func(t *testing.T) {
		clock := newFakeClock()
		store := NewTokenStore(newMemStore(), clock.Now)
		token := mustToken(t, testParams("news.example", TokenTypeClient))

		require.NoError(t, store.Put(ctx, "news.example", token))
		got, err := store.Get(ctx, "news.example")
		require.NoError(t, err)
		assert.True(t, token.Equal(got))
	})

	t.Run("put replaces previous token", func(t *testing.T) {
		clock := newFakeClock()
		store := NewTokenStore(newMemStore(), clock.Now)
		require.NoError(t, store.Put(ctx, "radio.example", mustToken(t, testParams("radio.example", TokenTypeClient))))
		user := mustToken(t, testParams("radio.example", TokenTypeUser))
		require.NoError(t, store.Put(ctx, "radio.example", user))

		got, err := store.Get(ctx, "radio.example")
		require.NoError(t, err)
		assert.Equal(t, TokenTypeUser, got.Type())
	})

	t.Run("expired token is hidden but kept", func(t *testing.T) {
		clock := newFakeClock()
		backend := newMemStore()
		store := NewTokenStore(backend, clock.Now)
		require.NoError(t, store.Put(ctx, "news.example", mustToken(t, testParams("news.example", TokenTypeClient))))

		clock.Advance(time.Hour)

		got, err := store.Get(ctx, "news.example")
		require.NoError(t, err)
		assert.Nil(t, got)

		peeked, err := store.Peek(ctx, "news.example")
		require.NoError(t, err)
		require.NotNil(t, peeked)
		assert.True(t, peeked.IsExpired(clock.Now()))
	})

	t.Run("put rejects a token for another domain", func(t *testing.T) {
		store := NewTokenStore(newMemStore(), nil)
		err := store.Put(ctx, "radio.example", mustToken(t, testParams("news.example", TokenTypeClient)))
		assert.ErrorIs(t, err, ErrStorage)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("backend failure is a storage error", func(t *testing.T) {
		backend := newMemStore()
		backend.saveErr = errBoom
		store := NewTokenStore(backend, nil)
		err := store.Put(ctx, "news.example", mustToken(t, testParams("news.example", TokenTypeClient)))
		assert.ErrorIs(t, err, ErrStorage)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("corrupt payload is a storage error", func(t *testing.T) {
		backend := newMemStore()
		backend.entries["news.example"] = []byte("garbage")
		store := NewTokenStore(backend, nil)
		_, err := store.Get(ctx, "news.example")
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("payload stored under the wrong key is rejected", func(t *testing.T) {
		backend := newMemStore()
		data, err := EncodeToken(mustToken(t, testParams("news.example", TokenTypeClient)))
		require.NoError(t, err)
		backend.entries["radio.example"] = data
		store := NewTokenStore(backend, nil)
		_, err = store.Get(ctx, "radio.example")
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := NewTokenStore(newMemStore(), nil)
		require.NoError(t, store.Put(ctx, "news.example", mustToken(t, testParams("news.example", TokenTypeClient))))
		require.NoError(t, store.Delete(ctx, "news.example"))
		require.NoError(t, store.Delete(ctx, "news.example"))

		got, err := store.Peek(ctx, "news.example")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
