package cpa

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by SecureStore.Load when no payload exists for a key.
var ErrNotFound = errors.New("not found")

// SecureStore is the durable, domain-keyed store tokens are persisted to.
// Payloads are opaque to the store. Implementations live in
// internal/securestore; any keychain-like backend can be plugged in.
type SecureStore interface {
	// Load returns the payload saved for key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save stores payload under key, replacing any previous payload.
	Save(ctx context.Context, key string, payload []byte) error
	// Erase removes key. Erasing a missing key is not an error.
	Erase(ctx context.Context, key string) error
}

// TokenStore caches tokens per domain on top of a SecureStore.
// Expired entries are reported as absent but only removed on the next write
// or an explicit Delete.
type TokenStore struct {
	backend SecureStore
	now     func() time.Time
}

// NewTokenStore wraps backend. now defaults to time.Now.
func NewTokenStore(backend SecureStore, now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{backend: backend, now: now}
}

// Get returns the valid token stored for domain, or nil when there is none
// or it has expired.
func (s *TokenStore) Get(ctx context.Context, domain string) (*Token, error) {
	token, err := s.Peek(ctx, domain)
	if err != nil || token == nil {
		return nil, err
	}
	if token.IsExpired(s.now()) {
		return nil, nil
	}
	return token, nil
}

// Peek returns the stored token for domain even if it has expired.
func (s *TokenStore) Peek(ctx context.Context, domain string) (*Token, error) {
	data, err := s.backend.Load(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storageError(domain, "load", err)
	}

	token, err := DecodeToken(data)
	if err != nil {
		return nil, storageError(domain, "decode", err)
	}
	if token.Domain() != domain {
		return nil, storageError(domain, "decode", fmt.Errorf("stored token belongs to domain %q", token.Domain()))
	}
	return token, nil
}

// Put persists token for domain, replacing whatever was stored before.
func (s *TokenStore) Put(ctx context.Context, domain string, token *Token) error {
	if token == nil {
		return newError(KindStorage, domain, fmt.Errorf("%w: nil token", ErrInvalidToken))
	}
	if token.Domain() != domain {
		return newError(KindStorage, domain, fmt.Errorf("%w: token for domain %q", ErrInvalidToken, token.Domain()))
	}

	data, err := EncodeToken(token)
	if err != nil {
		return storageError(domain, "encode", err)
	}
	if err := s.backend.Save(ctx, domain, data); err != nil {
		return storageError(domain, "save", err)
	}
	return nil
}

// Delete removes any token stored for domain. It is idempotent.
func (s *TokenStore) Delete(ctx context.Context, domain string) error {
	if err := s.backend.Erase(ctx, domain); err != nil && !errors.Is(err, ErrNotFound) {
		return storageError(domain, "erase", err)
	}
	return nil
}
