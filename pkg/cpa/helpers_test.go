package cpa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock advances by d on every After call and fires immediately, unless
// hold is set, in which case After never fires.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	hold  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	if c.hold {
		return make(chan time.Time)
	}
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// memStore is a SecureStore kept in memory.
type memStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]byte)}
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *memStore) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.entries[key] = payload
	return nil
}

func (s *memStore) Erase(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// gatedStore blocks loads of one key until release is closed.
type gatedStore struct {
	*memStore
	key     string
	loading chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(key string) *gatedStore {
	return &gatedStore{
		memStore: newMemStore(),
		key:      key,
		loading:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *gatedStore) Load(ctx context.Context, key string) ([]byte, error) {
	if key == s.key {
		s.once.Do(func() { close(s.loading) })
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.memStore.Load(ctx, key)
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type reply struct {
	status int
	body   string
}

// fakeCPA is a scripted authorization provider.
type fakeCPA struct {
	mu sync.Mutex

	registerReply *reply
	registerGate  chan struct{}
	associate     *reply
	clientToken   *reply

	// registerScript and associateScript are served once each, in order,
	// before falling back to the replies above.
	registerScript  []reply
	associateScript []reply

	// polls are served in order; the last one repeats.
	polls []reply

	interval  int64
	expiresIn int64
	lifetime  int64

	registrations int
	associations  int
	clientTokens  int
	pollCount     int
}

func newFakeCPA() *fakeCPA {
	return &fakeCPA{interval: 5, expiresIn: 600, lifetime: 3600}
}

func (f *fakeCPA) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCPA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]string
	_ = json.Unmarshal(body, &req)

	switch r.URL.Path {
	case RegisterPath:
		f.mu.Lock()
		f.registrations++
		n := f.registrations
		gate := f.registerGate
		rep := f.registerReply
		if len(f.registerScript) > 0 {
			rep = &f.registerScript[0]
			f.registerScript = f.registerScript[1:]
		}
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if rep != nil {
			writeReply(w, *rep)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"client_id":     fmt.Sprintf("client-%d", n),
			"client_secret": fmt.Sprintf("secret-%d", n),
		})

	case AssociatePath:
		f.mu.Lock()
		f.associations++
		rep := f.associate
		if len(f.associateScript) > 0 {
			rep = &f.associateScript[0]
			f.associateScript = f.associateScript[1:]
		}
		interval, expiresIn := f.interval, f.expiresIn
		f.mu.Unlock()
		if rep != nil {
			writeReply(w, *rep)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "device-" + req["domain"],
			"user_code":        "ABCD-1234",
			"verification_uri": "https://cpa.example/verify",
			"interval":         interval,
			"expires_in":       expiresIn,
		})

	case TokenPath:
		if req["grant_type"] == GrantTypeClientCredentials {
			f.mu.Lock()
			f.clientTokens++
			n := f.clientTokens
			rep := f.clientToken
			lifetime := f.lifetime
			f.mu.Unlock()
			if rep != nil {
				writeReply(w, *rep)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":        fmt.Sprintf("client-token-%d", n),
				"token_type":          "bearer",
				"domain":              req["domain"],
				"domain_display_name": "Display " + req["domain"],
				"expires_in":          lifetime,
			})
			return
		}

		f.mu.Lock()
		f.pollCount++
		var rep *reply
		if len(f.polls) > 0 {
			rep = &f.polls[0]
			if len(f.polls) > 1 {
				f.polls = f.polls[1:]
			}
		}
		lifetime := f.lifetime
		f.mu.Unlock()
		if rep != nil && rep.status != 0 {
			writeReply(w, *rep)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "user-token",
			"token_type":   "bearer",
			"domain":       req["domain"],
			"user_name":    "Alice",
			"expires_in":   lifetime,
		})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCPA) counts() (registrations, associations, clientTokens, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registrations, f.associations, f.clientTokens, f.pollCount
}

var (
	pendingReply   = reply{status: http.StatusAccepted, body: `{"reason":"authorization_pending"}`}
	slowDownReply  = reply{status: http.StatusBadRequest, body: `{"error":"slow_down"}`}
	authorizeReply = reply{}
)

func writeReply(w http.ResponseWriter, rep reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = io.WriteString(w, rep.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, url string, store SecureStore, clock Clock, opts ...Option) *Provider {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLogger(discardLogger())}, opts...)
	p, err := New(url, store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func mustToken(t *testing.T, params TokenParams) *Token {
	t.Helper()
	token, err := NewToken(params)
	require.NoError(t, err)
	return token
}

func testParams(domain string, tokenType TokenType) TokenParams {
	return TokenParams{
		Value:        "value-" + domain,
		ClientID:     "client",
		ClientSecret: "secret",
		Domain:       domain,
		Type:         tokenType,
		Lifetime:     3600,
		IssuedAt:     testEpoch,
	}
}

var errBoom = errors.New("boom")
