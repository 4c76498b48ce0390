package cpa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Provider obtains, caches and discards tokens for domains served by one
// authorization provider.
//
// A Provider is safe for concurrent use. Requests, discards and session
// commits for a domain access the store under that domain's lock, and the
// session registry sits behind a separate short-held mutex, so slow storage
// for one domain never stalls another. This gives the following guarantees:
//   - at most one authorization session runs per domain; concurrent requests
//     for the same domain join it
//   - callbacks for one domain are invoked sequentially, in the order the
//     requests were attached, from the session's goroutine
//   - once DiscardTokenForDomain returns, no result of the discarded session
//     is written to the store or delivered as a token
//
// Callbacks must not block for long, since they hold up delivery to the
// remaining waiters of the same domain.
type Provider struct {
	client *AuthorizationClient
	store  *TokenStore
	opts   options
	logger *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
	locks    map[string]*sync.Mutex
	closed   bool
}

// New creates a provider for the authorization provider at baseURL,
// persisting tokens to store.
func New(baseURL string, store SecureStore, opts ...Option) (*Provider, error) {
	if store == nil {
		return nil, errors.New("secure store is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := append([]ClientOption{
		WithClientLogger(o.logger),
		withClientNow(o.clock.Now),
	}, o.clientOpts...)
	client, err := NewAuthorizationClient(baseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		client:     client,
		store:      NewTokenStore(store, o.clock.Now),
		opts:       o,
		logger:     o.logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		sessions:   make(map[string]*session),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// domainLock returns the lock serializing store access for domain.
// It must be acquired before p.mu, never while holding it.
func (p *Provider) domainLock(domain string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		p.locks[domain] = l
	}
	return l
}

// BaseURL returns the authorization provider URL the provider was created with.
func (p *Provider) BaseURL() string {
	return p.client.BaseURL()
}

// Store returns the token store backing the provider.
func (p *Provider) Store() *TokenStore {
	return p.store
}

// TokenForDomain returns the valid token cached for domain, or nil.
// It never contacts the authorization provider.
func (p *Provider) TokenForDomain(ctx context.Context, domain string) (*Token, error) {
	return p.store.Get(ctx, domain)
}

// RequestToken obtains a token for domain and passes the outcome to callback.
//
// A valid cached token is delivered immediately, from the calling goroutine,
// unless authenticated is true and the cached token is a client token. In
// every other case the request joins the domain's active session, or starts
// one in client mode (authenticated == false) or user mode. A successful
// session replaces whatever token was stored for the domain.
//
// The callback is invoked exactly once, with either a token or an error.
// Errors are *Error values, ErrCancelled or ErrClosed.
func (p *Provider) RequestToken(ctx context.Context, domain string, authenticated bool, callback Callback) {
	if callback == nil {
		callback = func(*Token, error) {}
	}
	if domain == "" {
		callback(nil, &Error{Kind: KindInvalidRequest, Description: "domain is required"})
		return
	}

	if p.isClosed() {
		callback(nil, ErrClosed)
		return
	}

	dl := p.domainLock(domain)
	dl.Lock()

	cached, err := p.store.Get(ctx, domain)
	if err != nil {
		dl.Unlock()
		callback(nil, err)
		return
	}
	if cached != nil && (!authenticated || cached.Type() == TokenTypeUser) {
		dl.Unlock()
		callback(cached, nil)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		dl.Unlock()
		callback(nil, ErrClosed)
		return
	}
	if s, ok := p.sessions[domain]; ok {
		s.waiters = append(s.waiters, callback)
		state := s.state
		p.mu.Unlock()
		dl.Unlock()
		p.logger.Debug("Joined active token session", "domain", domain, "state", state.String())
		return
	}

	s := newSession(p, domain, authenticated)
	s.waiters = append(s.waiters, callback)
	p.sessions[domain] = s
	p.mu.Unlock()
	dl.Unlock()

	p.opts.observer.SessionStarted(domain, authenticated)
	p.logger.Info("Starting token session",
		"domain", domain,
		"authenticated", authenticated,
	)
	go s.run()
}

// Token is the blocking form of RequestToken. If ctx ends first, Token
// returns ctx.Err(); the session keeps running for other waiters.
func (p *Provider) Token(ctx context.Context, domain string, authenticated bool) (*Token, error) {
	type result struct {
		token *Token
		err   error
	}
	ch := make(chan result, 1)
	p.RequestToken(ctx, domain, authenticated, func(token *Token, err error) {
		ch <- result{token: token, err: err}
	})

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DiscardTokenForDomain deletes the token cached for domain and cancels the
// domain's active session, whose waiters receive ErrCancelled.
func (p *Provider) DiscardTokenForDomain(ctx context.Context, domain string) error {
	dl := p.domainLock(domain)
	dl.Lock()
	defer dl.Unlock()

	p.mu.Lock()
	if s, ok := p.sessions[domain]; ok {
		s.cancelled = true
		s.cancel()
		delete(p.sessions, domain)
		p.logger.Info("Cancelled token session", "domain", domain)
	}
	p.mu.Unlock()

	return p.store.Delete(ctx, domain)
}

func (p *Provider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SessionState returns the state of the active session for domain, if any.
func (p *Provider) SessionState(domain string) (SessionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[domain]
	if !ok {
		return 0, false
	}
	return s.state, true
}

// PendingApproval returns the approval details of the active user-mode
// session for domain, once the provider has issued a device grant.
func (p *Provider) PendingApproval(domain string) (Approval, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[domain]
	if !ok || s.approval == nil {
		return Approval{}, false
	}
	return *s.approval, true
}

// ActiveDomains returns the domains with an active session, sorted.
func (p *Provider) ActiveDomains() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	domains := make([]string, 0, len(p.sessions))
	for domain := range p.sessions {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Close cancels every active session and waits for their waiters to be
// notified. Requests made after Close fail with ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	running := make([]*session, 0, len(p.sessions))
	for domain, s := range p.sessions {
		s.cancelled = true
		running = append(running, s)
		delete(p.sessions, domain)
	}
	p.mu.Unlock()

	p.baseCancel()
	for _, s := range running {
		<-s.done
	}
	return nil
}
