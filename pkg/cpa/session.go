package cpa

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SessionState is the state of a domain's token acquisition session.
type SessionState int

const (
	StateRegistering SessionState = iota
	StateRequestingGrant
	StateAwaitingApproval
	StatePolling
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateRequestingGrant:
		return "requesting_grant"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s SessionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Callback receives the outcome of a token request: exactly one of token or err is non-nil.
type Callback func(token *Token, err error)

// session owns the single in-flight authorization attempt for one domain.
// Fields below done are guarded by provider.mu.
type session struct {
	provider      *Provider
	domain        string
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}

	state     SessionState
	interval  time.Duration
	approval  *Approval
	cancelled bool
	waiters   []Callback
}

func newSession(p *Provider, domain string, authenticated bool) *session {
	ctx, cancel := context.WithCancel(p.baseCtx)
	return &session{
		provider:      p,
		domain:        domain,
		authenticated: authenticated,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		state:         StateRegistering,
	}
}

// run drives the session to a terminal state and delivers the outcome.
func (s *session) run() {
	defer close(s.done)
	defer s.cancel()

	start := s.provider.opts.clock.Now()
	token, err := s.acquire()
	s.finish(token, err, start)
}

func (s *session) acquire() (*Token, error) {
	client := s.provider.client
	deadline := s.provider.opts.clock.Now().Add(s.provider.opts.maxPollDuration)

	var creds ClientCredentials
	err := s.withBackoff(deadline, func() (err error) {
		creds, err = client.RegisterClient(s.ctx, s.domain)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.setState(StateRequestingGrant)
	var grant *DeviceGrant
	err = s.withBackoff(deadline, func() (err error) {
		grant, err = client.RequestDeviceAuthorization(s.ctx, creds, s.domain, s.authenticated)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !grant.Pending() {
		return grant.Token, nil
	}

	return s.awaitApproval(creds, grant)
}

// withBackoff runs step until it succeeds or fails with something other than
// slow_down, waiting a growing interval between attempts. An authorization
// pending answer outside polling is terminal and reported as KindUnknown.
func (s *session) withBackoff(deadline time.Time, step func() error) error {
	p := s.provider
	clock := p.opts.clock
	for {
		err := step()
		var cpaErr *Error
		if err == nil || !errors.As(err, &cpaErr) {
			return err
		}

		switch cpaErr.Kind {
		case KindPendingAuthorization:
			return &Error{
				Kind:        KindUnknown,
				Code:        cpaErr.Code,
				Description: cpaErr.Description,
				Domain:      cpaErr.Domain,
				Err:         cpaErr.Err,
			}
		case KindTooFast:
		default:
			return err
		}

		wait := s.slowDown()
		p.logger.Debug("Provider requested slow down", "domain", s.domain, "interval", wait)
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-clock.After(wait):
		}

		if !clock.Now().Before(deadline) {
			return &Error{
				Kind:        KindUnknown,
				Code:        cpaErr.Code,
				Domain:      s.domain,
				Description: fmt.Sprintf("provider kept asking to slow down for %s", p.opts.maxPollDuration),
			}
		}
	}
}

func (s *session) awaitApproval(creds ClientCredentials, grant *DeviceGrant) (*Token, error) {
	p := s.provider
	clock := p.opts.clock

	lifetime := grant.ExpiresIn
	if lifetime <= 0 {
		lifetime = p.opts.maxPollDuration
	}
	deadline := clock.Now().Add(lifetime)

	approval := Approval{
		Domain:          s.domain,
		VerificationURI: grant.VerificationURI,
		UserCode:        grant.UserCode,
		ExpiresAt:       deadline,
	}
	p.mu.Lock()
	s.state = StateAwaitingApproval
	s.approval = &approval
	s.interval = grant.Interval
	p.mu.Unlock()

	if handler := p.opts.approvalHandler; handler != nil {
		handler(s.ctx, approval)
	} else {
		p.logger.Info("Device approval required",
			"domain", s.domain,
			"verification_uri", approval.VerificationURI,
			"user_code", approval.UserCode,
		)
	}

	s.setState(StatePolling)
	for {
		interval := s.currentInterval()
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-clock.After(interval):
		}

		if !clock.Now().Before(deadline) {
			return nil, &Error{
				Kind:        KindUnknown,
				Code:        CodeExpiredToken,
				Domain:      s.domain,
				Description: fmt.Sprintf("device grant not approved within %s", lifetime),
			}
		}

		result, err := p.client.PollForToken(s.ctx, creds, s.domain, grant.DeviceCode)
		if err != nil {
			return nil, err
		}
		p.opts.observer.PollAttempt(s.domain, result.Outcome)

		switch result.Outcome {
		case OutcomeAuthorized:
			return result.Token, nil
		case OutcomePending:
			p.logger.Debug("Authorization pending", "domain", s.domain, "interval", interval)
		case OutcomeSlowDown:
			next := s.slowDown()
			p.logger.Debug("Provider requested slow down", "domain", s.domain, "interval", next)
		}
	}
}

// finish commits the outcome, removes the session from the registry and
// delivers the outcome to every waiter in attach order.
func (s *session) finish(token *Token, err error, start time.Time) {
	p := s.provider

	// The domain lock keeps discards and new requests for this domain out
	// while the outcome is committed.
	dl := p.domainLock(s.domain)
	dl.Lock()

	p.mu.Lock()
	cancelled := s.cancelled
	p.mu.Unlock()

	state := StateSucceeded
	switch {
	case cancelled:
		token, err, state = nil, ErrCancelled, StateCancelled
	case err != nil:
		token, state = nil, StateFailed
	default:
		if putErr := p.store.Put(s.ctx, s.domain, token); putErr != nil {
			token, err, state = nil, putErr, StateFailed
		}
	}

	p.mu.Lock()
	s.state = state
	if p.sessions[s.domain] == s {
		delete(p.sessions, s.domain)
	}
	waiters := s.waiters
	s.waiters = nil
	p.mu.Unlock()
	dl.Unlock()

	elapsed := p.opts.clock.Now().Sub(start)
	p.opts.observer.SessionFinished(s.domain, state, elapsed)
	if err != nil && state == StateFailed {
		p.logger.Warn("Token session failed",
			"domain", s.domain,
			"error", err.Error(),
		)
	} else {
		p.logger.Info("Token session finished",
			"domain", s.domain,
			"state", state.String(),
			"waiters", len(waiters),
		)
	}

	for _, w := range waiters {
		w(token, err)
	}
}

func (s *session) setState(state SessionState) {
	s.provider.mu.Lock()
	s.state = state
	s.provider.mu.Unlock()
	s.provider.logger.Debug("Session state changed", "domain", s.domain, "state", state.String())
}

func (s *session) currentInterval() time.Duration {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	return s.interval
}

func (s *session) slowDown() time.Duration {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.interval += s.provider.opts.slowDownIncrement
	return s.interval
}
