package cpa

import (
	"context"

	"golang.org/x/oauth2"
)

// OAuth2 converts the token for use with golang.org/x/oauth2 transports.
func (t *Token) OAuth2() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken: t.value,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt(),
	}
	return token.WithExtra(map[string]interface{}{
		"domain":     t.domain,
		"token_type": t.tokenType.String(),
	})
}

type tokenSource struct {
	ctx           context.Context
	provider      *Provider
	domain        string
	authenticated bool
}

// TokenSource returns an oauth2.TokenSource that serves the domain's cached
// token and requests a new one through the provider when it is missing or
// expired. ctx bounds every blocking request.
//
// Wrap it with oauth2.ReuseTokenSource to avoid a store read per request.
func (p *Provider) TokenSource(ctx context.Context, domain string, authenticated bool) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: p, domain: domain, authenticated: authenticated}
}

// Token implements oauth2.TokenSource.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provider.Token(s.ctx, s.domain, s.authenticated)
	if err != nil {
		return nil, err
	}
	return token.OAuth2(), nil
}
