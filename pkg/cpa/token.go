package cpa

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxLifetime is the longest lifetime, in seconds, a token can carry.
// Longer lifetimes are clamped to it so that ExpiresAt stays representable.
const MaxLifetime = math.MaxInt64 / int64(time.Second)

// ErrInvalidToken is returned when token attributes violate the token invariants.
var ErrInvalidToken = errors.New("invalid token")

// TokenType distinguishes client (unauthenticated) from user (authenticated) tokens.
type TokenType int

const (
	// TokenTypeClient is issued without human interaction.
	TokenTypeClient TokenType = iota
	// TokenTypeUser is issued after a human approved the device.
	TokenTypeUser
)

// String returns the string representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenTypeClient:
		return "client"
	case TokenTypeUser:
		return "user"
	default:
		return "unknown"
	}
}

// parseTokenType is the inverse of TokenType.String.
func parseTokenType(s string) (TokenType, error) {
	switch s {
	case "client":
		return TokenTypeClient, nil
	case "user":
		return TokenTypeUser, nil
	default:
		return TokenTypeClient, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, s)
	}
}

// TokenParams holds the attributes used to construct a Token.
type TokenParams struct {
	Value        string
	ClientID     string
	ClientSecret string
	Domain       string
	DomainName   string
	UserName     string
	Type         TokenType
	// Lifetime is the validity period in seconds, counted from IssuedAt.
	Lifetime int64
	// IssuedAt defaults to the current time when zero.
	IssuedAt time.Time
}

// Token is one credential issued by the authorization provider.
// Tokens are immutable; a newer credential for the same domain is a new Token.
type Token struct {
	value        string
	clientID     string
	clientSecret string
	domain       string
	domainName   string
	userName     string
	tokenType    TokenType
	lifetime     int64
	issuedAt     time.Time
}

// NewToken validates params and returns the corresponding Token.
func NewToken(params TokenParams) (*Token, error) {
	switch {
	case params.Value == "":
		return nil, fmt.Errorf("%w: empty value", ErrInvalidToken)
	case params.ClientID == "":
		return nil, fmt.Errorf("%w: empty client identifier", ErrInvalidToken)
	case params.ClientSecret == "":
		return nil, fmt.Errorf("%w: empty client secret", ErrInvalidToken)
	case params.Domain == "":
		return nil, fmt.Errorf("%w: empty domain", ErrInvalidToken)
	case params.Lifetime < 0:
		return nil, fmt.Errorf("%w: negative lifetime %d", ErrInvalidToken, params.Lifetime)
	case params.Type != TokenTypeClient && params.Type != TokenTypeUser:
		return nil, fmt.Errorf("%w: unknown token type %d", ErrInvalidToken, params.Type)
	}

	issuedAt := params.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	lifetime := min(params.Lifetime, MaxLifetime)

	return &Token{
		value:        params.Value,
		clientID:     params.ClientID,
		clientSecret: params.ClientSecret,
		domain:       params.Domain,
		domainName:   params.DomainName,
		userName:     params.UserName,
		tokenType:    params.Type,
		lifetime:     lifetime,
		issuedAt:     issuedAt,
	}, nil
}

// Value returns the opaque credential string.
func (t *Token) Value() string { return t.value }

// ClientID returns the client identifier issued at registration.
func (t *Token) ClientID() string { return t.clientID }

// ClientSecret returns the client secret issued at registration.
func (t *Token) ClientSecret() string { return t.clientSecret }

// Domain returns the domain the token is scoped to.
func (t *Token) Domain() string { return t.domain }

// DomainName returns the human-friendly domain label, if the provider sent one.
func (t *Token) DomainName() string { return t.domainName }

// UserName returns the provider's user name for user tokens, if any.
func (t *Token) UserName() string { return t.userName }

// Type returns the token type.
func (t *Token) Type() TokenType { return t.tokenType }

// LifetimeInSeconds returns the validity period in seconds.
func (t *Token) LifetimeInSeconds() int64 { return t.lifetime }

// IssuedAt returns the time the token was created.
func (t *Token) IssuedAt() time.Time { return t.issuedAt }

// ExpiresAt returns IssuedAt plus the lifetime.
func (t *Token) ExpiresAt() time.Time {
	return t.issuedAt.Add(time.Duration(t.lifetime) * time.Second)
}

// IsExpired reports whether the token is no longer valid at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// Params returns the attributes the token was built from.
func (t *Token) Params() TokenParams {
	return TokenParams{
		Value:        t.value,
		ClientID:     t.clientID,
		ClientSecret: t.clientSecret,
		Domain:       t.domain,
		DomainName:   t.domainName,
		UserName:     t.userName,
		Type:         t.tokenType,
		Lifetime:     t.lifetime,
		IssuedAt:     t.issuedAt,
	}
}

// Equal reports whether both tokens carry the same attributes.
func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	a, b := t.Params(), other.Params()
	return a.Value == b.Value &&
		a.ClientID == b.ClientID &&
		a.ClientSecret == b.ClientSecret &&
		a.Domain == b.Domain &&
		a.DomainName == b.DomainName &&
		a.UserName == b.UserName &&
		a.Type == b.Type &&
		a.Lifetime == b.Lifetime &&
		a.IssuedAt.Equal(b.IssuedAt)
}

// String describes the token without exposing the credential.
func (t *Token) String() string {
	return fmt.Sprintf("cpa.Token{domain=%s type=%s expires=%s}",
		t.domain, t.tokenType, t.ExpiresAt().Format(time.RFC3339))
}
