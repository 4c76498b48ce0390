package cpa

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TokenParams)
	}{
		{"empty value", func(p *TokenParams) { p.Value = "" }},
		{"empty client id", func(p *TokenParams) { p.ClientID = "" }},
		{"empty client secret", func(p *TokenParams) { p.ClientSecret = "" }},
		{"empty domain", func(p *TokenParams) { p.Domain = "" }},
		{"negative lifetime", func(p *TokenParams) { p.Lifetime = -1 }},
		{"unknown type", func(p *TokenParams) { p.Type = TokenType(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParams("news.example", TokenTypeClient)
			tt.mutate(&params)
			_, err := NewToken(params)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("defaults issue time to now", func(t *testing.T) {
		params := testParams("news.example", TokenTypeClient)
		params.IssuedAt = time.Time{}
		before := time.Now()
		token, err := NewToken(params)
		require.NoError(t, err)
		assert.False(t, token.IssuedAt().Before(before))
	})

	t.Run("zero lifetime is allowed", func(t *testing.T) {
		params := testParams("news.example", TokenTypeClient)
		params.Lifetime = 0
		token, err := NewToken(params)
		require.NoError(t, err)
		assert.True(t, token.IsExpired(testEpoch))
	})
}

func TestTokenAccessors(t *testing.T) {
	params := testParams("radio.example", TokenTypeUser)
	params.DomainName = "Radio"
	params.UserName = "Alice"
	token := mustToken(t, params)

	assert.Equal(t, "value-radio.example", token.Value())
	assert.Equal(t, "client", token.ClientID())
	assert.Equal(t, "secret", token.ClientSecret())
	assert.Equal(t, "radio.example", token.Domain())
	assert.Equal(t, "Radio", token.DomainName())
	assert.Equal(t, "Alice", token.UserName())
	assert.Equal(t, TokenTypeUser, token.Type())
	assert.Equal(t, int64(3600), token.LifetimeInSeconds())
	assert.Equal(t, testEpoch, token.IssuedAt())
	assert.Equal(t, params, token.Params())
}

func TestTokenExpiry(t *testing.T) {
	token := mustToken(t, testParams("news.example", TokenTypeClient))

	assert.Equal(t, testEpoch.Add(time.Hour), token.ExpiresAt())
	assert.False(t, token.IsExpired(testEpoch))
	assert.False(t, token.IsExpired(testEpoch.Add(time.Hour-time.Second)))
	assert.True(t, token.IsExpired(testEpoch.Add(time.Hour)))
	assert.True(t, token.IsExpired(testEpoch.Add(2*time.Hour)))
}

func TestTokenLifetimeIsClamped(t *testing.T) {
	for _, lifetime := range []int64{MaxLifetime + 1, math.MaxInt64 / 1000, math.MaxInt64} {
		params := testParams("news.example", TokenTypeClient)
		params.Lifetime = lifetime

		token := mustToken(t, params)

		assert.Equal(t, MaxLifetime, token.LifetimeInSeconds())
		assert.True(t, token.ExpiresAt().After(testEpoch), "lifetime %d", lifetime)
		assert.False(t, token.IsExpired(testEpoch.Add(100*365*24*time.Hour)), "lifetime %d", lifetime)
	}
}

func TestTokenEqual(t *testing.T) {
	a := mustToken(t, testParams("news.example", TokenTypeClient))
	b := mustToken(t, testParams("news.example", TokenTypeClient))
	c := mustToken(t, testParams("news.example", TokenTypeUser))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilToken *Token
	assert.True(t, nilToken.Equal(nil))
}

func TestTokenStringHidesValue(t *testing.T) {
	token := mustToken(t, testParams("news.example", TokenTypeClient))
	s := token.String()
	assert.Contains(t, s, "news.example")
	assert.Contains(t, s, "client")
	assert.NotContains(t, s, token.Value())
}

func TestTokenTypeString(t *testing.T) {
	assert.Equal(t, "client", TokenTypeClient.String())
	assert.Equal(t, "user", TokenTypeUser.String())
	assert.Equal(t, "unknown", TokenType(9).String())
}
