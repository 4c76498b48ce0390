package cpa

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// codecVersion is the current version of the persisted token envelope.
const codecVersion = 1

// ErrUnsupportedVersion is returned when decoding an envelope written by a
// newer, unknown codec version.
var ErrUnsupportedVersion = errors.New("unsupported token encoding version")

type tokenEnvelope struct {
	Version int         `json:"v"`
	Token   storedToken `json:"token"`
}

type storedToken struct {
	Value        string    `json:"value"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Domain       string    `json:"domain"`
	DomainName   string    `json:"domain_name,omitempty"`
	UserName     string    `json:"user_name,omitempty"`
	Type         string    `json:"type"`
	Lifetime     int64     `json:"lifetime"`
	IssuedAt     time.Time `json:"issued_at"`
}

// EncodeToken serializes a token into the versioned envelope format.
func EncodeToken(t *Token) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil token", ErrInvalidToken)
	}
	env := tokenEnvelope{
		Version: codecVersion,
		Token: storedToken{
			Value:        t.value,
			ClientID:     t.clientID,
			ClientSecret: t.clientSecret,
			Domain:       t.domain,
			DomainName:   t.domainName,
			UserName:     t.userName,
			Type:         t.tokenType.String(),
			Lifetime:     t.lifetime,
			IssuedAt:     t.issuedAt.UTC(),
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token: %w", err)
	}
	return data, nil
}

// DecodeToken parses an envelope produced by EncodeToken.
func DecodeToken(data []byte) (*Token, error) {
	var env tokenEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if env.Version != codecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	tokenType, err := parseTokenType(env.Token.Type)
	if err != nil {
		return nil, err
	}
	if env.Token.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing issue time", ErrInvalidToken)
	}

	return NewToken(TokenParams{
		Value:        env.Token.Value,
		ClientID:     env.Token.ClientID,
		ClientSecret: env.Token.ClientSecret,
		Domain:       env.Token.Domain,
		DomainName:   env.Token.DomainName,
		UserName:     env.Token.UserName,
		Type:         tokenType,
		Lifetime:     env.Token.Lifetime,
		IssuedAt:     env.Token.IssuedAt,
	})
}
