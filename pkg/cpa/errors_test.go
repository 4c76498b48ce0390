package cpa

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := &Error{Kind: KindInvalidClient, Code: CodeInvalidClient, Domain: "news.example"}

	assert.ErrorIs(t, err, ErrInvalidClient)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidClient})
	assert.NotErrorIs(t, err, &Error{Kind: KindTooFast})

	wrapped := fmt.Errorf("request failed: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalidClient)
}

func TestErrorUnwrap(t *testing.T) {
	err := storageError("news.example", "save", errBoom)

	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Kind:        KindUnknown,
		Code:        CodeAccessDenied,
		Domain:      "radio.example",
		Description: "user refused",
	}
	assert.Equal(t, "cpa: unknown (access_denied) for domain radio.example: user refused", err.Error())

	err = &Error{Kind: KindTooFast, Code: "too_fast"}
	assert.Equal(t, "cpa: too_fast", err.Error())
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(fmt.Errorf("wrapped: %w", &Error{Kind: KindPendingAuthorization}))
	assert.True(t, ok)
	assert.Equal(t, KindPendingAuthorization, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindForCode(t *testing.T) {
	tests := map[string]ErrorKind{
		CodeInvalidRequest:       KindInvalidRequest,
		CodeInvalidClient:        KindInvalidClient,
		CodeSlowDown:             KindTooFast,
		CodeAuthorizationPending: KindPendingAuthorization,
		CodeExpiredToken:         KindUnknown,
		CodeAccessDenied:         KindUnknown,
		"something_else":         KindUnknown,
	}
	for code, want := range tests {
		assert.Equal(t, want, kindForCode(code), code)
	}
}
