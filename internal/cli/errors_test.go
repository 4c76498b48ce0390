package cli

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ebu/cpa-go/pkg/cpa"
)

func TestClassifyTokenError(t *testing.T) {
	const endpoint = "https://cpa.example"

	tests := []struct {
		name       string
		err        error
		wantTarget error
		wantSame   bool
	}{
		{
			name:     "nil",
			err:      nil,
			wantSame: true,
		},
		{
			name:     "cancelled passes through",
			err:      cpa.ErrCancelled,
			wantSame: true,
		},
		{
			name:     "storage error passes through",
			err:      &cpa.Error{Kind: cpa.KindStorage, Domain: "news.example", Err: errors.New("disk full")},
			wantSame: true,
		},
		{
			name:       "expired grant",
			err:        &cpa.Error{Kind: cpa.KindUnknown, Code: cpa.CodeExpiredToken, Domain: "news.example"},
			wantTarget: &ApprovalTimeoutError{},
		},
		{
			name:       "denied grant",
			err:        &cpa.Error{Kind: cpa.KindUnknown, Code: cpa.CodeAccessDenied, Domain: "news.example"},
			wantTarget: &ApprovalTimeoutError{},
		},
		{
			name:       "invalid client",
			err:        &cpa.Error{Kind: cpa.KindInvalidClient, Code: cpa.CodeInvalidClient, Domain: "news.example"},
			wantTarget: &ProviderError{},
		},
		{
			name:       "wrapped transport failure",
			err:        fmt.Errorf("request: %w", &cpa.Error{Kind: cpa.KindUnknown, Err: &url.Error{Op: "Post", URL: endpoint, Err: errors.New("connection refused")}}),
			wantTarget: &ProviderError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTokenError(tt.err, endpoint, "news.example")
			if tt.wantSame {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.wantTarget)
			assert.ErrorIs(t, got, tt.err, "original error must stay in the chain")
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Run("network failure hints at the provider URL", func(t *testing.T) {
		err := &ProviderError{
			Endpoint: "http://localhost:8080",
			Domain:   "news.example",
			Reason:   &url.Error{Op: "Post", URL: "http://localhost:8080/register", Err: errors.New("dial tcp: connection refused")},
		}
		assert.Contains(t, err.Error(), "http://localhost:8080")
		assert.Contains(t, err.Error(), "CPA_PROVIDER_URL")
	})

	t.Run("invalid client suggests discarding", func(t *testing.T) {
		err := &ProviderError{
			Endpoint: "http://localhost:8080",
			Domain:   "news.example",
			Reason:   &cpa.Error{Kind: cpa.KindInvalidClient},
		}
		assert.Contains(t, err.Error(), "cpa token discard news.example")
		assert.NotContains(t, err.Error(), "CPA_PROVIDER_URL")
	})
}

func TestApprovalTimeoutErrorMessage(t *testing.T) {
	err := &ApprovalTimeoutError{
		Domain: "radio.example",
		Reason: &cpa.Error{Kind: cpa.KindUnknown, Code: cpa.CodeExpiredToken},
	}
	assert.Contains(t, err.Error(), "radio.example")
	assert.Contains(t, err.Error(), "cpa token get --user radio.example")
	assert.True(t, errors.Is(err, &ApprovalTimeoutError{}))
	assert.False(t, errors.Is(err, &ProviderError{}))
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, isNetworkError(nil))
	assert.False(t, isNetworkError(errors.New("invalid client")))
	assert.True(t, isNetworkError(errors.New("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.True(t, isNetworkError(&url.Error{Op: "Get", URL: "http://x", Err: errors.New("boom")}))
}
