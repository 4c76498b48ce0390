package cli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ebu/cpa-go/pkg/cpa"
)

// ProviderError indicates the authorization provider could not be reached
// or rejected the client.
type ProviderError struct {
	// Endpoint is the authorization provider URL.
	Endpoint string
	// Domain is the domain the request was for.
	Domain string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("Authorization provider %s failed for %s: %v", e.Endpoint, e.Domain, e.Reason)
	if isNetworkError(e.Reason) {
		msg += "\n\nCheck that the provider is running and that provider.url (or CPA_PROVIDER_URL) is correct."
	}
	if errors.Is(e.Reason, cpa.ErrInvalidClient) {
		msg += "\n\nThe provider rejected this client. Discard the token and request a new one:\n  cpa token discard " + e.Domain
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *ProviderError) Is(target error) bool {
	_, ok := target.(*ProviderError)
	return ok
}

// ApprovalTimeoutError indicates a device grant was not approved in time,
// or was denied.
type ApprovalTimeoutError struct {
	// Domain is the domain the grant was for.
	Domain string
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *ApprovalTimeoutError) Error() string {
	return fmt.Sprintf(`Device was not approved for %s: %v

To try again, run:
  cpa token get --user %s`, e.Domain, e.Reason, e.Domain)
}

// Unwrap returns the underlying error.
func (e *ApprovalTimeoutError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to work with wrapped errors.
func (e *ApprovalTimeoutError) Is(target error) bool {
	_, ok := target.(*ApprovalTimeoutError)
	return ok
}

// ClassifyTokenError wraps a token request failure into the CLI error type
// its exit code depends on. Cancellation and storage errors pass through.
func ClassifyTokenError(err error, endpoint, domain string) error {
	if err == nil {
		return nil
	}

	var cpaErr *cpa.Error
	if !errors.As(err, &cpaErr) || cpaErr.Kind == cpa.KindStorage {
		return err
	}
	switch cpaErr.Code {
	case cpa.CodeExpiredToken, cpa.CodeAccessDenied:
		return &ApprovalTimeoutError{Domain: domain, Reason: err}
	}
	return &ProviderError{Endpoint: endpoint, Domain: domain, Reason: err}
}

// isNetworkError reports whether err looks like a connectivity failure.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"no route to host",
		"dial tcp",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
