package cpa

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the authorization protocol.
type ErrorKind int

const (
	// KindUnknown covers transport failures, malformed responses and
	// provider errors without a dedicated kind.
	KindUnknown ErrorKind = iota
	// KindInvalidRequest means the provider rejected the request parameters.
	KindInvalidRequest
	// KindInvalidClient means the client registration or credentials were rejected.
	KindInvalidClient
	// KindTooFast means the provider asked the client to slow down.
	KindTooFast
	// KindPendingAuthorization means the human has not approved the device yet.
	KindPendingAuthorization
	// KindStorage means the secure store failed.
	KindStorage
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidClient:
		return "invalid_client"
	case KindTooFast:
		return "too_fast"
	case KindPendingAuthorization:
		return "pending_authorization"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrUnknown              = errors.New("cpa: unknown error")
	ErrInvalidRequest       = errors.New("cpa: invalid request")
	ErrInvalidClient        = errors.New("cpa: invalid client")
	ErrTooFast              = errors.New("cpa: requests too fast")
	ErrPendingAuthorization = errors.New("cpa: authorization pending")
	ErrStorage              = errors.New("cpa: storage error")
)

// ErrCancelled is delivered to waiters whose session was cancelled by a
// discard or by closing the provider. It is not an ErrorKind.
var ErrCancelled = errors.New("cpa: token request cancelled")

// ErrClosed is returned when a request is made on a closed provider.
var ErrClosed = errors.New("cpa: provider closed")

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindInvalidClient:
		return ErrInvalidClient
	case KindTooFast:
		return ErrTooFast
	case KindPendingAuthorization:
		return ErrPendingAuthorization
	case KindStorage:
		return ErrStorage
	default:
		return ErrUnknown
	}
}

// Provider error codes as they appear on the wire.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeSlowDown             = "slow_down"
	CodeAuthorizationPending = "authorization_pending"
	CodeExpiredToken         = "expired_token"
	CodeAccessDenied         = "access_denied"
)

// kindForCode maps a provider error code to its kind.
func kindForCode(code string) ErrorKind {
	switch code {
	case CodeInvalidRequest:
		return KindInvalidRequest
	case CodeInvalidClient:
		return KindInvalidClient
	case CodeSlowDown:
		return KindTooFast
	case CodeAuthorizationPending:
		return KindPendingAuthorization
	default:
		return KindUnknown
	}
}

// Error is the typed error returned by the authorization client, the token
// store and delivered to token request waiters.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Code is the raw provider error code, if the provider sent one.
	Code string
	// Description is the provider's error_description, if any.
	Description string
	// Domain is the domain the failing operation was about.
	Domain string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "cpa: " + e.Kind.String()
	if e.Code != "" && e.Code != e.Kind.String() {
		msg += " (" + e.Code + ")"
	}
	if e.Domain != "" {
		msg += " for domain " + e.Domain
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind, or another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a *Error in err's chain, and whether one was found.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindUnknown, false
}

func newError(kind ErrorKind, domain string, err error) *Error {
	return &Error{Kind: kind, Domain: domain, Err: err}
}

func storageError(domain string, op string, err error) *Error {
	return &Error{Kind: KindStorage, Domain: domain, Err: fmt.Errorf("%s: %w", op, err)}
}
