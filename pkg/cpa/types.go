package cpa

import "time"

// Grant types sent to the token endpoint.
const (
	GrantTypeClientCredentials = "http://tech.ebu.ch/cpa/1.0/client_credentials"
	GrantTypeDeviceCode        = "http://tech.ebu.ch/cpa/1.0/device_code"
)

// Endpoint paths relative to the authorization provider base URL.
const (
	RegisterPath  = "/register"
	AssociatePath = "/associate"
	TokenPath     = "/token"
)

// ClientCredentials are issued by the provider during dynamic registration.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// DeviceGrant is the result of RequestDeviceAuthorization. Exactly one of
// Token (client mode) or DeviceCode (user mode) is set.
type DeviceGrant struct {
	// Token is set when the provider issued a token immediately.
	Token *Token

	// DeviceCode identifies the pending grant when polling.
	DeviceCode string
	// UserCode is the short code the human enters at VerificationURI.
	UserCode string
	// VerificationURI is where the human approves the device.
	VerificationURI string
	// Interval is the initial polling interval.
	Interval time.Duration
	// ExpiresIn bounds how long the grant can be polled. Zero if unspecified.
	ExpiresIn time.Duration
}

// Pending reports whether the grant needs human approval.
func (g *DeviceGrant) Pending() bool {
	return g.Token == nil
}

// PollOutcome is the non-terminal result of a poll attempt.
type PollOutcome int

const (
	// OutcomeAuthorized means the token was issued.
	OutcomeAuthorized PollOutcome = iota
	// OutcomePending means the human has not approved yet.
	OutcomePending
	// OutcomeSlowDown means the provider demands a longer polling interval.
	OutcomeSlowDown
)

// String returns the string representation of the outcome.
func (o PollOutcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomePending:
		return "pending"
	case OutcomeSlowDown:
		return "slow_down"
	default:
		return "unknown"
	}
}

// PollResult is returned by PollForToken when the attempt did not fail terminally.
type PollResult struct {
	Outcome PollOutcome
	// Token is set when Outcome is OutcomeAuthorized.
	Token *Token
}

// Approval is handed to the ApprovalHandler when a user-mode grant needs a
// human to visit VerificationURI and enter UserCode.
type Approval struct {
	Domain          string
	VerificationURI string
	UserCode        string
	// ExpiresAt is when polling for this grant stops.
	ExpiresAt time.Time
}

type registerRequest struct {
	ClientName      string `json:"client_name"`
	SoftwareID      string `json:"software_id"`
	SoftwareVersion string `json:"software_version"`
}

type registerResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type associateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Domain       string `json:"domain"`
}

type associateResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	Interval        int64  `json:"interval"`
	ExpiresIn       int64  `json:"expires_in"`
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Domain       string `json:"domain"`
	DeviceCode   string `json:"device_code,omitempty"`
}

type tokenResponse struct {
	AccessToken       string `json:"access_token"`
	TokenType         string `json:"token_type"`
	Domain            string `json:"domain"`
	DomainDisplayName string `json:"domain_display_name"`
	UserName          string `json:"user_name"`
	ExpiresIn         int64  `json:"expires_in"`
}

// errorResponse covers both the OAuth-style {"error": ...} body and the
// {"reason": ...} body some providers send with 202 Accepted.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Reason           string `json:"reason"`
}

func (r errorResponse) code() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Reason
}
