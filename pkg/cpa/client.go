package cpa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebu/cpa-go/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default per-request timeout.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultPollInterval is used when the provider does not specify an interval.
	DefaultPollInterval = 5 * time.Second

	// DefaultClientName is sent at registration when none is configured.
	DefaultClientName = "cpa-go"

	// DefaultSoftwareID is sent at registration when none is configured.
	DefaultSoftwareID = "cpa-go"

	// DefaultSoftwareVersion is sent at registration when none is configured.
	DefaultSoftwareVersion = "1.0"

	// maxResponseSize bounds the amount of response body read from the provider.
	maxResponseSize = 1 << 20
)

// HTTPDoer is the transport used to reach the authorization provider.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthorizationClient speaks the CPA protocol. Each method performs a single
// request/response exchange and is safe to retry and to call concurrently.
type AuthorizationClient struct {
	baseURL         *url.URL
	httpClient      HTTPDoer
	logger          *slog.Logger
	clientName      string
	softwareID      string
	softwareVersion string
	now             func() time.Time
}

// ClientOption configures the AuthorizationClient.
type ClientOption func(*AuthorizationClient)

// WithHTTPClient sets a custom transport.
func WithHTTPClient(httpClient HTTPDoer) ClientOption {
	return func(c *AuthorizationClient) {
		c.httpClient = httpClient
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *AuthorizationClient) {
		c.logger = logger
	}
}

// WithSoftware sets the client name, software identifier and version sent at registration.
// Empty values keep the defaults.
func WithSoftware(clientName, softwareID, softwareVersion string) ClientOption {
	return func(c *AuthorizationClient) {
		if clientName != "" {
			c.clientName = clientName
		}
		if softwareID != "" {
			c.softwareID = softwareID
		}
		if softwareVersion != "" {
			c.softwareVersion = softwareVersion
		}
	}
}

// withClientNow sets the time source used to stamp issued tokens.
func withClientNow(now func() time.Time) ClientOption {
	return func(c *AuthorizationClient) {
		c.now = now
	}
}

// NewAuthorizationClient creates a client for the provider at baseURL.
func NewAuthorizationClient(baseURL string, opts ...ClientOption) (*AuthorizationClient, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &AuthorizationClient{
		baseURL:         u,
		httpClient:      &http.Client{Timeout: DefaultHTTPTimeout},
		logger:          slog.Default(),
		clientName:      DefaultClientName,
		softwareID:      DefaultSoftwareID,
		softwareVersion: DefaultSoftwareVersion,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("authorization provider URL is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid authorization provider URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid authorization provider URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid authorization provider URL %q: missing host", baseURL)
	}
	return u, nil
}

// BaseURL returns the authorization provider base URL.
func (c *AuthorizationClient) BaseURL() string {
	return c.baseURL.String()
}

// RegisterClient performs dynamic client registration.
func (c *AuthorizationClient) RegisterClient(ctx context.Context, domain string) (ClientCredentials, error) {
	status, body, err := c.post(ctx, domain, RegisterPath, registerRequest{
		ClientName:      c.clientName,
		SoftwareID:      c.softwareID,
		SoftwareVersion: c.softwareVersion,
	})
	if err != nil {
		return ClientCredentials{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return ClientCredentials{}, c.errorFromResponse(domain, status, body)
	}

	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ClientCredentials{}, newError(KindUnknown, domain, fmt.Errorf("failed to decode registration response: %w", err))
	}
	if resp.ClientID == "" || resp.ClientSecret == "" {
		return ClientCredentials{}, &Error{Kind: KindUnknown, Domain: domain, Description: "registration response is missing client credentials"}
	}

	c.logger.Debug("Client registered",
		"domain", domain,
		"client_id", logging.RedactSecret(resp.ClientID),
	)
	return ClientCredentials{ClientID: resp.ClientID, ClientSecret: resp.ClientSecret}, nil
}

// RequestDeviceAuthorization starts an authorization attempt. In client mode
// (authenticated == false) the provider issues a token right away; in user
// mode it returns a pending grant that must be approved by a human.
func (c *AuthorizationClient) RequestDeviceAuthorization(ctx context.Context, creds ClientCredentials, domain string, authenticated bool) (*DeviceGrant, error) {
	if !authenticated {
		token, err := c.requestClientToken(ctx, creds, domain)
		if err != nil {
			return nil, err
		}
		return &DeviceGrant{Token: token}, nil
	}

	status, body, err := c.post(ctx, domain, AssociatePath, associateRequest{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Domain:       domain,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, c.errorFromResponse(domain, status, body)
	}

	var resp associateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindUnknown, domain, fmt.Errorf("failed to decode association response: %w", err))
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationURI == "" {
		return nil, &Error{Kind: KindUnknown, Domain: domain, Description: "association response is missing device code, user code or verification URI"}
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c.logger.Debug("Device grant issued",
		"domain", domain,
		"verification_uri", resp.VerificationURI,
		"interval", interval,
		"expires_in", resp.ExpiresIn,
	)

	return &DeviceGrant{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Interval:        interval,
		ExpiresIn:       time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

func (c *AuthorizationClient) requestClientToken(ctx context.Context, creds ClientCredentials, domain string) (*Token, error) {
	status, body, err := c.post(ctx, domain, TokenPath, tokenRequest{
		GrantType:    GrantTypeClientCredentials,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Domain:       domain,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, c.errorFromResponse(domain, status, body)
	}
	return c.decodeToken(domain, creds, TokenTypeClient, body)
}

// PollForToken makes a single poll attempt for a pending device grant.
// Pending and slow-down answers are reported through PollResult; every other
// failure is returned as a terminal *Error.
func (c *AuthorizationClient) PollForToken(ctx context.Context, creds ClientCredentials, domain, deviceCode string) (PollResult, error) {
	status, body, err := c.post(ctx, domain, TokenPath, tokenRequest{
		GrantType:    GrantTypeDeviceCode,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Domain:       domain,
		DeviceCode:   deviceCode,
	})
	if err != nil {
		return PollResult{}, err
	}

	if status == http.StatusOK || status == http.StatusCreated {
		token, err := c.decodeToken(domain, creds, TokenTypeUser, body)
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{Outcome: OutcomeAuthorized, Token: token}, nil
	}

	pollErr := c.errorFromResponse(domain, status, body)
	switch pollErr.Kind {
	case KindPendingAuthorization:
		return PollResult{Outcome: OutcomePending}, nil
	case KindTooFast:
		return PollResult{Outcome: OutcomeSlowDown}, nil
	}
	if status == http.StatusAccepted && pollErr.Code == "" {
		// 202 without a body still means the grant is not approved yet.
		return PollResult{Outcome: OutcomePending}, nil
	}
	return PollResult{}, pollErr
}

func (c *AuthorizationClient) decodeToken(domain string, creds ClientCredentials, tokenType TokenType, body []byte) (*Token, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindUnknown, domain, fmt.Errorf("failed to decode token response: %w", err))
	}
	if resp.Domain != "" && resp.Domain != domain {
		return nil, &Error{Kind: KindUnknown, Domain: domain, Description: fmt.Sprintf("token issued for domain %q", resp.Domain)}
	}
	if resp.ExpiresIn < 0 {
		return nil, &Error{Kind: KindUnknown, Domain: domain, Description: "token response has a negative lifetime"}
	}

	token, err := NewToken(TokenParams{
		Value:        resp.AccessToken,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Domain:       domain,
		DomainName:   resp.DomainDisplayName,
		UserName:     resp.UserName,
		Type:         tokenType,
		Lifetime:     resp.ExpiresIn,
		IssuedAt:     c.now(),
	})
	if err != nil {
		return nil, newError(KindUnknown, domain, err)
	}
	return token, nil
}

// post sends body as JSON to path and returns the status code and response
// body. Transport failures are reported as KindUnknown errors.
func (c *AuthorizationClient) post(ctx context.Context, domain, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, newError(KindInvalidRequest, domain, fmt.Errorf("failed to encode request: %w", err))
	}

	endpoint := c.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, newError(KindUnknown, domain, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Request to authorization provider failed",
			"domain", domain,
			"endpoint", endpoint,
			"error", err.Error(),
		)
		return 0, nil, newError(KindUnknown, domain, fmt.Errorf("request to %s failed: %w", path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, newError(KindUnknown, domain, fmt.Errorf("failed to read response from %s: %w", path, err))
	}

	c.logger.Debug("Authorization provider responded",
		"domain", domain,
		"endpoint", endpoint,
		"status", resp.StatusCode,
	)
	return resp.StatusCode, data, nil
}

// errorFromResponse maps a non-success response to a typed error.
func (c *AuthorizationClient) errorFromResponse(domain string, status int, body []byte) *Error {
	var resp errorResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return &Error{
				Kind:        KindUnknown,
				Domain:      domain,
				Description: fmt.Sprintf("unexpected status %d", status),
				Err:         fmt.Errorf("failed to decode error response: %w", err),
			}
		}
	}

	code := resp.code()
	if code == "" {
		kind := KindUnknown
		if status == http.StatusUnauthorized {
			kind = KindInvalidClient
		}
		return &Error{Kind: kind, Domain: domain, Description: fmt.Sprintf("unexpected status %d", status)}
	}

	return &Error{
		Kind:        kindForCode(code),
		Code:        code,
		Description: resp.ErrorDescription,
		Domain:      domain,
	}
}
