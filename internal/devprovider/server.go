package devprovider

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/ebu/cpa-go/internal/metrics"
	"github.com/ebu/cpa-go/pkg/cpa"
	"github.com/ebu/cpa-go/pkg/logging"
)

const (
	// DefaultInterval is the polling interval announced for device grants.
	DefaultInterval = 5 * time.Second

	// DefaultGrantLifetime is how long a device grant can be polled.
	DefaultGrantLifetime = 10 * time.Minute

	// DefaultTokenLifetime applies to domains without an explicit lifetime.
	DefaultTokenLifetime = time.Hour

	// VerifyPath is the approval endpoint.
	VerifyPath = "/verify"

	userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"
	slowDownPenalty  = 5 * time.Second
)

// Domain is a service domain the provider issues tokens for.
type Domain struct {
	Name        string
	DisplayName string
	// TokenLifetime overrides DefaultTokenLifetime when positive.
	TokenLifetime time.Duration
}

// Options configures a Server.
type Options struct {
	// Domains restricts the domains tokens are issued for. Empty accepts any domain.
	Domains []Domain
	// Interval is the polling interval announced for device grants.
	Interval time.Duration
	// GrantLifetime bounds how long device grants can be polled.
	GrantLifetime time.Duration
	// EnforceInterval answers slow_down to polls arriving before the interval elapsed.
	EnforceInterval bool
	// VerificationURI is announced to devices. Defaults to the request's host + /verify.
	VerificationURI string
	// BcryptCost is the cost used to hash client secrets. Defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Metrics, when set, counts requests and serves GET /metrics.
	Metrics *metrics.Registry
	Logger  *slog.Logger
	Now     func() time.Time
}

type client struct {
	name       string
	softwareID string
	secretHash []byte
}

type grant struct {
	deviceCode string
	userCode   string
	clientID   string
	domain     string
	expiresAt  time.Time
	interval   time.Duration
	lastPoll   time.Time
	approved   bool
	denied     bool
	userName   string
}

// Server is an in-memory CPA authorization provider.
type Server struct {
	opts    Options
	domains map[string]Domain
	logger  *slog.Logger
	router  *mux.Router

	mu        sync.Mutex
	clients   map[string]*client
	grants    map[string]*grant // by device code
	userCodes map[string]string // user code -> device code
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.GrantLifetime <= 0 {
		opts.GrantLifetime = DefaultGrantLifetime
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger("DevProvider")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:      opts,
		domains:   make(map[string]Domain),
		logger:    opts.Logger,
		clients:   make(map[string]*client),
		grants:    make(map[string]*grant),
		userCodes: make(map[string]string),
	}
	for _, d := range opts.Domains {
		s.domains[d.Name] = d
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	api := r.Methods(http.MethodPost).Subrouter()
	api.HandleFunc(cpa.RegisterPath, s.handleRegister)
	api.HandleFunc(cpa.AssociatePath, s.handleAssociate)
	api.HandleFunc(cpa.TokenPath, s.handleToken)
	api.HandleFunc(VerifyPath, s.handleVerify)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Approve approves the pending grant identified by userCode on behalf of userName.
func (s *Server) Approve(userCode, userName string) (string, error) {
	return s.resolve(userCode, userName, false)
}

// Deny rejects the pending grant identified by userCode.
func (s *Server) Deny(userCode string) (string, error) {
	return s.resolve(userCode, "", true)
}

// errUnknownUserCode is returned when no pending grant has the user code.
var errUnknownUserCode = errors.New("unknown or expired user code")

func (s *Server) resolve(userCode, userName string, deny bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.userCodes[normalizeUserCode(userCode)]
	if !ok {
		return "", errUnknownUserCode
	}
	g := s.grants[deviceCode]
	if g == nil || !s.opts.Now().Before(g.expiresAt) {
		return "", errUnknownUserCode
	}

	if deny {
		g.denied = true
		s.logger.Info("Device grant denied", "domain", g.domain)
		return g.domain, nil
	}

	g.approved = true
	g.userName = userName
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordGrantApproved()
	}
	s.logger.Info("Device grant approved", "domain", g.domain, "user", userName)
	return g.domain, nil
}

// PendingUserCodes returns the user codes of grants waiting for approval.
func (s *Server) PendingUserCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var codes []string
	for code, deviceCode := range s.userCodes {
		if g := s.grants[deviceCode]; g != nil && !g.approved && !g.denied {
			codes = append(codes, code)
		}
	}
	return codes
}

type registerRequest struct {
	ClientName      string `json:"client_name"`
	SoftwareID      string `json:"software_id"`
	SoftwareVersion string `json:"software_version"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeRequest(&req, w, r) {
		return
	}
	if req.SoftwareID == "" {
		writeError(w, http.StatusBadRequest, cpa.CodeInvalidRequest, "software_id is required")
		return
	}

	clientID := uuid.NewString()
	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.opts.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "failed to register client")
		return
	}

	s.mu.Lock()
	s.clients[clientID] = &client{name: req.ClientName, softwareID: req.SoftwareID, secretHash: hash}
	s.mu.Unlock()

	s.logger.Debug("Client registered", "client_id", logging.RedactSecret(clientID), "software_id", req.SoftwareID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"client_id":     clientID,
		"client_secret": secret,
	})
}

type associateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Domain       string `json:"domain"`
}

func (s *Server) handleAssociate(w http.ResponseWriter, r *http.Request) {
	var req associateRequest
	if !decodeRequest(&req, w, r) {
		return
	}
	if !s.authenticate(w, req.ClientID, req.ClientSecret) {
		return
	}
	if _, ok := s.domain(req.Domain); !ok {
		writeError(w, http.StatusBadRequest, cpa.CodeInvalidRequest, fmt.Sprintf("unknown domain %q", req.Domain))
		return
	}

	g := &grant{
		deviceCode: uuid.NewString(),
		userCode:   newUserCode(),
		clientID:   req.ClientID,
		domain:     req.Domain,
		expiresAt:  s.opts.Now().Add(s.opts.GrantLifetime),
		interval:   s.opts.Interval,
	}

	s.mu.Lock()
	s.grants[g.deviceCode] = g
	s.userCodes[g.userCode] = g.deviceCode
	s.mu.Unlock()

	verificationURI := s.opts.VerificationURI
	if verificationURI == "" {
		verificationURI = requestBaseURL(r) + VerifyPath
	}

	s.logger.Info("Device grant issued", "domain", g.domain, "user_code", g.userCode)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":      g.deviceCode,
		"user_code":        g.userCode,
		"verification_uri": verificationURI,
		"interval":         int64(g.interval / time.Second),
		"expires_in":       int64(s.opts.GrantLifetime / time.Second),
	})
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Domain       string `json:"domain"`
	DeviceCode   string `json:"device_code"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeRequest(&req, w, r) {
		return
	}
	if !s.authenticate(w, req.ClientID, req.ClientSecret) {
		return
	}
	domain, ok := s.domain(req.Domain)
	if !ok {
		writeError(w, http.StatusBadRequest, cpa.CodeInvalidRequest, fmt.Sprintf("unknown domain %q", req.Domain))
		return
	}

	switch req.GrantType {
	case cpa.GrantTypeClientCredentials:
		s.writeToken(w, domain, "")
	case cpa.GrantTypeDeviceCode:
		s.pollGrant(w, req, domain)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("unsupported grant type %q", req.GrantType))
	}
}

func (s *Server) pollGrant(w http.ResponseWriter, req tokenRequest, domain Domain) {
	s.mu.Lock()
	g, ok := s.grants[req.DeviceCode]
	if !ok || g.clientID != req.ClientID || g.domain != req.Domain {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, cpa.CodeInvalidRequest, "unknown device code")
		return
	}

	now := s.opts.Now()
	if !now.Before(g.expiresAt) {
		s.dropGrantLocked(g)
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, cpa.CodeExpiredToken, "device grant expired")
		return
	}
	if g.denied {
		s.dropGrantLocked(g)
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, cpa.CodeAccessDenied, "device grant denied")
		return
	}
	if s.opts.EnforceInterval && !g.lastPoll.IsZero() && now.Sub(g.lastPoll) < g.interval {
		g.lastPoll = now
		g.interval += slowDownPenalty
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, cpa.CodeSlowDown, "polling too fast")
		return
	}
	g.lastPoll = now

	if !g.approved {
		s.mu.Unlock()
		writeJSON(w, http.StatusAccepted, map[string]string{"reason": cpa.CodeAuthorizationPending})
		return
	}
	userName := g.userName
	s.dropGrantLocked(g)
	s.mu.Unlock()

	s.writeToken(w, domain, userName)
}

func (s *Server) dropGrantLocked(g *grant) {
	delete(s.grants, g.deviceCode)
	delete(s.userCodes, g.userCode)
}

func (s *Server) writeToken(w http.ResponseWriter, domain Domain, userName string) {
	lifetime := domain.TokenLifetime
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	resp := map[string]any{
		"access_token": uuid.NewString(),
		"token_type":   "bearer",
		"domain":       domain.Name,
		"expires_in":   int64(lifetime / time.Second),
	}
	if domain.DisplayName != "" {
		resp["domain_display_name"] = domain.DisplayName
	}
	if userName != "" {
		resp["user_name"] = userName
	}
	writeJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	UserCode string `json:"user_code"`
	UserName string `json:"user_name"`
	Deny     bool   `json:"deny"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeRequest(&req, w, r) {
		return
	}
	domain, err := s.resolve(req.UserCode, req.UserName, req.Deny)
	if err != nil {
		writeError(w, http.StatusNotFound, cpa.CodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "approved": !req.Deny})
}

// authenticate writes an invalid_client error and returns false unless the
// credentials match a registered client.
func (s *Server) authenticate(w http.ResponseWriter, clientID, secret string) bool {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(c.secretHash, []byte(secret)) != nil {
		writeError(w, http.StatusUnauthorized, cpa.CodeInvalidClient, "unknown client or bad secret")
		return false
	}
	return true
}

func (s *Server) domain(name string) (Domain, bool) {
	if name == "" {
		return Domain{}, false
	}
	if len(s.domains) == 0 {
		return Domain{Name: name}, true
	}
	d, ok := s.domains[name]
	return d, ok
}

// newUserCode returns a code like "BCDF-GHJK" that is easy to type.
func newUserCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to generate user code: %w", err))
	}
	code := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, userCodeAlphabet[int(b)%len(userCodeAlphabet)])
	}
	return string(code)
}

func normalizeUserCode(code string) string {
	code = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	if len(code) == 8 {
		return code[:4] + "-" + code[4:]
	}
	return code
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func decodeRequest[T any](req *T, w http.ResponseWriter, r *http.Request) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, cpa.CodeInvalidRequest, "bad json request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
