package kumo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"kumoctl/internal/logger"
	"kumoctl/internal/tokens"
	"kumoctl/internal/transport"
)

const (
	loginEndpoint   = "/v3/login"
	refreshEndpoint = "/v3/refresh"

	// appVersion accompanies the login payload, mirroring the mobile app.
	appVersion = "3.2.3"
)

// FreshResolver solicits a fresh push update for a device. A nil
// result means "no fresh data"; resolvers never fail.
type FreshResolver interface {
	ForceDeviceRefresh(ctx context.Context, serial string, timeout time.Duration) map[string]any
}

// Snapshots is the last-known payload cache. Implementations degrade
// to ("", nil, nil) when nothing is stored.
type Snapshots interface {
	Load(ctx context.Context, serial string) (name string, payload map[string]any, err error)
	Save(ctx context.Context, serial, name string, payload map[string]any) error
}

// Options collects Session dependencies.
type Options struct {
	Transport *transport.Client
	Tokens    *tokens.Store
	Resolver  FreshResolver // nil when the push capability is absent
	Snapshots Snapshots     // nil when the cache is unavailable
	Log       *logger.Logger

	Username string
	Password string
	SiteID   string
	Serials  map[string]string // friendly name -> serial

	PushTimeout time.Duration
}

// Session is the one authenticated client per process. It owns the
// token pair and is its sole mutator; authMu serializes login and
// refresh so concurrent 401s cannot race conflicting tokens into the
// store. The lock is held across the auth network call on purpose:
// "at most one in-flight refresh or login, concurrent callers await
// its result".
type Session struct {
	http      *transport.Client
	store     *tokens.Store
	resolver  FreshResolver
	snapshots Snapshots
	log       *logger.Logger

	username string
	password string
	siteID   string
	serials  map[string]string

	pushTimeout time.Duration

	authMu sync.Mutex
	pair   *tokens.Pair
}

// NewSession builds a Session and loads any persisted token pair.
func NewSession(opts Options) *Session {
	s := &Session{
		http:        opts.Transport,
		store:       opts.Tokens,
		resolver:    opts.Resolver,
		snapshots:   opts.Snapshots,
		log:         opts.Log,
		username:    opts.Username,
		password:    opts.Password,
		siteID:      opts.SiteID,
		serials:     opts.Serials,
		pushTimeout: opts.PushTimeout,
	}
	if s.pushTimeout <= 0 {
		s.pushTimeout = 5 * time.Second
	}
	if s.store != nil {
		s.pair = s.store.Load()
	}
	return s
}

// execute sends one authenticated (or anonymous) request. A first 401
// with auth required triggers exactly one token refresh and one retry;
// a second 401 surfaces as an *APIError like any other >= 400 status.
func (s *Session) execute(ctx context.Context, method, endpoint string, body any, requireAuth bool) ([]byte, error) {
	headers := http.Header{}
	if requireAuth {
		if err := s.ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
		headers.Set("Authorization", "Bearer "+s.accessToken())
	}

	status, respBody, err := s.http.Send(ctx, method, endpoint, headers, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && requireAuth {
		// the access token went stale between expiry check and use
		if err := s.refreshPair(ctx); err != nil {
			return nil, err
		}
		headers.Set("Authorization", "Bearer "+s.accessToken())
		status, respBody, err = s.http.Send(ctx, method, endpoint, headers, body)
		if err != nil {
			return nil, err
		}
	}

	if status >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: status, Body: string(respBody)}
	}
	return respBody, nil
}

// getJSON executes a GET and decodes an object response. An empty body
// decodes to an empty map.
func (s *Session) getJSON(ctx context.Context, endpoint string) (map[string]any, error) {
	body, err := s.execute(ctx, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

// getJSONList executes a GET and decodes an array-of-objects response.
func (s *Session) getJSONList(ctx context.Context, endpoint string) ([]map[string]any, error) {
	body, err := s.execute(ctx, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response list: %w", err)
	}
	return out, nil
}

// postJSON executes a POST/PUT with a JSON body and decodes the reply.
func (s *Session) postJSON(ctx context.Context, method, endpoint string, payload any) (map[string]any, error) {
	body, err := s.execute(ctx, method, endpoint, payload, true)
	if err != nil {
		return nil, err
	}
	return decodeObject(body)
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// ensureAuthenticated makes at most one auth network call:
//
//	no pair            -> login (needs credentials)
//	access valid       -> nothing
//	refresh still good -> refresh
//	both expired       -> login (needs credentials)
func (s *Session) ensureAuthenticated(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	now := time.Now()
	switch {
	case s.pair == nil:
		return s.loginLocked(ctx, s.username, s.password)
	case !s.pair.IsAccessExpired(now):
		return nil
	case !s.pair.IsRefreshExpired(now):
		return s.refreshLocked(ctx)
	default:
		return s.loginLocked(ctx, s.username, s.password)
	}
}

// Login authenticates with explicit credentials, remembers them for
// later re-login and persists the resulting token pair.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.loginLocked(ctx, username, password)
}

// refreshPair performs one serialized refresh for the 401 retry path.
func (s *Session) refreshPair(ctx context.Context) error {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.refreshLocked(ctx)
}

// loginLocked posts credentials to the login endpoint. Callers hold
// authMu.
func (s *Session) loginLocked(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return &AuthError{Reason: "no credentials configured; run login first"}
	}

	payload := map[string]any{
		"username":   username,
		"password":   password,
		"appVersion": appVersion,
	}
	status, body, err := s.http.Send(ctx, http.MethodPost, loginEndpoint, nil, payload)
	if err != nil {
		return &AuthError{Reason: "login request failed", Err: err}
	}
	if status >= http.StatusBadRequest {
		return &AuthError{Reason: "login rejected: " + string(body)}
	}

	var resp struct {
		Token struct {
			Access  string `json:"access"`
			Refresh string `json:"refresh"`
		} `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &AuthError{Reason: "login response not parseable", Err: err}
	}
	if resp.Token.Access == "" {
		return &AuthError{Reason: "login response carried no access token"}
	}

	s.username = username
	s.password = password
	s.replacePair(tokens.NewPair(resp.Token.Access, resp.Token.Refresh, time.Now()))
	return nil
}

// refreshLocked exchanges the refresh token for a new pair. The
// refresh token rides both as payload and as the bearer credential.
// Callers hold authMu. A server-side refresh failure is final: the
// caller decides nothing further, per the single-retry contract.
func (s *Session) refreshLocked(ctx context.Context) error {
	if s.pair == nil || s.pair.Refresh == "" {
		return &AuthError{Reason: "no refresh token available"}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+s.pair.Refresh)
	payload := map[string]any{"refresh": s.pair.Refresh}

	status, body, err := s.http.Send(ctx, http.MethodPost, refreshEndpoint, headers, payload)
	if err != nil {
		return &AuthError{Reason: "refresh request failed", Err: err}
	}
	if status >= http.StatusBadRequest {
		return &AuthError{Reason: "token refresh rejected: " + string(body)}
	}

	var resp struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &AuthError{Reason: "refresh response not parseable", Err: err}
	}
	if resp.Access == "" {
		return &AuthError{Reason: "refresh response carried no access token"}
	}

	s.replacePair(tokens.NewPair(resp.Access, resp.Refresh, time.Now()))
	return nil
}

// replacePair installs a new pair and persists it. Persistence failure
// is logged, not fatal: the in-memory session stays authenticated.
func (s *Session) replacePair(p tokens.Pair) {
	s.pair = &p
	if s.store == nil {
		return
	}
	if err := s.store.Save(p); err != nil && s.log != nil {
		s.log.Warnw("could not persist tokens", "err", err)
	}
}

// accessToken returns a read-only snapshot of the current access token.
func (s *Session) accessToken() string {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	if s.pair == nil {
		return ""
	}
	return s.pair.Access
}

// SetResolver installs the push-channel resolver after construction.
// The resolver needs the session's token callback, so the two are
// wired in this order: session, then resolver, then this call.
func (s *Session) SetResolver(r FreshResolver) {
	s.resolver = r
}

// AccessTokenFunc adapts the session for push-channel authentication:
// it ensures the session is authenticated and hands out the token.
func (s *Session) AccessTokenFunc() func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if err := s.ensureAuthenticated(ctx); err != nil {
			return "", err
		}
		return s.accessToken(), nil
	}
}
