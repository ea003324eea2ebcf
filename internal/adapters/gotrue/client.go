package gotrue

// Package gotrue implements the auth client against a GoTrue-style REST
// backend (the auth service CLIKA's managed platform exposes): password and
// refresh-token grants, provider authorize URLs, logout and user updates.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// DefaultRefreshLeeway is how long before access-token expiry the refresh
// loop renews the session.
const DefaultRefreshLeeway = time.Minute

// Config holds configuration for the GoTrue client.
type Config struct {
	// BaseURL is the auth endpoint root, e.g. https://auth.clika.gg/auth/v1.
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// JWTSecret, when set, verifies access-token signatures. Without it
	// claims are read unverified, which is acceptable only because the
	// token came straight from the backend over TLS.
	JWTSecret string
	// RefreshLeeway defaults to DefaultRefreshLeeway when zero.
	RefreshLeeway time.Duration
	HTTPClient    *http.Client // optional, defaults to a 30s-timeout client
	Logger        *slog.Logger
}

// Client implements ports.AuthClient against a GoTrue REST backend. Token
// bundles are persisted through the TokenStore so sessions survive restarts.
type Client struct {
	baseURL       string
	apiKey        string
	jwtSecret     string
	refreshLeeway time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
	store         ports.TokenStore

	mu       sync.Mutex
	current  *domainauth.Session
	identity *domainauth.Identity
	handlers map[int]func(domainauth.Event)
	nextID   int
}

var _ ports.AuthClient = (*Client)(nil)

// NewClient creates a GoTrue client persisting token bundles to store.
func NewClient(cfg Config, store ports.TokenStore) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	leeway := cfg.RefreshLeeway
	if leeway <= 0 {
		leeway = DefaultRefreshLeeway
	}

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		jwtSecret:     cfg.JWTSecret,
		refreshLeeway: leeway,
		httpClient:    httpClient,
		logger:        logger,
		store:         store,
		handlers:      make(map[int]func(domainauth.Event)),
	}, nil
}

// tokenResponse is the grant endpoint's success payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// errorResponse covers both GoTrue error shapes (older and newer deployments).
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             int    `json:"code"`
	Msg              string `json:"msg"`
}

// GetPersistedSession restores the persisted token bundle, refreshing it when
// the access token is expired or about to expire. A missing bundle is a clean
// (nil, nil, nil) logged-out restore, not an error.
func (c *Client) GetPersistedSession(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error) {
	sess, err := c.store.Load(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "load persisted session")
	}

	if time.Until(sess.ExpiresAt) < c.refreshLeeway {
		refreshed, refreshErr := c.refreshGrant(ctx, sess.RefreshToken)
		if refreshErr != nil {
			// A rejected refresh token means the session is gone for good.
			if apperrors.IsInvalidCredentials(refreshErr) {
				if delErr := c.store.Delete(ctx); delErr != nil {
					c.logger.Warn("delete stale token bundle failed", "error", delErr)
				}
				return nil, nil, nil
			}
			return nil, nil, refreshErr
		}
		sess = *refreshed
	}

	identity, err := c.identityFromToken(sess.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("decode restored access token: %w", err)
	}

	c.setSession(&sess, identity)
	return &sess, identity, nil
}

// SignInWithPassword performs a password grant. On success the new session is
// persisted and a SIGNED_IN event is emitted; state updates ride the event.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var tok tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &tok); err != nil {
		return err
	}

	sess, identity, err := c.adoptToken(ctx, tok)
	if err != nil {
		return err
	}
	c.emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: sess, Identity: identity})
	return nil
}

// SignInWithOAuth returns the provider authorize URL the browser should be
// sent to. The session arrives later through the callback and event stream.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	if provider == "" {
		return "", apperrors.Validation("provider is required")
	}
	q := url.Values{"provider": {provider}}
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	return c.baseURL + "/authorize?" + q.Encode(), nil
}

// CompleteOAuth finishes the provider flow. The backend's server-side flow
// hands the callback a refresh token rather than a code, and carries no
// state round-trip, so no destination comes back from here.
func (c *Client) CompleteOAuth(ctx context.Context, cb ports.OAuthCallback) (string, error) {
	if cb.RefreshToken == "" {
		return "", apperrors.Validation("refresh token is required")
	}
	return "", c.ExchangeRefreshToken(ctx, cb.RefreshToken)
}

// ExchangeRefreshToken turns an OAuth callback's refresh token into a live
// session. Used by the callback handler after the external provider flow.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) error {
	sess, err := c.refreshGrant(ctx, refreshToken)
	if err != nil {
		return err
	}
	identity, err := c.identityFromToken(sess.AccessToken)
	if err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	c.setSession(sess, identity)
	c.emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: sess, Identity: identity})
	return nil
}

// SignOut revokes the backend session and always clears the persisted bundle,
// even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.identity = nil
	c.mu.Unlock()

	if delErr := c.store.Delete(ctx); delErr != nil {
		c.logger.Warn("delete token bundle failed", "error", delErr)
	}

	var revokeErr error
	if sess != nil {
		revokeErr = c.post(ctx, "/logout", sess.AccessToken, nil, nil)
	}

	c.emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	return revokeErr
}

// UpdateUser applies account changes (email, password, metadata) and emits
// USER_UPDATED so dependent state re-resolves.
func (c *Client) UpdateUser(ctx context.Context, update ports.UserUpdate) error {
	c.mu.Lock()
	sess := c.current
	identity := c.identity
	c.mu.Unlock()
	if sess == nil {
		return apperrors.NotAuthenticated("no active session")
	}

	body := map[string]any{}
	if update.Email != nil {
		body["email"] = *update.Email
	}
	if update.Password != nil {
		body["password"] = *update.Password
	}
	if update.Metadata != nil {
		body["data"] = update.Metadata
	}
	if len(body) == 0 {
		return apperrors.Validation("no user fields to update")
	}

	if err := c.put(ctx, "/user", sess.AccessToken, body); err != nil {
		return err
	}

	if update.Metadata != nil && identity != nil {
		merged := *identity
		merged.Metadata = update.Metadata
		identity = &merged
		c.setSession(sess, identity)
	}
	c.emit(domainauth.Event{Kind: domainauth.EventUserUpdated, Session: sess, Identity: identity})
	return nil
}

func (c *Client) Subscribe(handler func(domainauth.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Run keeps the active session's access token fresh until ctx is cancelled,
// emitting TOKEN_REFRESHED on each renewal. Intended to run under the
// process's task group.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.mu.Lock()
		sess := c.current
		c.mu.Unlock()

		wait := time.Minute
		if sess != nil {
			wait = time.Until(sess.ExpiresAt) - c.refreshLeeway
			if wait < time.Second {
				wait = time.Second
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		c.mu.Lock()
		sess = c.current
		c.mu.Unlock()
		if sess == nil || time.Until(sess.ExpiresAt) > c.refreshLeeway {
			continue
		}

		refreshed, err := c.refreshGrant(ctx, sess.RefreshToken)
		if err != nil {
			if apperrors.IsInvalidCredentials(err) {
				c.logger.Warn("refresh token rejected; signing out")
				c.mu.Lock()
				c.current = nil
				c.identity = nil
				c.mu.Unlock()
				if delErr := c.store.Delete(ctx); delErr != nil {
					c.logger.Warn("delete token bundle failed", "error", delErr)
				}
				c.emit(domainauth.Event{Kind: domainauth.EventSignedOut})
				continue
			}
			c.logger.Warn("token refresh failed; retrying", "error", err)
			continue
		}

		identity, err := c.identityFromToken(refreshed.AccessToken)
		if err != nil {
			c.logger.Warn("decode refreshed access token failed", "error", err)
			continue
		}
		c.setSession(refreshed, identity)
		c.emit(domainauth.Event{
			Kind:     domainauth.EventTokenRefreshed,
			Session:  refreshed,
			Identity: identity,
		})
	}
}

func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidCredentials("no refresh token")
	}
	body := map[string]string{"refresh_token": refreshToken}
	var tok tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &tok); err != nil {
		return nil, err
	}
	sess := sessionFromToken(tok)
	if err := c.store.Save(ctx, *sess); err != nil {
		c.logger.Warn("persist refreshed token bundle failed", "error", err)
	}
	return sess, nil
}

// adoptToken persists a fresh grant and caches the decoded identity.
func (c *Client) adoptToken(ctx context.Context, tok tokenResponse) (*domainauth.Session, *domainauth.Identity, error) {
	sess := sessionFromToken(tok)
	identity, err := c.identityFromToken(sess.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("decode access token: %w", err)
	}
	if err := c.store.Save(ctx, *sess); err != nil {
		c.logger.Warn("persist token bundle failed", "error", err)
	}
	c.setSession(sess, identity)
	return sess, identity, nil
}

func sessionFromToken(tok tokenResponse) *domainauth.Session {
	return &domainauth.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
}

func (c *Client) setSession(sess *domainauth.Session, identity *domainauth.Identity) {
	c.mu.Lock()
	c.current = sess
	c.identity = identity
	c.mu.Unlock()
}

func (c *Client) emit(ev domainauth.Event) {
	c.mu.Lock()
	handlers := make([]func(domainauth.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// accessClaims is the subset of GoTrue JWT claims the dashboard reads.
type accessClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// identityFromToken decodes the identity embedded in an access token. With a
// configured secret the signature is verified; otherwise claims are trusted
// as delivered by the backend.
func (c *Client) identityFromToken(accessToken string) (*domainauth.Identity, error) {
	var claims accessClaims
	if c.jwtSecret != "" {
		_, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return []byte(c.jwtSecret), nil
		})
		if err != nil {
			return nil, fmt.Errorf("verify access token: %w", err)
		}
	} else {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
			return nil, fmt.Errorf("parse access token: %w", err)
		}
	}

	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}
	return &domainauth.Identity{
		ID:       claims.Subject,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}, nil
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, bearer, body, out)
}

func (c *Client) put(ctx context.Context, path, bearer string, body any) error {
	return c.do(ctx, http.MethodPut, path, bearer, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "auth backend unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "read auth response")
	}

	if resp.StatusCode >= 400 {
		return mapAPIError(resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}
	}
	return nil
}

// mapAPIError translates the backend's error payload into the typed error
// the caller branches on. The same HTTP status covers several distinct
// failure modes, so the payload code wins over the status.
func mapAPIError(status int, data []byte) error {
	var payload errorResponse
	_ = json.Unmarshal(data, &payload)

	code := payload.ErrorCode
	if code == "" {
		code = payload.Error
	}
	msg := payload.ErrorDescription
	if msg == "" {
		msg = payload.Msg
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch code {
	case "email_not_confirmed":
		return apperrors.EmailNotConfirmed(msg)
	case "invalid_grant", "invalid_credentials", "bad_jwt":
		return apperrors.InvalidCredentials(msg)
	}
	// Older deployments signal the unconfirmed case only through the
	// description text.
	if strings.Contains(strings.ToLower(msg), "not confirmed") {
		return apperrors.EmailNotConfirmed(msg)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return apperrors.InvalidCredentials(msg)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Validation(msg)
	case status >= 500:
		return apperrors.Transport(msg)
	default:
		return apperrors.Internal(fmt.Sprintf("auth backend error (%d): %s", status, msg))
	}
}
