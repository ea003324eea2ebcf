package oidc

// Package oidc implements the auth client against an enterprise OIDC/OAuth2
// identity provider, for deployments where the studio's SSO fronts the
// dashboard instead of the managed auth backend.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// RoleMapper translates IdP group membership into a dashboard role.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// Config holds configuration for the OIDC client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string // space-separated, e.g. "openid profile email"
	DiscoveryURL string
	// Roles, when set, derives a role from the groups claim for identities
	// whose claims carry no explicit role.
	Roles      RoleMapper
	HTTPClient *http.Client // optional, defaults to a 30s-timeout client
	Logger     *slog.Logger
}

// Client implements ports.AuthClient over OIDC. Password sign-in is not a
// thing under SSO; only the redirect flow is supported.
type Client struct {
	config     *oauth2.Config
	verifier   *gooidc.IDTokenVerifier
	provider   *gooidc.Provider
	httpClient *http.Client
	logger     *slog.Logger
	store      ports.TokenStore
	roles      RoleMapper

	mu       sync.Mutex
	current  *domainauth.Session
	identity *domainauth.Identity
	handlers map[int]func(domainauth.Event)
	nextID   int
	pending  map[string]pendingFlow
}

// pendingFlow is an authorize URL handed out and not yet redeemed. The state
// parameter keys it; the redirect is the caller's post-login destination.
type pendingFlow struct {
	redirect string
	expires  time.Time
}

// stateTTL bounds how long an issued state stays redeemable.
const stateTTL = 10 * time.Minute

var _ ports.AuthClient = (*Client)(nil)

// NewClient creates an OIDC client. A single discovery fetch resolves the
// provider endpoints and JWKS.
func NewClient(cfg Config, store ports.TokenStore) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
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

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint:     op.Endpoint(),
		},
		verifier:   op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		provider:   op,
		httpClient: httpClient,
		logger:     logger,
		store:      store,
		roles:      cfg.Roles,
		handlers:   make(map[int]func(domainauth.Event)),
		pending:    make(map[string]pendingFlow),
	}, nil
}

// GetPersistedSession restores the persisted token bundle. An expired access
// token is renewed through the refresh token; a dead bundle restores as a
// clean logged-out state.
func (c *Client) GetPersistedSession(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error) {
	sess, err := c.store.Load(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "load persisted session")
	}

	if sess.Expired() {
		refreshed, refreshErr := c.refresh(ctx, sess.RefreshToken)
		if refreshErr != nil {
			c.logger.Warn("persisted session refresh failed; starting logged out", "error", refreshErr)
			if delErr := c.store.Delete(ctx); delErr != nil {
				c.logger.Warn("delete stale token bundle failed", "error", delErr)
			}
			return nil, nil, nil
		}
		sess = *refreshed
	}

	identity, err := c.userInfoIdentity(ctx, sess.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("restore identity: %w", err)
	}
	c.setSession(&sess, identity)
	return &sess, identity, nil
}

// SignInWithPassword is unsupported under SSO.
func (c *Client) SignInWithPassword(context.Context, string, string) error {
	return apperrors.Validation("password sign-in is disabled; use the SSO flow")
}

// SignInWithOAuth returns the provider authorize URL with fresh state and
// nonce baked in. The state is held, together with the caller's post-login
// destination, until CompleteOAuth redeems it or stateTTL passes.
func (c *Client) SignInWithOAuth(_ context.Context, _, redirectURL string) (string, error) {
	state, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now()
	c.mu.Lock()
	for s, f := range c.pending {
		if now.After(f.expires) {
			delete(c.pending, s)
		}
	}
	c.pending[state] = pendingFlow{redirect: redirectURL, expires: now.Add(stateTTL)}
	c.mu.Unlock()

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
	return c.config.AuthCodeURL(state, opts...), nil
}

// CompleteOAuth validates the callback state against the pending flows and
// exchanges the authorization code. A state this client never issued, an
// already redeemed one, or one older than stateTTL is rejected before any
// token call is made.
func (c *Client) CompleteOAuth(ctx context.Context, cb ports.OAuthCallback) (string, error) {
	redirect, err := c.consumeState(cb.State)
	if err != nil {
		return "", err
	}
	if err := c.ExchangeCode(ctx, cb.Code); err != nil {
		return "", err
	}
	return redirect, nil
}

// consumeState redeems a state exactly once and returns the destination
// captured when the flow began.
func (c *Client) consumeState(state string) (string, error) {
	if state == "" {
		return "", apperrors.Validation("state is required")
	}
	c.mu.Lock()
	flow, ok := c.pending[state]
	delete(c.pending, state)
	c.mu.Unlock()
	if !ok || time.Now().After(flow.expires) {
		return "", apperrors.InvalidCredentials("unknown or expired oauth state")
	}
	return flow.redirect, nil
}

// ExchangeCode completes the authorization-code flow: token exchange, ID
// token verification, identity extraction. Emits SIGNED_IN on success.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	if code == "" {
		return apperrors.Validation("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "exchange authorization code")
	}

	identity, err := c.identityFromIDToken(ctx, token)
	if err != nil {
		return err
	}

	sess := &domainauth.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = time.Now().Add(time.Hour)
	}
	if err := c.store.Save(ctx, *sess); err != nil {
		c.logger.Warn("persist token bundle failed", "error", err)
	}

	c.setSession(sess, identity)
	c.emit(domainauth.Event{Kind: domainauth.EventSignedIn, Session: sess, Identity: identity})
	return nil
}

// SignOut drops the local session and persisted bundle. OIDC RP-initiated
// logout is deliberately not wired; the dashboard must not end the user's
// whole SSO session.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.identity = nil
	c.mu.Unlock()
	if err := c.store.Delete(ctx); err != nil {
		c.logger.Warn("delete token bundle failed", "error", err)
	}
	c.emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	return nil
}

// UpdateUser is unsupported: account attributes under SSO are owned by the
// identity provider's directory.
func (c *Client) UpdateUser(context.Context, ports.UserUpdate) error {
	return apperrors.Validation("account updates are managed by the identity provider")
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

func (c *Client) refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidCredentials("no refresh token")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "refresh token grant")
	}
	sess := &domainauth.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if sess.RefreshToken == "" {
		sess.RefreshToken = refreshToken
	}
	if err := c.store.Save(ctx, *sess); err != nil {
		c.logger.Warn("persist refreshed token bundle failed", "error", err)
	}
	return sess, nil
}

// idTokenClaims is the subset of ID token claims mapped onto the identity.
type idTokenClaims struct {
	Sub               string         `json:"sub"`
	Email             string         `json:"email"`
	Name              string         `json:"name"`
	PreferredUsername string         `json:"preferred_username"`
	ClikaRole         string         `json:"clika_role"`
	Groups            []string       `json:"groups"`
	Metadata          map[string]any `json:"user_metadata"`
}

func (c *Client) identityFromIDToken(ctx context.Context, token *oauth2.Token) (*domainauth.Identity, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, errors.New("missing id_token in token response")
	}
	idTok, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", err)
	}
	return c.mapClaims(claims), nil
}

// userInfoIdentity rebuilds the identity from the userinfo endpoint when no
// ID token is at hand (session restore).
func (c *Client) userInfoIdentity(ctx context.Context, accessToken string) (*domainauth.Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	ui, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var claims idTokenClaims
	if err := ui.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return c.mapClaims(claims), nil
}

func (c *Client) mapClaims(claims idTokenClaims) *domainauth.Identity {
	metadata := claims.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if claims.ClikaRole != "" {
		metadata["role"] = claims.ClikaRole
	} else if c.roles != nil {
		if role := c.roles.Map(claims.Groups); role != domainauth.RoleNone {
			metadata["role"] = string(role)
		}
	}
	if claims.Name != "" {
		metadata["full_name"] = claims.Name
	} else if claims.PreferredUsername != "" {
		metadata["name"] = claims.PreferredUsername
	}
	return &domainauth.Identity{
		ID:       claims.Sub,
		Email:    claims.Email,
		Metadata: metadata,
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

// randomString returns a URL-safe random string of exactly n characters.
func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	for len(s) < n {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
