package devauth

// Package devauth provides a config-driven auth client for local development.
// It accepts a single configured email/password pair and never talks to a
// real backend.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// Config controls the dev auth client. Email and Password are required.
type Config struct {
	UserID          string
	Email           string
	Password        string
	Role            string        // defaults to "admin"; local dev wants full access
	SessionDuration time.Duration // default 8h when zero
	// StartSignedIn makes the configured session restorable at startup, as
	// if it had been persisted by a previous run.
	StartSignedIn bool
}

// Client implements ports.AuthClient for local development.
type Client struct {
	cfg     Config
	session time.Duration

	mu       sync.Mutex
	current  *domainauth.Session
	handlers map[int]func(domainauth.Event)
	nextID   int
}

var _ ports.AuthClient = (*Client)(nil)

// NewClient constructs a dev auth client from Config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("dev auth: Password is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = "dev-user"
	}
	if cfg.Role == "" {
		cfg.Role = string(domainauth.RoleAdmin)
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	return &Client{
		cfg:      cfg,
		session:  dur,
		handlers: make(map[int]func(domainauth.Event)),
	}, nil
}

func (c *Client) identity() *domainauth.Identity {
	return &domainauth.Identity{
		ID:    c.cfg.UserID,
		Email: c.cfg.Email,
		Metadata: map[string]any{
			"role": c.cfg.Role,
		},
	}
}

func (c *Client) newSession() (*domainauth.Session, error) {
	tok, err := randomString(24)
	if err != nil {
		return nil, fmt.Errorf("generate dev token: %w", err)
	}
	return &domainauth.Session{
		AccessToken:  "dev-" + tok,
		RefreshToken: "dev-refresh-" + tok,
		ExpiresAt:    time.Now().Add(c.session),
	}, nil
}

func (c *Client) GetPersistedSession(_ context.Context) (*domainauth.Session, *domainauth.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil && c.cfg.StartSignedIn {
		sess, err := c.newSession()
		if err != nil {
			return nil, nil, err
		}
		c.current = sess
	}
	if c.current == nil {
		return nil, nil, nil
	}
	return c.current, c.identity(), nil
}

func (c *Client) SignInWithPassword(_ context.Context, email, password string) error {
	if email != c.cfg.Email || password != c.cfg.Password {
		return apperrors.InvalidCredentials("bad email or password")
	}
	sess, err := c.newSession()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	c.emit(domainauth.Event{
		Kind:     domainauth.EventSignedIn,
		Session:  sess,
		Identity: c.identity(),
	})
	return nil
}

// SignInWithOAuth short-circuits the provider flow by pointing straight back
// at our own callback.
func (c *Client) SignInWithOAuth(_ context.Context, provider, _ string) (string, error) {
	if provider == "" {
		return "", apperrors.Validation("provider is required")
	}
	state, err := randomString(24)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return "/auth/callback?code=dev&state=" + state, nil
}

// CompleteOAuth signs the configured user in; the short-circuit flow has no
// real provider behind it, so any code from our own callback is accepted.
func (c *Client) CompleteOAuth(_ context.Context, cb ports.OAuthCallback) (string, error) {
	if cb.Code == "" {
		return "", apperrors.Validation("authorization code is required")
	}
	sess, err := c.newSession()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	c.emit(domainauth.Event{
		Kind:     domainauth.EventSignedIn,
		Session:  sess,
		Identity: c.identity(),
	})
	return "", nil
}

func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	return nil
}

func (c *Client) UpdateUser(_ context.Context, update ports.UserUpdate) error {
	c.mu.Lock()
	sess := c.current
	if sess == nil {
		c.mu.Unlock()
		return apperrors.NotAuthenticated("no active session")
	}
	if update.Email != nil {
		c.cfg.Email = *update.Email
	}
	if update.Password != nil {
		c.cfg.Password = *update.Password
	}
	c.mu.Unlock()

	identity := c.identity()
	if update.Metadata != nil {
		identity.Metadata = update.Metadata
	}
	c.emit(domainauth.Event{
		Kind:     domainauth.EventUserUpdated,
		Session:  sess,
		Identity: identity,
	})
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
