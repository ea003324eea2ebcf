package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthClient   = (*MockAuthClient)(nil)
	_ ports.ProfileStore = (*MemoryProfileStore)(nil)
	_ ports.TokenStore   = (*MemoryTokenStore)(nil)
)

// MockAuthClient simulates the auth backend for tests. Each operation can be
// overridden with a func field; Emit pushes events to subscribers the way
// the real backend's notification stream does.
type MockAuthClient struct {
	GetPersistedSessionFunc func(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error)
	SignInWithPasswordFunc  func(ctx context.Context, email, password string) error
	SignInWithOAuthFunc     func(ctx context.Context, provider, redirectURL string) (string, error)
	CompleteOAuthFunc       func(ctx context.Context, cb ports.OAuthCallback) (string, error)
	SignOutFunc             func(ctx context.Context) error
	UpdateUserFunc          func(ctx context.Context, update ports.UserUpdate) error

	// PersistedSession/PersistedIdentity are returned by default from
	// GetPersistedSession when no override is set.
	PersistedSession  *domainauth.Session
	PersistedIdentity *domainauth.Identity

	// EmitOnPasswordSignIn, when set, is emitted as a SIGNED_IN event after a
	// successful default SignInWithPassword.
	EmitOnPasswordSignIn *domainauth.Event

	mu       sync.Mutex
	handlers map[int]func(domainauth.Event)
	nextID   int

	SignOutCalls int
}

// NewMockAuthClient creates a MockAuthClient with no persisted session.
func NewMockAuthClient() *MockAuthClient {
	return &MockAuthClient{handlers: make(map[int]func(domainauth.Event))}
}

func (m *MockAuthClient) GetPersistedSession(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error) {
	if m.GetPersistedSessionFunc != nil {
		return m.GetPersistedSessionFunc(ctx)
	}
	return m.PersistedSession, m.PersistedIdentity, nil
}

func (m *MockAuthClient) SignInWithPassword(ctx context.Context, email, password string) error {
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	if m.EmitOnPasswordSignIn != nil {
		m.Emit(*m.EmitOnPasswordSignIn)
	}
	return nil
}

func (m *MockAuthClient) SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	if m.SignInWithOAuthFunc != nil {
		return m.SignInWithOAuthFunc(ctx, provider, redirectURL)
	}
	return "https://mock-idp/authorize?provider=" + provider, nil
}

func (m *MockAuthClient) CompleteOAuth(ctx context.Context, cb ports.OAuthCallback) (string, error) {
	if m.CompleteOAuthFunc != nil {
		return m.CompleteOAuthFunc(ctx, cb)
	}
	return "", nil
}

func (m *MockAuthClient) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.SignOutCalls++
	m.mu.Unlock()
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	m.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	return nil
}

func (m *MockAuthClient) UpdateUser(ctx context.Context, update ports.UserUpdate) error {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, update)
	}
	return nil
}

func (m *MockAuthClient) Subscribe(handler func(domainauth.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

// Emit delivers an event to all subscribers in registration order.
func (m *MockAuthClient) Emit(ev domainauth.Event) {
	m.mu.Lock()
	handlers := make([]func(domainauth.Event), 0, len(m.handlers))
	for i := 0; i < m.nextID; i++ {
		if h, ok := m.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount reports the number of active subscriptions.
func (m *MockAuthClient) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// TestSession builds a session expiring an hour from now.
func TestSession(token string) *domainauth.Session {
	return &domainauth.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// MemoryProfileStore is an in-memory profile store for unit tests. It
// reproduces the store's uniqueness semantics, including conflict on
// duplicate insert, and counts calls for race assertions.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domainauth.Profile

	GetCalls    int
	InsertCalls int

	// InsertDelay simulates slow writes so tests can interleave resolves.
	InsertDelay time.Duration
	// FailGet, when set, is returned from GetByUserID to simulate transport errors.
	FailGet error
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domainauth.Profile)}
}

func (m *MemoryProfileStore) GetByUserID(_ context.Context, userID string) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.FailGet != nil {
		return nil, m.FailGet
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperrors.NotFoundf("profile %q not found", userID)
	}
	return &p, nil
}

func (m *MemoryProfileStore) Insert(_ context.Context, profile domainauth.Profile) (*domainauth.Profile, error) {
	if m.InsertDelay > 0 {
		time.Sleep(m.InsertDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if _, exists := m.profiles[profile.UserID]; exists {
		return nil, apperrors.ProfileConflict("profile already exists")
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	m.profiles[profile.UserID] = profile
	return &profile, nil
}

func (m *MemoryProfileStore) Update(
	_ context.Context,
	userID string,
	patch domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperrors.NotFoundf("profile %q not found", userID)
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[userID] = p
	return &p, nil
}

// Count reports the number of stored profiles.
func (m *MemoryProfileStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

// Seed stores a profile directly, bypassing conflict checks.
func (m *MemoryProfileStore) Seed(profile domainauth.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = profile
}

// MemoryTokenStore is an in-memory token bundle store for unit tests.
type MemoryTokenStore struct {
	mu   sync.Mutex
	sess *domainauth.Session
}

// NewMemoryTokenStore creates an empty token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Save(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &sess
	return nil
}

func (m *MemoryTokenStore) Load(_ context.Context) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return domainauth.Session{}, apperrors.NotFound("no token bundle persisted")
	}
	return *m.sess, nil
}

func (m *MemoryTokenStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
	return nil
}
