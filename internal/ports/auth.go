package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
)

// UserUpdate carries identity-level changes pushed to the auth backend.
// Nil fields are left unchanged.
type UserUpdate struct {
	Email    *string
	Password *string
	Metadata map[string]any
}

// OAuthCallback carries the provider callback parameters of a redirect-based
// sign-in. OIDC flows deliver Code and State; the managed backend's
// server-side flow delivers a RefreshToken.
type OAuthCallback struct {
	Code         string
	State        string
	RefreshToken string
}

// AuthClient is the external auth backend: sign-in, sign-out, session
// restore, user updates, and a session-change notification stream. It is a
// collaborator boundary; the controller never reaches around it to the
// persisted token bundle.
type AuthClient interface {
	// GetPersistedSession returns the currently persisted session and the
	// identity it proves, or (nil, nil, nil) when no session is persisted.
	GetPersistedSession(ctx context.Context) (*domainauth.Session, *domainauth.Identity, error)

	// SignInWithPassword checks credentials against the backend. On success
	// the client emits a SIGNED_IN event; state is never set synchronously.
	SignInWithPassword(ctx context.Context, email, password string) error

	// SignInWithOAuth returns the external provider authorize URL for a
	// redirect-based flow. Completion arrives later via the event stream.
	SignInWithOAuth(ctx context.Context, provider, redirectURL string) (string, error)

	// CompleteOAuth finishes a redirect-based flow with the provider
	// callback parameters, emitting SIGNED_IN on success. It returns the
	// post-login destination captured when the flow began, or "" when the
	// flow carried none.
	CompleteOAuth(ctx context.Context, cb OAuthCallback) (string, error)

	// SignOut invalidates the backend session and emits a SIGNED_OUT event.
	SignOut(ctx context.Context) error

	// UpdateUser pushes identity-level changes (email, password, metadata).
	UpdateUser(ctx context.Context, update UserUpdate) error

	// Subscribe registers a handler for session-change events and returns an
	// unsubscribe function. Events are delivered in backend emission order.
	Subscribe(handler func(domainauth.Event)) (unsubscribe func())
}

// ProfileStore persists application profiles keyed by identity ID.
type ProfileStore interface {
	// GetByUserID returns the profile for the given identity, or a NotFound
	// error when no profile exists. Transport and permission failures are
	// returned as-is, never as NotFound.
	GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error)

	// Insert creates a profile. A uniqueness conflict is returned as a
	// ProfileConflict error so callers can fall back to re-fetching.
	Insert(ctx context.Context, profile domainauth.Profile) (*domainauth.Profile, error)

	// Update applies a partial patch and returns the merged profile.
	Update(ctx context.Context, userID string, patch domainauth.ProfilePatch) (*domainauth.Profile, error)
}

// TokenStore persists the backend's token bundle across restarts. It is
// owned by the AuthClient implementations; the controller only observes
// sessions through the client.
type TokenStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	// Load returns a NotFound error when no bundle is persisted.
	Load(ctx context.Context) (domainauth.Session, error)
	Delete(ctx context.Context) error
}
