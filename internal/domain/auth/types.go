package auth

// Package auth contains domain-level types for authentication, sessions,
// and profiles. It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleReviewer   Role = "reviewer"
	RoleAdvertiser Role = "advertiser"
	RoleAnalyst    Role = "analyst"
)

// RoleNone is the zero value, meaning no role has been assigned.
const RoleNone Role = ""

// contentRank orders the content-management hierarchy: admin > editor > reviewer.
// Advertiser and analyst sit outside this chain and carry no rank.
var contentRank = map[Role]int{
	RoleReviewer: 1,
	RoleEditor:   2,
	RoleAdmin:    3,
}

// ParseRole maps an untyped role value (typically from an identity metadata
// bag) to a Role. Unknown or empty values parse to RoleNone.
func ParseRole(v string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	case RoleReviewer:
		return RoleReviewer
	case RoleAdvertiser:
		return RoleAdvertiser
	case RoleAnalyst:
		return RoleAnalyst
	default:
		return RoleNone
	}
}

// Satisfies reports whether r meets the given required role.
// Within the content hierarchy, higher roles satisfy lower requirements.
// Admin satisfies every requirement; advertiser and analyst satisfy only
// their own.
func (r Role) Satisfies(required Role) bool {
	if required == RoleNone {
		return r != RoleNone
	}
	if r == RoleAdmin {
		return true
	}
	if rr, ok := contentRank[required]; ok {
		return contentRank[r] >= rr
	}
	return r == required
}

// Identity represents the authenticated principal as known to the auth
// backend. Adapters map provider-specific claims into this shape.
type Identity struct {
	ID       string         // stable identifier (e.g. sub claim)
	Email    string         // optional
	Metadata map[string]any // provider metadata bag; may suggest a role
}

// MetadataRole returns the role suggested by the identity metadata bag,
// or RoleNone when absent or unrecognized.
func (i Identity) MetadataRole() Role {
	if i.Metadata == nil {
		return RoleNone
	}
	if v, ok := i.Metadata["role"].(string); ok {
		return ParseRole(v)
	}
	return RoleNone
}

// Session is the token pair proving a live authentication.
// The persisted layout mirrors the backend's own token bundle format.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session's access token is past its expiry.
func (s Session) Expired() bool { return time.Now().After(s.ExpiresAt) }

// Profile is the application's own per-user record layered on top of
// Identity, keyed 1:1 by the identity's stable identifier.
type Profile struct {
	UserID      string    `json:"user_id"      db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Role        Role      `json:"role"         db:"role"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}

// ProfilePatch carries partial profile updates. Nil fields are left unchanged.
type ProfilePatch struct {
	DisplayName *string
	Role        *Role
}

// EventKind labels a session-change notification from the auth backend.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is a session-change notification. Session and Identity are nil for
// signed-out events.
type Event struct {
	Kind     EventKind
	Session  *Session
	Identity *Identity
}

// State is the controller's published aggregate. It is immutable once
// published; consumers read whole snapshots, never individual fields of a
// live struct.
type State struct {
	Identity    *Identity
	Session     *Session
	Profile     *Profile
	Initialized bool
	Loading     bool
	Err         error
}

// EffectiveRole resolves the role with a single precedence order:
// the profile role wins, the identity metadata suggestion is the fallback.
func (s State) EffectiveRole() Role {
	if s.Profile != nil && s.Profile.Role != RoleNone {
		return s.Profile.Role
	}
	if s.Identity != nil {
		return s.Identity.MetadataRole()
	}
	return RoleNone
}

// Authenticated reports whether a signed-in identity is present.
func (s State) Authenticated() bool { return s.Identity != nil }

// Capability flags are pure functions of the effective role.

func (s State) IsAdmin() bool    { return s.EffectiveRole().Satisfies(RoleAdmin) }
func (s State) IsEditor() bool   { return s.EffectiveRole().Satisfies(RoleEditor) }
func (s State) IsReviewer() bool { return s.EffectiveRole().Satisfies(RoleReviewer) }
