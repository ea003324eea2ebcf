package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// ProfileResolver maps an authenticated identity to an application profile,
// creating one on first sign-in. Resolve is idempotent: concurrent calls for
// the same identity settle on a single profile row.
type ProfileResolver struct {
	store  ports.ProfileStore
	logger *slog.Logger
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(store ports.ProfileStore, logger *slog.Logger) *ProfileResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileResolver{store: store, logger: logger}
}

// Resolve fetches the profile for the identity, creating it when absent.
// Lookup failures other than "not found" propagate unchanged; a uniqueness
// conflict on create falls back to a single re-fetch.
func (r *ProfileResolver) Resolve(ctx context.Context, identity domainauth.Identity) (*domainauth.Profile, error) {
	if identity.ID == "" {
		return nil, apperrors.Validation("identity ID is required")
	}

	profile, err := r.store.GetByUserID(ctx, identity.ID)
	if err == nil {
		return profile, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	created, err := r.store.Insert(ctx, newProfileFor(identity))
	if err == nil {
		r.logger.InfoContext(ctx, "profile created",
			"user_id", identity.ID,
			"role", created.Role)
		return created, nil
	}

	// A concurrent resolve for the same identity won the insert; the
	// existing row is authoritative.
	if apperrors.IsProfileConflict(err) {
		existing, refetchErr := r.store.GetByUserID(ctx, identity.ID)
		if refetchErr != nil {
			return nil, fmt.Errorf("refetch profile after conflict: %w", refetchErr)
		}
		return existing, nil
	}

	return nil, fmt.Errorf("create profile: %w", err)
}

// Update applies a partial patch to the identity's profile and returns the
// merged record.
func (r *ProfileResolver) Update(
	ctx context.Context,
	userID string,
	patch domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	if userID == "" {
		return nil, apperrors.Validation("user ID is required")
	}
	if patch.Role != nil && *patch.Role != domainauth.RoleNone &&
		domainauth.ParseRole(string(*patch.Role)) == domainauth.RoleNone {
		return nil, apperrors.ValidationField("role", "unknown role")
	}

	updated, err := r.store.Update(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// newProfileFor builds the default profile for a first sign-in: display name
// from explicit metadata or the email local part, role from the metadata
// suggestion or the lowest-privilege default.
func newProfileFor(identity domainauth.Identity) domainauth.Profile {
	role := identity.MetadataRole()
	if role == domainauth.RoleNone {
		role = domainauth.RoleReviewer
	}
	return domainauth.Profile{
		UserID:      identity.ID,
		DisplayName: defaultDisplayName(identity),
		Role:        role,
	}
}

func defaultDisplayName(identity domainauth.Identity) string {
	for _, key := range []string{"display_name", "full_name", "name"} {
		if v, ok := identity.Metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if identity.Email != "" {
		if at := strings.Index(identity.Email, "@"); at > 0 {
			return identity.Email[:at]
		}
		return identity.Email
	}
	return identity.ID
}
