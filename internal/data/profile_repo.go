package data

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clika/admin-api/internal/data/pgxutil"
	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

// ProfileRepo provides database operations for dashboard profiles. The table
// is keyed by the auth backend's user ID, so a racing first sign-in can only
// ever create one row; the loser surfaces as a profile conflict.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// NewProfileRepo creates a new ProfileRepo with real time provider.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewProfileRepoWithTimeProvider creates a new ProfileRepo with a custom time provider (useful for tests).
func NewProfileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

const profileGetQuery = `
	SELECT user_id, display_name, role, created_at, updated_at
	FROM profiles
	WHERE user_id = $1`

// GetByUserID retrieves a profile by the auth backend's user ID.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("user ID is required")
	}

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileGetQuery, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Insert creates a profile row. A concurrent insert for the same user ID
// surfaces as a ProfileConflict so callers can fall back to a re-fetch.
func (r *ProfileRepo) Insert(ctx context.Context, profile domainauth.Profile) (*domainauth.Profile, error) {
	if strings.TrimSpace(profile.UserID) == "" {
		return nil, apperrors.Validation("user ID is required")
	}
	if profile.Role != domainauth.RoleNone && domainauth.ParseRole(string(profile.Role)) == domainauth.RoleNone {
		return nil, apperrors.ValidationField("role", "unknown role")
	}

	now := r.timeProvider.Now().UTC()
	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO profiles (user_id, display_name, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING user_id, display_name, role, created_at, updated_at`,
			profile.UserID,
			strings.TrimSpace(profile.DisplayName),
			profile.Role,
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.ProfileConflict("profile already exists for user " + profile.UserID)
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Update applies a partial patch and returns the merged row.
func (r *ProfileRepo) Update(
	ctx context.Context,
	userID string,
	patch domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("user ID is required")
	}

	setParts := make([]string, 0, 3)
	args := make([]any, 0, 4)
	nextIdx := func() int { return len(args) + 1 }

	if patch.DisplayName != nil {
		setParts = append(setParts, "display_name = $"+strconv.Itoa(nextIdx()))
		args = append(args, strings.TrimSpace(*patch.DisplayName))
	}
	if patch.Role != nil {
		// RoleNone clears the assignment; anything else must parse.
		if *patch.Role != domainauth.RoleNone &&
			domainauth.ParseRole(string(*patch.Role)) == domainauth.RoleNone {
			return nil, apperrors.ValidationField("role", "unknown role")
		}
		setParts = append(setParts, "role = $"+strconv.Itoa(nextIdx()))
		args = append(args, *patch.Role)
	}
	if len(setParts) == 0 {
		return r.GetByUserID(ctx, userID)
	}

	setParts = append(setParts, "updated_at = $"+strconv.Itoa(nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())
	args = append(args, userID)

	query := "UPDATE profiles SET " + strings.Join(setParts, ", ") +
		" WHERE user_id = $" + strconv.Itoa(len(args)) +
		" RETURNING user_id, display_name, role, created_at, updated_at"

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}
