package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/testutil"
)

func TestProfileRepo_Insert_Get_Update(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		created, err := repo.Insert(ctx, domainauth.Profile{
			UserID:      "user-1",
			DisplayName: "Alice",
			Role:        domainauth.RoleReviewer,
		})
		require.NoError(t, err)
		assert.Equal(t, "user-1", created.UserID)
		assert.Equal(t, domainauth.RoleReviewer, created.Role)
		assert.NotZero(t, created.CreatedAt)

		got, err := repo.GetByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.DisplayName)

		editor := domainauth.RoleEditor
		updated, err := repo.Update(ctx, "user-1", domainauth.ProfilePatch{
			DisplayName: testutil.StringPtr("Alice L"),
			Role:        &editor,
		})
		require.NoError(t, err)
		assert.Equal(t, "Alice L", updated.DisplayName)
		assert.Equal(t, domainauth.RoleEditor, updated.Role)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})
}

func TestProfileRepo_GetByUserID_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)

		_, err := repo.GetByUserID(context.Background(), "ghost")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestProfileRepo_Insert_Duplicate(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		_, err := repo.Insert(ctx, domainauth.Profile{
			UserID: "user-dup",
			Role:   domainauth.RoleReviewer,
		})
		require.NoError(t, err)

		_, err = repo.Insert(ctx, domainauth.Profile{
			UserID: "user-dup",
			Role:   domainauth.RoleAdmin,
		})
		assert.True(t, apperrors.IsProfileConflict(err))
	})
}

func TestProfileRepo_Update_EmptyPatchReturnsCurrent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		created, err := repo.Insert(ctx, domainauth.Profile{
			UserID:      "user-2",
			DisplayName: "Bob",
			Role:        domainauth.RoleAnalyst,
		})
		require.NoError(t, err)

		got, err := repo.Update(ctx, "user-2", domainauth.ProfilePatch{})
		require.NoError(t, err)
		assert.Equal(t, created.DisplayName, got.DisplayName)
		assert.Equal(t, created.Role, got.Role)
	})
}

func TestProfileRepo_Update_ClearsRole(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		_, err := repo.Insert(ctx, domainauth.Profile{
			UserID: "user-3",
			Role:   domainauth.RoleEditor,
		})
		require.NoError(t, err)

		none := domainauth.RoleNone
		updated, err := repo.Update(ctx, "user-3", domainauth.ProfilePatch{Role: &none})
		require.NoError(t, err)
		assert.Equal(t, domainauth.RoleNone, updated.Role)

		bogus := domainauth.Role("superuser")
		_, err = repo.Update(ctx, "user-3", domainauth.ProfilePatch{Role: &bogus})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestProfileRepo_Update_UnknownUser(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)

		_, err := repo.Update(context.Background(), "ghost", domainauth.ProfilePatch{
			DisplayName: testutil.StringPtr("Ghost"),
		})
		assert.True(t, apperrors.IsNotFound(err))
	})
}
