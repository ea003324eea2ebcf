package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	mockauth "github.com/clika/admin-api/internal/mocks/auth"
)

func TestProfileResolver_Resolve_ReturnsExistingProfile(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	store.Seed(domainauth.Profile{
		UserID:      "u-1",
		DisplayName: "Alice",
		Role:        domainauth.RoleAdmin,
	})
	r := NewProfileResolver(store, nil)

	p, err := r.Resolve(context.Background(), domainauth.Identity{ID: "u-1", Email: "alice@clika.gg"})

	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)
	assert.Equal(t, 0, store.InsertCalls)
}

func TestProfileResolver_Resolve_CreatesDefaultProfile(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	r := NewProfileResolver(store, nil)

	p, err := r.Resolve(context.Background(), domainauth.Identity{ID: "u-2", Email: "bob@clika.gg"})

	require.NoError(t, err)
	assert.Equal(t, "bob", p.DisplayName)
	assert.Equal(t, domainauth.RoleReviewer, p.Role)
	assert.Equal(t, 1, store.InsertCalls)
}

func TestProfileResolver_Resolve_DisplayNameFromMetadata(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	r := NewProfileResolver(store, nil)

	p, err := r.Resolve(context.Background(), domainauth.Identity{
		ID:    "u-3",
		Email: "carol@clika.gg",
		Metadata: map[string]any{
			"full_name": "Carol C",
			"role":      "editor",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Carol C", p.DisplayName)
	assert.Equal(t, domainauth.RoleEditor, p.Role)
}

func TestProfileResolver_Resolve_NoEmailFallsBackToID(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	r := NewProfileResolver(store, nil)

	p, err := r.Resolve(context.Background(), domainauth.Identity{ID: "u-4"})

	require.NoError(t, err)
	assert.Equal(t, "u-4", p.DisplayName)
}

func TestProfileResolver_Resolve_LookupErrorPropagates(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	store.FailGet = apperrors.Transport("profiles table unreachable")
	r := NewProfileResolver(store, nil)

	_, err := r.Resolve(context.Background(), domainauth.Identity{ID: "u-5", Email: "eve@clika.gg"})

	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	// A transport failure must not be mistaken for a missing row.
	assert.Equal(t, 0, store.InsertCalls)
}

func TestProfileResolver_Resolve_ConflictRefetchesWinner(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	r := NewProfileResolver(store, nil)
	identity := domainauth.Identity{ID: "u-6", Email: "frank@clika.gg"}

	var wg sync.WaitGroup
	results := make([]*domainauth.Profile, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), identity)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Count())
	for i, p := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, p)
		assert.Equal(t, "u-6", p.UserID)
	}
}

func TestProfileResolver_Resolve_EmptyIdentity(t *testing.T) {
	r := NewProfileResolver(mockauth.NewMemoryProfileStore(), nil)

	_, err := r.Resolve(context.Background(), domainauth.Identity{})

	assert.True(t, apperrors.IsValidation(err))
}

func TestProfileResolver_Update_RejectsUnknownRole(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	store.Seed(domainauth.Profile{UserID: "u-7", Role: domainauth.RoleEditor})
	r := NewProfileResolver(store, nil)

	bogus := domainauth.Role("superuser")
	_, err := r.Update(context.Background(), "u-7", domainauth.ProfilePatch{Role: &bogus})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "role", apperrors.GetField(err))
}

func TestProfileResolver_Update_AppliesPatch(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	store.Seed(domainauth.Profile{UserID: "u-8", DisplayName: "Old", Role: domainauth.RoleReviewer})
	r := NewProfileResolver(store, nil)

	name := "New"
	role := domainauth.RoleEditor
	p, err := r.Update(context.Background(), "u-8", domainauth.ProfilePatch{DisplayName: &name, Role: &role})

	require.NoError(t, err)
	assert.Equal(t, "New", p.DisplayName)
	assert.Equal(t, domainauth.RoleEditor, p.Role)
}
