package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

var _ ports.TokenStore = (*TokenStore)(nil)

func newTestStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, "test"), mr
}

func TestTokenStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := domainauth.Session{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, loaded.AccessToken)
	assert.Equal(t, sess.RefreshToken, loaded.RefreshToken)
	assert.True(t, sess.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestTokenStore_LoadEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load(context.Background())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTokenStore_SaveRejectsEmptyAccessToken(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Save(context.Background(), domainauth.Session{RefreshToken: "rt"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestTokenStore_ExpiredBundleWithRefreshTokenSurvives(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := domainauth.Session{
		AccessToken:  "at-stale",
		RefreshToken: "rt-live",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-live", loaded.RefreshToken)
}

func TestTokenStore_DeadBundleIsCleanedUp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := domainauth.Session{
		AccessToken: "at-dead",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Save(ctx, sess))

	_, err := store.Load(ctx)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Load(ctx)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTokenStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{
		AccessToken:  "at-2",
		RefreshToken: "rt-2",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.Delete(ctx))

	_, err := store.Load(ctx)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTokenStore_BundleTTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewTokenStoreWithTTL(client, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{
		AccessToken:  "at-3",
		RefreshToken: "rt-3",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx)
	assert.True(t, apperrors.IsNotFound(err))
}
