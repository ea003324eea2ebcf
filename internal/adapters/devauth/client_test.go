package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
)

func portsUserUpdate(email, password *string, metadata map[string]any) ports.UserUpdate {
	return ports.UserUpdate{Email: email, Password: password, Metadata: metadata}
}

func newDevClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Email == "" {
		cfg.Email = "dev@clika.gg"
	}
	if cfg.Password == "" {
		cfg.Password = "devpass"
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Password: "x"})
	assert.Error(t, err)

	_, err = NewClient(Config{Email: "dev@clika.gg"})
	assert.Error(t, err)
}

func TestClient_SignInWithPassword(t *testing.T) {
	c := newDevClient(t, Config{})

	var events []domainauth.Event
	unsub := c.Subscribe(func(ev domainauth.Event) { events = append(events, ev) })
	defer unsub()

	require.NoError(t, c.SignInWithPassword(context.Background(), "dev@clika.gg", "devpass"))

	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventSignedIn, events[0].Kind)
	require.NotNil(t, events[0].Identity)
	assert.Equal(t, "dev-user", events[0].Identity.ID)
	assert.Equal(t, domainauth.RoleAdmin, events[0].Identity.MetadataRole())
	require.NotNil(t, events[0].Session)
	assert.NotEmpty(t, events[0].Session.AccessToken)
}

func TestClient_SignInWithPassword_BadCredentials(t *testing.T) {
	c := newDevClient(t, Config{})

	err := c.SignInWithPassword(context.Background(), "dev@clika.gg", "nope")
	assert.True(t, apperrors.IsInvalidCredentials(err))
}

func TestClient_GetPersistedSession(t *testing.T) {
	t.Run("empty by default", func(t *testing.T) {
		c := newDevClient(t, Config{})
		sess, identity, err := c.GetPersistedSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Nil(t, identity)
	})

	t.Run("StartSignedIn seeds a session", func(t *testing.T) {
		c := newDevClient(t, Config{StartSignedIn: true, Role: "editor"})
		sess, identity, err := c.GetPersistedSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, sess)
		require.NotNil(t, identity)
		assert.Equal(t, domainauth.RoleEditor, identity.MetadataRole())
	})
}

func TestClient_SignOut(t *testing.T) {
	c := newDevClient(t, Config{StartSignedIn: true})
	_, _, err := c.GetPersistedSession(context.Background())
	require.NoError(t, err)

	var events []domainauth.Event
	unsub := c.Subscribe(func(ev domainauth.Event) { events = append(events, ev) })
	defer unsub()

	require.NoError(t, c.SignOut(context.Background()))

	sess, _, err := c.GetPersistedSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventSignedOut, events[0].Kind)
}

func TestClient_UpdateUser(t *testing.T) {
	c := newDevClient(t, Config{})

	err := c.UpdateUser(context.Background(), portsUserUpdate(nil, nil, map[string]any{"display_name": "Dev"}))
	assert.True(t, apperrors.IsNotAuthenticated(err))

	require.NoError(t, c.SignInWithPassword(context.Background(), "dev@clika.gg", "devpass"))

	var events []domainauth.Event
	unsub := c.Subscribe(func(ev domainauth.Event) { events = append(events, ev) })
	defer unsub()

	require.NoError(t, c.UpdateUser(context.Background(),
		portsUserUpdate(nil, nil, map[string]any{"display_name": "Dev"})))
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventUserUpdated, events[0].Kind)
	assert.Equal(t, "Dev", events[0].Identity.Metadata["display_name"])
}

func TestClient_SignInWithOAuth_ShortCircuits(t *testing.T) {
	c := newDevClient(t, Config{})

	u, err := c.SignInWithOAuth(context.Background(), "discord", "")
	require.NoError(t, err)
	assert.Contains(t, u, "/auth/callback?code=dev&state=")
}

func TestClient_CompleteOAuth_SignsIn(t *testing.T) {
	c := newDevClient(t, Config{})

	var events []domainauth.Event
	unsub := c.Subscribe(func(ev domainauth.Event) { events = append(events, ev) })
	defer unsub()

	_, err := c.CompleteOAuth(context.Background(), ports.OAuthCallback{})
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, events)

	dest, err := c.CompleteOAuth(context.Background(), ports.OAuthCallback{Code: "dev"})
	require.NoError(t, err)
	assert.Empty(t, dest)
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventSignedIn, events[0].Kind)
	require.NotNil(t, events[0].Session)

	sess, identity, err := c.GetPersistedSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "dev@clika.gg", identity.Email)
}
