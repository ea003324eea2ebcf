package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clika/admin-api/internal/adapters/authroles"
	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	mockauth "github.com/clika/admin-api/internal/mocks/auth"
	"github.com/clika/admin-api/internal/ports"
)

func portsUserUpdate() ports.UserUpdate {
	name := "New Name"
	return ports.UserUpdate{Metadata: map[string]any{"display_name": name}}
}

// newDiscoveryServer serves a minimal OIDC discovery document whose issuer
// matches the server's own URL, which is what go-oidc validates.
func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"issuer": %[1]q,
			"authorization_endpoint": "%[1]s/authorize",
			"token_endpoint": "%[1]s/token",
			"userinfo_endpoint": "%[1]s/userinfo",
			"jwks_uri": "%[1]s/jwks"
		}`, srv.URL)
	})
	return srv
}

func newSSOClient(t *testing.T) *Client {
	t.Helper()
	srv := newDiscoveryServer(t)
	c, err := NewClient(Config{
		ClientID:     "clika-admin",
		ClientSecret: "shhh",
		RedirectURL:  "https://admin.clika.gg/auth/callback",
		Scope:        "openid profile email",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
	}, mockauth.NewMemoryTokenStore())
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	srv := newDiscoveryServer(t)
	store := mockauth.NewMemoryTokenStore()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing client ID", Config{ClientSecret: "s", RedirectURL: "r", DiscoveryURL: srv.URL}},
		{"missing client secret", Config{ClientID: "c", RedirectURL: "r", DiscoveryURL: srv.URL}},
		{"missing redirect URL", Config{ClientID: "c", ClientSecret: "s", DiscoveryURL: srv.URL}},
		{"missing discovery URL", Config{ClientID: "c", ClientSecret: "s", RedirectURL: "r"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.cfg, store)
			assert.Error(t, err)
		})
	}
}

func TestClient_SignInWithOAuth_BuildsAuthorizeURL(t *testing.T) {
	c := newSSOClient(t)

	u, err := c.SignInWithOAuth(context.Background(), "sso", "")
	require.NoError(t, err)

	assert.Contains(t, u, "/authorize?")
	assert.Contains(t, u, "client_id=clika-admin")
	assert.Contains(t, u, "state=")
	assert.Contains(t, u, "nonce=")
	assert.Contains(t, u, "prompt=select_account")

	// Each call gets fresh state.
	u2, err := c.SignInWithOAuth(context.Background(), "sso", "")
	require.NoError(t, err)
	assert.NotEqual(t, u, u2)
}

func TestClient_CompleteOAuth_RejectsForeignState(t *testing.T) {
	c := newSSOClient(t)

	_, err := c.CompleteOAuth(context.Background(), ports.OAuthCallback{Code: "abc", State: "never-issued"})
	assert.True(t, apperrors.IsInvalidCredentials(err))

	_, err = c.CompleteOAuth(context.Background(), ports.OAuthCallback{Code: "abc"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestClient_StateRedeemsExactlyOnce(t *testing.T) {
	c := newSSOClient(t)

	u, err := c.SignInWithOAuth(context.Background(), "sso", "/campaigns")
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	dest, err := c.consumeState(state)
	require.NoError(t, err)
	assert.Equal(t, "/campaigns", dest)

	_, err = c.consumeState(state)
	assert.True(t, apperrors.IsInvalidCredentials(err))
}

func TestClient_PasswordSignInDisabled(t *testing.T) {
	c := newSSOClient(t)

	err := c.SignInWithPassword(context.Background(), "a@b.c", "pw")
	assert.True(t, apperrors.IsValidation(err))
}

func TestClient_UpdateUserDisabled(t *testing.T) {
	c := newSSOClient(t)

	err := c.UpdateUser(context.Background(), portsUserUpdate())
	assert.True(t, apperrors.IsValidation(err))
}

func TestClient_GetPersistedSession_Empty(t *testing.T) {
	c := newSSOClient(t)

	sess, identity, err := c.GetPersistedSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, identity)
}

func TestClient_SignOut_EmitsAndClears(t *testing.T) {
	c := newSSOClient(t)

	var events []domainauth.Event
	unsub := c.Subscribe(func(ev domainauth.Event) { events = append(events, ev) })
	defer unsub()

	require.NoError(t, c.SignOut(context.Background()))
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.EventSignedOut, events[0].Kind)
}

func TestMapClaims(t *testing.T) {
	c := newSSOClient(t)
	identity := c.mapClaims(idTokenClaims{
		Sub:       "u-1",
		Email:     "alice@studio.gg",
		Name:      "Alice A",
		ClikaRole: "editor",
	})

	assert.Equal(t, "u-1", identity.ID)
	assert.Equal(t, "alice@studio.gg", identity.Email)
	assert.Equal(t, "Alice A", identity.Metadata["full_name"])
	assert.Equal(t, domainauth.RoleEditor, identity.MetadataRole())
}

func TestMapClaims_PreferredUsernameFallback(t *testing.T) {
	c := newSSOClient(t)
	identity := c.mapClaims(idTokenClaims{
		Sub:               "u-2",
		PreferredUsername: "bob",
	})

	assert.Equal(t, "bob", identity.Metadata["name"])
	assert.Equal(t, domainauth.RoleNone, identity.MetadataRole())
}

func TestMapClaims_GroupsFallback(t *testing.T) {
	c := newSSOClient(t)
	c.roles = authroles.GroupMapper{EditorGroup: "clika-editors"}

	identity := c.mapClaims(idTokenClaims{
		Sub:    "u-3",
		Groups: []string{"engineering", "clika-editors"},
	})
	assert.Equal(t, domainauth.RoleEditor, identity.MetadataRole())

	// An explicit role claim wins over group mapping.
	identity = c.mapClaims(idTokenClaims{
		Sub:       "u-4",
		ClikaRole: "admin",
		Groups:    []string{"clika-editors"},
	})
	assert.Equal(t, domainauth.RoleAdmin, identity.MetadataRole())
}

func TestRandomString(t *testing.T) {
	s, err := randomString(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	s2, err := randomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, s, s2)

	empty, err := randomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
