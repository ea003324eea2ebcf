package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
	"github.com/clika/admin-api/internal/service"
)

// stubController is a scriptable AuthControllerInterface for handler tests.
type stubController struct {
	state          domainauth.State
	signInErr      error
	signOutErr     error
	authorizeURL   string
	completeDest   string
	completeErr    error
	updateErr      error
	updatedProfile *domainauth.Profile
	signInCalls    int
	signOutCalls   int
	completeCalls  int
	lastCallback   ports.OAuthCallback
}

func (s *stubController) State() domainauth.State { return s.state }

func (s *stubController) SignIn(_ context.Context, _, _ string) error {
	s.signInCalls++
	if s.signInErr != nil {
		return s.signInErr
	}
	s.state = signedInState("user-1", "alice@clika.gg", domainauth.RoleEditor)
	return nil
}

func (s *stubController) SignInWithProvider(_ context.Context, provider, _ string) (string, error) {
	if s.authorizeURL == "" {
		return "https://sso.example.com/authorize?provider=" + provider, nil
	}
	return s.authorizeURL, nil
}

func (s *stubController) CompleteSignIn(_ context.Context, cb ports.OAuthCallback) (string, error) {
	s.completeCalls++
	s.lastCallback = cb
	if s.completeErr != nil {
		return "", s.completeErr
	}
	s.state = signedInState("user-1", "alice@clika.gg", domainauth.RoleEditor)
	return s.completeDest, nil
}

func (s *stubController) SignOut(context.Context) error {
	s.signOutCalls++
	s.state = domainauth.State{Initialized: true}
	return s.signOutErr
}

func (s *stubController) UpdateProfile(
	_ context.Context,
	_ domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.updatedProfile, nil
}

func signedInState(userID, email string, role domainauth.Role) domainauth.State {
	return domainauth.State{
		Identity:    &domainauth.Identity{ID: userID, Email: email},
		Session:     &domainauth.Session{AccessToken: "at"},
		Profile:     &domainauth.Profile{UserID: userID, DisplayName: "Alice", Role: role},
		Initialized: true,
	}
}

func decodeSessionView(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var v sessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAuthHandlers_Session_Anonymous(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{state: domainauth.State{Initialized: true}}}

	rec := httptest.NewRecorder()
	h.Session(rec, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeSessionView(t, rec)
	assert.False(t, v.Authenticated)
	assert.True(t, v.Initialized)
	assert.Empty(t, v.Role)
}

func TestAuthHandlers_Login_Success(t *testing.T) {
	ctrl := &stubController{state: domainauth.State{Initialized: true}}
	h := &AuthHandlers{Ctrl: ctrl}

	body := strings.NewReader(`{"email":"alice@clika.gg","password":"hunter2"}`)
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeSessionView(t, rec)
	assert.True(t, v.Authenticated)
	assert.Equal(t, "editor", v.Role)
	assert.Equal(t, 1, ctrl.signInCalls)
}

func TestAuthHandlers_Login_InvalidCredentials(t *testing.T) {
	ctrl := &stubController{
		state:     domainauth.State{Initialized: true},
		signInErr: apperrors.InvalidCredentials("invalid login credentials"),
	}
	h := &AuthHandlers{Ctrl: ctrl}

	body := strings.NewReader(`{"email":"alice@clika.gg","password":"wrong"}`)
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestAuthHandlers_Login_EmailNotConfirmed(t *testing.T) {
	ctrl := &stubController{
		state:     domainauth.State{Initialized: true},
		signInErr: apperrors.EmailNotConfirmed("email not confirmed"),
	}
	h := &AuthHandlers{Ctrl: ctrl}

	body := strings.NewReader(`{"email":"new@clika.gg","password":"pw"}`)
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "email_not_confirmed")
}

func TestAuthHandlers_Login_MissingFields(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{}}

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@clika.gg"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_SSO_ReturnsAuthorizeURL(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{}}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sso?provider=okta", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.SSO(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://sso.example.com/authorize?provider=okta")
}

func TestAuthHandlers_SSO_BrowserRedirects(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{authorizeURL: "https://idp.example.com/auth"}}

	req := httptest.NewRequest(http.MethodGet, "/auth/sso?provider=okta", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	h.SSO(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/auth", rec.Header().Get("Location"))
}

func TestAuthHandlers_SSO_MissingProvider(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{}}

	rec := httptest.NewRecorder()
	h.SSO(rec, httptest.NewRequest(http.MethodGet, "/api/auth/sso", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_Callback_RedirectsToDestination(t *testing.T) {
	ctrl := &stubController{completeDest: "/campaigns/42"}
	h := &AuthHandlers{Ctrl: ctrl, Guard: service.NewRouteGuard("/login", "/dashboard")}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=xyz", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/campaigns/42", rec.Header().Get("Location"))
	assert.Equal(t, 1, ctrl.completeCalls)
	assert.Equal(t, "abc", ctrl.lastCallback.Code)
	assert.Equal(t, "xyz", ctrl.lastCallback.State)
}

func TestAuthHandlers_Callback_DefaultsToHome(t *testing.T) {
	h := &AuthHandlers{Ctrl: &stubController{}, Guard: service.NewRouteGuard("/login", "/dashboard")}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?refresh_token=rt-1", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestAuthHandlers_Callback_ProviderError(t *testing.T) {
	ctrl := &stubController{}
	h := &AuthHandlers{Ctrl: ctrl, Guard: service.NewRouteGuard("/login", "/dashboard")}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	// No exchange is attempted; the browser lands back on the login page.
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?error=sso_failed", rec.Header().Get("Location"))
	assert.Equal(t, 0, ctrl.completeCalls)
}

func TestAuthHandlers_Callback_ExchangeFailure(t *testing.T) {
	ctrl := &stubController{completeErr: apperrors.InvalidCredentials("unknown or expired oauth state")}
	h := &AuthHandlers{Ctrl: ctrl, Guard: service.NewRouteGuard("/login", "/dashboard")}

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=stale", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestAuthHandlers_Logout_AlwaysSignsOut(t *testing.T) {
	ctrl := &stubController{
		state:      signedInState("user-1", "alice@clika.gg", domainauth.RoleEditor),
		signOutErr: apperrors.Transport("revocation endpoint unreachable"),
	}
	h := &AuthHandlers{Ctrl: ctrl}

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	// local sign-out succeeded, backend revocation failure is informational
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signed_out":true`)
	assert.Contains(t, rec.Body.String(), "revoke_error")
	assert.Equal(t, 1, ctrl.signOutCalls)
}

func TestAuthHandlers_Profile(t *testing.T) {
	ctrl := &stubController{state: signedInState("user-1", "alice@clika.gg", domainauth.RoleAdmin)}
	h := &AuthHandlers{Ctrl: ctrl}

	rec := httptest.NewRecorder()
	h.Profile(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"Alice"`)
}

func TestAuthHandlers_UpdateProfile(t *testing.T) {
	ctrl := &stubController{
		state: signedInState("user-1", "alice@clika.gg", domainauth.RoleEditor),
		updatedProfile: &domainauth.Profile{
			UserID: "user-1", DisplayName: "Alice L", Role: domainauth.RoleEditor,
		},
	}
	h := &AuthHandlers{Ctrl: ctrl}

	body := strings.NewReader(`{"display_name":"Alice L"}`)
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, httptest.NewRequest(http.MethodPatch, "/api/profile", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alice L")
}

func TestAuthHandlers_UpdateProfile_NotAuthenticated(t *testing.T) {
	ctrl := &stubController{
		state:     domainauth.State{Initialized: true},
		updateErr: apperrors.NotAuthenticated("sign in to update your profile"),
	}
	h := &AuthHandlers{Ctrl: ctrl}

	body := strings.NewReader(`{"display_name":"Ghost"}`)
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, httptest.NewRequest(http.MethodPatch, "/api/profile", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
