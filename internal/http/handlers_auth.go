package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
	"github.com/clika/admin-api/internal/ports"
	"github.com/clika/admin-api/internal/service"
)

// AuthControllerInterface is the controller surface the auth handlers use.
type AuthControllerInterface interface {
	State() domainauth.State
	SignIn(ctx context.Context, email, password string) error
	SignInWithProvider(ctx context.Context, provider, redirectURL string) (string, error)
	CompleteSignIn(ctx context.Context, cb ports.OAuthCallback) (string, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, patch domainauth.ProfilePatch) (*domainauth.Profile, error)
}

// AuthHandlers provides HTTP handlers for session operations.
type AuthHandlers struct {
	Ctrl   AuthControllerInterface
	Guard  service.RouteGuard
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// sessionView is the JSON shape of the current auth state.
type sessionView struct {
	Authenticated bool                 `json:"authenticated"`
	Initialized   bool                 `json:"initialized"`
	Loading       bool                 `json:"loading"`
	Identity      *domainauth.Identity `json:"identity,omitempty"`
	Profile       *domainauth.Profile  `json:"profile,omitempty"`
	Role          string               `json:"role,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func viewOf(state domainauth.State) sessionView {
	v := sessionView{
		Authenticated: state.Identity != nil,
		Initialized:   state.Initialized,
		Loading:       state.Loading,
		Identity:      state.Identity,
		Profile:       state.Profile,
	}
	if state.Identity != nil {
		v.Role = string(state.EffectiveRole())
	}
	if state.Err != nil {
		v.Error = state.Err.Error()
	}
	return v
}

// Session returns the current authentication state.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, viewOf(h.Ctrl.State()))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs in with email and password.
// POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("email and password are required"),
		})
		return
	}

	if err := h.Ctrl.SignIn(r.Context(), req.Email, req.Password); err != nil {
		// EmailNotConfirmed stays distinct so the client can offer a
		// "resend confirmation" action instead of a password retry.
		if !apperrors.IsInvalidCredentials(err) && !apperrors.IsEmailNotConfirmed(err) {
			h.logger().ErrorContext(r.Context(), "sign-in failed", "error", err)
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(h.Ctrl.State()))
}

// SSO begins a provider sign-in and returns the authorize URL. Browser
// requests are redirected straight to the provider.
// GET /api/auth/sso?provider=<name>&redirect_uri=<path>.
func (h *AuthHandlers) SSO(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("provider is required"),
		})
		return
	}
	redirectURL := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	authorizeURL, err := h.Ctrl.SignInWithProvider(r.Context(), provider, redirectURL)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if IsBrowserRequest(r) {
		http.Redirect(w, r, authorizeURL, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"authorize_url": authorizeURL})
}

// Callback completes a provider sign-in and sends the browser on to its
// destination. OIDC providers deliver code and state; the managed backend's
// server-side flow delivers a refresh token.
// GET /auth/callback.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger().WarnContext(r.Context(), "oauth callback carried a provider error",
			"provider_error", providerErr,
			"description", q.Get("error_description"))
		h.callbackFailed(w, r, apperrors.InvalidCredentials("provider rejected the sign-in"))
		return
	}

	dest, err := h.Ctrl.CompleteSignIn(r.Context(), ports.OAuthCallback{
		Code:         q.Get("code"),
		State:        q.Get("state"),
		RefreshToken: q.Get("refresh_token"),
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "oauth completion failed", "error", err)
		h.callbackFailed(w, r, err)
		return
	}

	if dest == "" {
		dest = safeRedirectPath(q.Get("redirect_to"))
	}
	if dest == "" {
		dest = h.Guard.HomePath
	}
	if dest == "" {
		dest = "/"
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *AuthHandlers) callbackFailed(w http.ResponseWriter, r *http.Request, err error) {
	if IsBrowserRequest(r) && h.Guard.LoginPath != "" {
		http.Redirect(w, r, h.Guard.LoginPath+"?error=sso_failed", http.StatusFound)
		return
	}
	WriteAppError(w, err)
}

// Logout signs out. Local state is cleared even when backend revocation
// fails, so the response is 200 either way with the failure noted.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	revokeErr := h.Ctrl.SignOut(r.Context())
	if revokeErr != nil {
		h.logger().WarnContext(r.Context(), "backend sign-out failed", "error", revokeErr)
	}
	resp := map[string]any{"signed_out": true}
	if revokeErr != nil {
		resp["revoke_error"] = revokeErr.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Profile returns the resolved profile for the current session.
// GET /api/profile.
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	state := h.Ctrl.State()
	if state.Profile == nil {
		WriteAppError(w, apperrors.NotFound("no profile resolved for current session"))
		return
	}
	WriteJSON(w, http.StatusOK, state.Profile)
}

type profilePatchRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Role        *string `json:"role,omitempty"`
}

// UpdateProfile applies a partial profile update for the current session.
// PATCH /api/profile.
func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profilePatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	patch := domainauth.ProfilePatch{DisplayName: req.DisplayName}
	if req.Role != nil {
		role := domainauth.Role(*req.Role)
		patch.Role = &role
	}

	profile, err := h.Ctrl.UpdateProfile(r.Context(), patch)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}
