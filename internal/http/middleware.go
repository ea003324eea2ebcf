package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	"github.com/clika/admin-api/internal/service"
	"github.com/google/uuid"
)

// requestIDHeader carries the request ID to clients and, when a trusted
// proxy sets it, into the log line.
const requestIDHeader = "X-Request-Id"

// RequestID returns a middleware that assigns each request an ID, honoring
// one already set by an upstream proxy.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", r.Header.Get(requestIDHeader)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// StateProvider is the slice of the auth controller the middleware needs.
type StateProvider interface {
	State() domainauth.State
}

// RequireAuth returns a middleware that requires an authenticated session.
// API requests get a 401 JSON response; browser requests are redirected to
// the guard's login path.
func RequireAuth(auth StateProvider, guard service.RouteGuard) func(http.Handler) http.Handler {
	return requireRole(auth, guard, domainauth.RoleNone)
}

// RequireRole returns a middleware that requires the session role to satisfy
// requiredRole. Unauthenticated requests behave like RequireAuth; an
// under-privileged session gets 403 JSON or a redirect to the guard's home
// path, so "not logged in" and "insufficient privilege" land differently.
func RequireRole(
	auth StateProvider,
	guard service.RouteGuard,
	requiredRole domainauth.Role,
) func(http.Handler) http.Handler {
	return requireRole(auth, guard, requiredRole)
}

func requireRole(
	auth StateProvider,
	guard service.RouteGuard,
	requiredRole domainauth.Role,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := auth.State()
			decision := guard.Evaluate(state, requiredRole)

			switch decision.Status {
			case GuardAllowed:
				ctx := SetIdentityInContext(r.Context(), state.Identity)
				next.ServeHTTP(w, r.WithContext(ctx))
			case GuardChecking:
				// Session restore still in flight; tell the client to retry
				// rather than misreport it as signed out.
				w.Header().Set("Retry-After", "1")
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "auth_initializing",
					Err:     errors.New("authentication state is still initializing"),
				})
			default:
				writeDenied(w, r, state, decision)
			}
		})
	}
}

// Aliases so middleware call sites read naturally without importing service.
const (
	GuardChecking = service.GuardChecking
	GuardAllowed  = service.GuardAllowed
	GuardDenied   = service.GuardDenied
)

func writeDenied(
	w http.ResponseWriter,
	r *http.Request,
	state domainauth.State,
	decision service.GuardDecision,
) {
	loggedOut := state.Identity == nil || state.Err != nil
	if IsBrowserRequest(r) {
		target := decision.RedirectTo
		if loggedOut {
			target = withRedirectURI(target, r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	if loggedOut {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "insufficient_permissions",
		Err:     errors.New("insufficient permissions"),
	})
}

// withRedirectURI appends a safe relative redirect_uri query parameter.
func withRedirectURI(target, requestURI string) string {
	redirect := safeRedirectPath(requestURI)
	if redirect == "" || redirect == "/" {
		return target
	}
	u := url.URL{Path: target}
	q := url.Values{}
	q.Set("redirect_uri", redirect)
	u.RawQuery = q.Encode()
	return u.String()
}

// safeRedirectPath keeps redirects on-site: relative paths only.
func safeRedirectPath(raw string) string {
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	if strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return u.RequestURI()
}

// IsBrowserRequest reports whether a request should get redirects and HTML
// semantics instead of JSON errors. API routes are never browser requests.
func IsBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}
