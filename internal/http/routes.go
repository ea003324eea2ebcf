// Package httpx provides the HTTP handlers and middleware for the CLIKA
// admin dashboard API.
package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	"github.com/clika/admin-api/internal/service"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth      AuthControllerInterface
	Guard     service.RouteGuard
	Content   ContentStore
	Campaigns CampaignStore
	Flags     *service.FlagService
	Logger    *slog.Logger
}

// NewRouter creates and configures the API router. Write access is gated by
// role: content is editor territory, campaigns belong to advertisers, and
// flags are admin-only. Content review needs a reviewer or better.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Ctrl: services.Auth, Guard: services.Guard, Logger: services.Logger}
	registerAuthRoutes(mux, authHandlers, services)

	if services.Content != nil {
		registerContentRoutes(mux, &ContentHandlers{Store: services.Content}, services)
	}
	if services.Campaigns != nil {
		registerCampaignRoutes(mux, &CampaignHandlers{Store: services.Campaigns}, services)
	}
	if services.Flags != nil {
		registerFlagRoutes(mux, &FlagHandlers{Svc: services.Flags}, services)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return RequestID()(Logging(logger)(Recover(logger)(mux)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, services RouterServices) {
	requireAuth := RequireAuth(services.Auth, services.Guard)

	mux.HandleFunc("GET /api/auth/session", h.Session)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/auth/sso", h.SSO)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("GET /api/profile", requireAuth(http.HandlerFunc(h.Profile)))
	mux.Handle("PATCH /api/profile", requireAuth(http.HandlerFunc(h.UpdateProfile)))
}

func registerContentRoutes(mux *http.ServeMux, h *ContentHandlers, services RouterServices) {
	requireAuth := RequireAuth(services.Auth, services.Guard)
	requireEditor := RequireRole(services.Auth, services.Guard, domainauth.RoleEditor)
	requireReviewer := RequireRole(services.Auth, services.Guard, domainauth.RoleReviewer)

	mux.Handle("GET /api/content", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/content/{id}", requireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/content", requireEditor(http.HandlerFunc(h.Create)))
	mux.Handle("PATCH /api/content/{id}", requireEditor(http.HandlerFunc(h.Update)))
	mux.Handle("POST /api/content/{id}/review", requireReviewer(http.HandlerFunc(h.Review)))
	mux.Handle("DELETE /api/content/{id}", requireEditor(http.HandlerFunc(h.Delete)))
}

func registerCampaignRoutes(mux *http.ServeMux, h *CampaignHandlers, services RouterServices) {
	requireAuth := RequireAuth(services.Auth, services.Guard)
	requireAdvertiser := RequireRole(services.Auth, services.Guard, domainauth.RoleAdvertiser)

	mux.Handle("GET /api/campaigns", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/campaigns/{id}", requireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/campaigns", requireAdvertiser(http.HandlerFunc(h.Create)))
	mux.Handle("PATCH /api/campaigns/{id}", requireAdvertiser(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/campaigns/{id}", requireAdvertiser(http.HandlerFunc(h.Delete)))
}

func registerFlagRoutes(mux *http.ServeMux, h *FlagHandlers, services RouterServices) {
	requireAuth := RequireAuth(services.Auth, services.Guard)
	requireAdmin := RequireRole(services.Auth, services.Guard, domainauth.RoleAdmin)

	mux.Handle("GET /api/flags", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/flags/{key}", requireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/flags", requireAdmin(http.HandlerFunc(h.Create)))
	mux.Handle("PATCH /api/flags/{key}", requireAdmin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/flags/{key}", requireAdmin(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/flags/evaluate", requireAuth(http.HandlerFunc(h.Evaluate)))
}
