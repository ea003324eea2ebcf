package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/clika/admin-api/config"
	"github.com/clika/admin-api/internal/data"
	httpx "github.com/clika/admin-api/internal/http"
	"github.com/clika/admin-api/internal/service"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config *config.AppConfig
	Auth   *AuthComponents
	DB     *sql.DB
	Logger *slog.Logger
}

// BuildHTTPServer assembles the router and wraps it in an http.Server.
// The server is not started; callers own its lifecycle.
func BuildHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flags := service.NewFlagService(service.FlagServiceOptions{
		Store:  data.NewFlagRepo(cfg.DB),
		Logger: logger,
	})

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:      cfg.Auth.Controller,
		Guard:     cfg.Auth.Guard,
		Content:   data.NewContentRepo(cfg.DB),
		Campaigns: data.NewCampaignRepo(cfg.DB),
		Flags:     flags,
		Logger:    logger,
	})

	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logger != nil {
		logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("HTTP server stopped")
	}

	return nil
}
