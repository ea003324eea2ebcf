package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/clika/admin-api/config"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RunDeps contains everything needed to run the application.
type RunDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// Run assembles the auth stack and HTTP server, then blocks until a
// shutdown signal arrives or a component fails.
func Run(ctx context.Context, deps RunDeps) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := BuildAuthController(AuthDeps{
		Auth:        deps.Config.Auth,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth controller: %w", err)
	}
	defer auth.Controller.Close()

	server := BuildHTTPServer(&HTTPServerConfig{
		Config: deps.Config,
		Auth:   auth,
		DB:     deps.DB,
		Logger: logger,
	})

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(signalCtx)

	if auth.Background != nil {
		g.Go(func() error {
			if bgErr := auth.Background(groupCtx); bgErr != nil && !errors.Is(bgErr, context.Canceled) {
				return bgErr
			}
			return nil
		})
	}

	g.Go(func() error {
		// Session restore runs before the server accepts traffic so the
		// guard never reports Checking for longer than the init timeout.
		state := auth.Controller.Initialize(groupCtx)
		logger.InfoContext(groupCtx, "auth controller initialized",
			"authenticated", state.Identity != nil,
		)

		logger.Info("starting HTTP server", "addr", server.Addr)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		return ShutdownHTTPServer(context.Background(), server, deps.Config.HTTP.ShutdownTimeout, logger)
	})

	return g.Wait()
}
