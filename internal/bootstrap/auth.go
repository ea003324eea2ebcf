package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/clika/admin-api/config"
	"github.com/clika/admin-api/internal/adapters/authroles"
	"github.com/clika/admin-api/internal/adapters/devauth"
	"github.com/clika/admin-api/internal/adapters/gotrue"
	"github.com/clika/admin-api/internal/adapters/oidc"
	redisadapter "github.com/clika/admin-api/internal/adapters/redis"
	"github.com/clika/admin-api/internal/data"
	"github.com/clika/admin-api/internal/ports"
	"github.com/clika/admin-api/internal/service"
	"github.com/redis/go-redis/v9"
)

// tokenStoreName keys the persisted token bundle in Redis.
const tokenStoreName = "clika:auth:tokens"

// AuthDeps contains dependencies for building the auth controller.
type AuthDeps struct {
	Auth        config.AuthConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// AuthComponents bundles the constructed auth stack.
type AuthComponents struct {
	Controller *service.AuthController
	Guard      service.RouteGuard

	// Background is the auth client's long-running loop (token refresh for
	// GoTrue). Nil when the configured client has none.
	Background func(ctx context.Context) error
}

// BuildAuthController creates the auth client for the configured mode and
// wires it to the profile resolver and state controller.
func BuildAuthController(deps AuthDeps) (*AuthComponents, error) {
	client, background, err := buildAuthClient(deps)
	if err != nil {
		return nil, err
	}

	resolver := service.NewProfileResolver(data.NewProfileRepo(deps.DB), deps.Logger)

	controller := service.NewAuthController(service.AuthControllerOptions{
		Client:      client,
		Resolver:    resolver,
		InitTimeout: deps.Auth.InitTimeout,
		Logger:      deps.Logger,
	})

	return &AuthComponents{
		Controller: controller,
		Guard:      service.NewRouteGuard(deps.Auth.LoginPath, deps.Auth.HomePath),
		Background: background,
	}, nil
}

//nolint:ireturn // the concrete client type depends on the configured auth mode.
func buildAuthClient(deps AuthDeps) (ports.AuthClient, func(context.Context) error, error) {
	switch deps.Auth.Mode {
	case config.AuthModeGoTrue:
		return buildGoTrueClient(deps)

	case config.AuthModeOIDC:
		return buildOIDCClient(deps)

	case config.AuthModeDev:
		client, err := devauth.NewClient(devauth.Config{
			UserID:        deps.Auth.Dev.UserID,
			Email:         deps.Auth.Dev.Email,
			Password:      deps.Auth.Dev.Password,
			Role:          deps.Auth.Dev.Role,
			StartSignedIn: deps.Auth.Dev.StartSignedIn,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create dev auth client: %w", err)
		}
		if deps.Logger != nil {
			deps.Logger.Warn("dev auth mode enabled; do not use in production")
		}
		return client, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported auth mode: %q", deps.Auth.Mode)
	}
}

//nolint:ireturn // see buildAuthClient.
func buildGoTrueClient(deps AuthDeps) (ports.AuthClient, func(context.Context) error, error) {
	store := redisadapter.NewTokenStore(deps.RedisClient, tokenStoreName)

	client, err := gotrue.NewClient(gotrue.Config{
		BaseURL:       deps.Auth.GoTrue.BaseURL,
		APIKey:        deps.Auth.GoTrue.APIKey,
		JWTSecret:     deps.Auth.GoTrue.JWTSecret,
		RefreshLeeway: deps.Auth.GoTrue.RefreshLeeway,
		Logger:        deps.Logger,
	}, store)
	if err != nil {
		return nil, nil, fmt.Errorf("create gotrue client: %w", err)
	}

	return client, client.Run, nil
}

//nolint:ireturn // see buildAuthClient.
func buildOIDCClient(deps AuthDeps) (ports.AuthClient, func(context.Context) error, error) {
	cfg := deps.Auth.OIDC
	if cfg.DiscoveryURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, nil, fmt.Errorf("oidc auth mode requires discovery url, client id, and client secret")
	}

	store := redisadapter.NewTokenStore(deps.RedisClient, tokenStoreName)

	client, err := oidc.NewClient(oidc.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scope:        cfg.Scope,
		DiscoveryURL: cfg.DiscoveryURL,
		Roles: authroles.GroupMapper{
			AdminGroup:      cfg.AdminGroup,
			EditorGroup:     cfg.EditorGroup,
			ReviewerGroup:   cfg.ReviewerGroup,
			AdvertiserGroup: cfg.AdvertiserGroup,
			AnalystGroup:    cfg.AnalystGroup,
		},
		Logger: deps.Logger,
	}, store)
	if err != nil {
		return nil, nil, fmt.Errorf("create oidc client: %w", err)
	}

	return client, nil, nil
}
