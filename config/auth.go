package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication backend for the application.
type AuthMode string

const (
	// AuthModeGoTrue uses a Supabase-style GoTrue REST auth backend.
	AuthModeGoTrue AuthMode = "gotrue"
	// AuthModeOIDC uses enterprise SSO via OIDC discovery and code exchange.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev uses an in-memory auth client (for development only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "gotrue", "oidc", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: gotrue, oidc, dev)", v)
	}
}

// GoTrueConfig contains the Supabase/GoTrue backend configuration.
// Used when AUTH_MODE=gotrue.
type GoTrueConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:9999"`
	APIKey  string `env:"API_KEY"  envDefault:""`
	// JWTSecret enables local verification of access-token signatures.
	// Empty means claims are read without signature verification.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`
	// RefreshLeeway is how long before expiry the refresh loop renews the
	// access token.
	RefreshLeeway time.Duration `env:"REFRESH_LEEWAY" envDefault:"1m"`
}

// OIDCConfig contains enterprise SSO configuration.
// Used when AUTH_MODE=oidc.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"clika-admin"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:""`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// Group-to-role mapping for identities whose claims carry no explicit
	// role. Empty groups never match.
	AdminGroup      string `env:"ADMIN_GROUP"      envDefault:""`
	EditorGroup     string `env:"EDITOR_GROUP"     envDefault:""`
	ReviewerGroup   string `env:"REVIEWER_GROUP"   envDefault:""`
	AdvertiserGroup string `env:"ADVERTISER_GROUP" envDefault:""`
	AnalystGroup    string `env:"ANALYST_GROUP"    envDefault:""`
}

// DevAuthConfig controls the in-memory auth client identity.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	UserID        string `env:"USER_ID"         envDefault:"dev-user"`
	Email         string `env:"EMAIL"           envDefault:"dev@clika.gg"`
	Password      string `env:"PASSWORD"        envDefault:"dev"`
	Role          string `env:"ROLE"            envDefault:"admin"`
	StartSignedIn bool   `env:"START_SIGNED_IN" envDefault:"false"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which auth backend adapter to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"gotrue"`

	// InitTimeout bounds session restore at startup. When it elapses the
	// controller initializes logged-out rather than blocking.
	InitTimeout time.Duration `env:"AUTH_INIT_TIMEOUT" envDefault:"10s"`

	// LoginPath and HomePath are the route guard's redirect targets for
	// "not logged in" and "insufficient privilege" respectively.
	LoginPath string `env:"AUTH_LOGIN_PATH" envDefault:"/login"`
	HomePath  string `env:"AUTH_HOME_PATH"  envDefault:"/dashboard"`

	GoTrue GoTrueConfig  `envPrefix:"GOTRUE_"`
	OIDC   OIDCConfig    `envPrefix:"OIDC_"`
	Dev    DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to authentication configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModeGoTrue
	}
	if a.InitTimeout <= 0 {
		a.InitTimeout = 10 * time.Second
	}
	if !strings.HasPrefix(a.LoginPath, "/") {
		a.LoginPath = "/login"
	}
	if !strings.HasPrefix(a.HomePath, "/") {
		a.HomePath = "/dashboard"
	}
}
