package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	JWT     JWTConfig
	Cookie  CookieConfig
	Lockout LockoutConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	OAuth   OAuthConfig

	AuditBuffer int `env:"AUDIT_BUFFER, default=256"`
}

type JWTConfig struct {
	Secret        string        `env:"JWT_SECRET"`
	Issuer        string        `env:"JWT_ISSUER,         default=account-service"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL,     default=15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL,    default=24h"`
	PersistentTTL time.Duration `env:"JWT_PERSISTENT_TTL, default=720h"`
}

type CookieConfig struct {
	Enabled bool   `env:"COOKIE_ENABLED, default=true"`
	Domain  string `env:"COOKIE_DOMAIN"`
	Secure  bool   `env:"COOKIE_SECURE,  default=true"`
}

type LockoutConfig struct {
	MaxFailures int           `env:"LOCKOUT_MAX_FAILURES, default=5"`
	Duration    time.Duration `env:"LOCKOUT_DURATION,     default=15m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=account_service"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// OAuthConfig carries per-provider credentials. A provider with an empty
// client ID is not registered.
type OAuthConfig struct {
	Google OAuthProviderConfig `env:", prefix=OAUTH_GOOGLE_"`
	GitHub OAuthProviderConfig `env:", prefix=OAUTH_GITHUB_"`

	// AllowedRedirectHosts is the closed set of hosts a client redirect URI
	// may point at.
	AllowedRedirectHosts []string `env:"OAUTH_ALLOWED_REDIRECT_HOSTS, default=localhost"`
}

type OAuthProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
