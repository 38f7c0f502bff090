package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
	"github.com/vasapolrittideah/secure-auth-api/shared/ratelimit"
	"github.com/vasapolrittideah/secure-auth-api/shared/security"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// AuthServiceConfig holds the configuration of the auth service.
type AuthServiceConfig struct {
	Env      string `env:"APP_ENV"   envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	AppURL   string `env:"APP_URL"   envDefault:"http://localhost:8080"`
	// WebRoot is an optional directory of static pages served behind the gatekeeper.
	WebRoot string `env:"WEB_ROOT"`

	Token     TokenConfig
	Store     StoreConfig
	Argon2    security.PasswordHasherConfig
	RateLimit ratelimit.Config

	RedisAddr string `env:"REDIS_ADDR"`
	// TrustedProxies lists the reverse proxies, as addresses or CIDR blocks,
	// whose forwarding headers identify the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	ConsulAddr  string `env:"CONSUL_ADDR"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	ServiceHost string `env:"SERVICE_HOST" envDefault:"localhost"`
}

// TokenConfig holds session and single-use token settings.
type TokenConfig struct {
	Secret                      string        `env:"JWT_SECRET,required"`
	Issuer                      string        `env:"JWT_ISSUER"               envDefault:"secure-auth-api"`
	Audience                    string        `env:"JWT_AUDIENCE"             envDefault:"secure-auth-web"`
	VerificationTokenExpiresIn  time.Duration `env:"VERIFICATION_TOKEN_TTL"   envDefault:"24h"`
	PasswordResetTokenExpiresIn time.Duration `env:"PASSWORD_RESET_TOKEN_TTL" envDefault:"1h"`
	CleanupInterval             time.Duration `env:"TOKEN_CLEANUP_INTERVAL"   envDefault:"1h"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver        string `env:"STORE_DRIVER"   envDefault:"postgres"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"secure_auth"`
}

// Load parses the configuration from environment variables and validates it.
func Load() (*AuthServiceConfig, error) {
	cfg, err := env.ParseAs[AuthServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewAuthServiceConfig loads the configuration and exits the process when it is invalid.
func NewAuthServiceConfig(logger *zerolog.Logger) *AuthServiceConfig {
	cfg, err := Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid auth service configuration")
	}

	return cfg
}

// IsProduction reports whether the service runs in production, where
// cookies are marked Secure.
func (c *AuthServiceConfig) IsProduction() bool {
	return c.Env == "production"
}

func (c *AuthServiceConfig) validate() error {
	if len(c.Token.Secret) < auth.MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Token.VerificationTokenExpiresIn <= 0 {
		return fmt.Errorf("VERIFICATION_TOKEN_TTL must be positive")
	}
	if c.Token.PasswordResetTokenExpiresIn <= 0 {
		return fmt.Errorf("PASSWORD_RESET_TOKEN_TTL must be positive")
	}
	if c.Token.CleanupInterval <= 0 {
		return fmt.Errorf("TOKEN_CLEANUP_INTERVAL must be positive")
	}

	if u, err := url.Parse(c.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL")
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("missing POSTGRES_DSN environment variable")
		}
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("missing MONGO_URI environment variable")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMongo)
	}

	if err := c.Argon2.Validate(); err != nil {
		return err
	}

	if c.RedisAddr != "" && (c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	return nil
}
