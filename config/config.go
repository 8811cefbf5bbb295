package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/target/session-bridge/internal/sessioncookie"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Minter selection and identity provider settings
//   - database.go: Postgres (audit) and Redis (rate limiting)
//   - http.go: HTTP server and CORS origin
//   - session.go: Cookie, rate limit and audit settings
type AppConfig struct {
	// IsDev relaxes validation for local runs.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Auth      AuthConfig
	HTTP      HTTPConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Auth.sanitize()
	c.HTTP.Sanitize()
	c.Session.Sanitize()
	c.RateLimit.Sanitize()
	c.Audit.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// Validate fails fast on configuration the server cannot run with.
// It resolves Session.CookieDomain from the allowed origin when unset.
func (c *AppConfig) Validate() error {
	origin, err := parseOrigin(c.HTTP.AllowedOrigin)
	if err != nil {
		return err
	}
	c.HTTP.AllowedOrigin = origin.Scheme + "://" + origin.Host

	if c.Session.CookieDomain == "" {
		domain, derr := sessioncookie.ParentDomain(origin.Host)
		if derr != nil {
			return fmt.Errorf("resolve cookie domain (set SESSION_COOKIE_DOMAIN): %w", derr)
		}
		c.Session.CookieDomain = domain
	} else {
		c.Session.CookieDomain = sessioncookie.NormalizeDomain(c.Session.CookieDomain)
	}

	return c.Auth.validate()
}

func parseOrigin(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil, errors.New("HTTP_ALLOWED_ORIGIN is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_ALLOWED_ORIGIN: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" || (u.Path != "" && u.Path != "/") {
		return nil, fmt.Errorf("invalid HTTP_ALLOWED_ORIGIN %q: want scheme://host[:port]", raw)
	}
	return u, nil
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
