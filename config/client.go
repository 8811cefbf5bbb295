package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ClientConfig configures cmd/session-client.
type ClientConfig struct {
	// BaseURL is the session bridge origin (e.g., "https://auth.example.com").
	BaseURL string `env:"SESSION_CLIENT_BASE_URL" envDefault:"http://localhost:8080"`
	// Origin is sent as the Origin header on every call.
	Origin string `env:"SESSION_CLIENT_ORIGIN"`

	IDTokenFile string        `env:"SESSION_CLIENT_ID_TOKEN_FILE"`
	UID         string        `env:"SESSION_CLIENT_UID"`
	Timeout     time.Duration `env:"SESSION_CLIENT_TIMEOUT"          envDefault:"10s"`
	Renewal     time.Duration `env:"SESSION_CLIENT_RENEWAL_INTERVAL" envDefault:"19h"`
}

// Sanitize applies guardrails to client values.
func (c *ClientConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Origin = strings.TrimSpace(c.Origin)
	c.IDTokenFile = strings.TrimSpace(c.IDTokenFile)
	clampPositive(&c.Timeout, 10*time.Second)
	clampPositive(&c.Renewal, 19*time.Hour)
}

// Validate checks that BaseURL is an absolute http(s) URL.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("SESSION_CLIENT_BASE_URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid SESSION_CLIENT_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid SESSION_CLIENT_BASE_URL %q: want an absolute http(s) URL", c.BaseURL)
	}
	return nil
}
