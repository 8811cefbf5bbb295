package config

import (
	"strings"
	"time"
)

// SessionConfig controls the session cookie and the create-session flow.
type SessionConfig struct {
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"__session"`
	// CookieDomain overrides the derived parent domain (e.g., ".example.com").
	CookieDomain string `env:"SESSION_COOKIE_DOMAIN"`
	// MintTimeout bounds the upstream mint call.
	MintTimeout time.Duration `env:"SESSION_MINT_TIMEOUT" envDefault:"10s"`
	// DistinguishUpstreamErrors reports provider outages as 503 instead of 401.
	DistinguishUpstreamErrors bool `env:"SESSION_DISTINGUISH_UPSTREAM_ERRORS" envDefault:"false"`
}

// Sanitize applies guardrails to session values.
func (s *SessionConfig) Sanitize() {
	s.CookieName = strings.TrimSpace(s.CookieName)
	if s.CookieName == "" {
		s.CookieName = "__session"
	}
	s.CookieDomain = strings.TrimSpace(s.CookieDomain)
	clampPositive(&s.MintTimeout, 10*time.Second)
}

// RateLimitConfig controls per-client-IP limiting of create-session.
type RateLimitConfig struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED"  envDefault:"false"`
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"1m"`
}

// Sanitize applies guardrails to rate limit values.
func (r *RateLimitConfig) Sanitize() {
	if r.Requests < 1 {
		r.Requests = 10
	}
	if r.Window < time.Second {
		r.Window = time.Minute
	}
}

// AuditConfig controls the Postgres audit trail.
type AuditConfig struct {
	Enabled bool `env:"AUDIT_ENABLED" envDefault:"false"`
	// Retention removes rows older than this; zero keeps everything.
	Retention     time.Duration `env:"AUDIT_RETENTION"       envDefault:"0s"`
	ReapInterval  time.Duration `env:"AUDIT_REAP_INTERVAL"   envDefault:"1h"`
	ReapBatchSize int           `env:"AUDIT_REAP_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to audit values.
func (a *AuditConfig) Sanitize() {
	if a.Retention < 0 {
		a.Retention = 0
	}
	if a.ReapInterval < time.Minute {
		a.ReapInterval = time.Hour
	}
	if a.ReapBatchSize < 1 {
		a.ReapBatchSize = 1000
	}
}
