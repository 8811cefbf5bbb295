package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// AllowedOrigin is the single origin permitted by CORS (e.g., "https://www.example.com").
	AllowedOrigin string `env:"HTTP_ALLOWED_ORIGIN"`

	// TrustProxyHeaders reads the client IP from X-Forwarded-For when set.
	TrustProxyHeaders bool `env:"HTTP_TRUST_PROXY_HEADERS" envDefault:"false"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT"       envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	clampPositive(&h.ReadHeaderTimeout, 5*time.Second)
	clampPositive(&h.ReadTimeout, 15*time.Second)
	clampPositive(&h.WriteTimeout, 30*time.Second)
	clampPositive(&h.IdleTimeout, 60*time.Second)
	clampPositive(&h.ShutdownTimeout, 10*time.Second)
}

func clampPositive(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
