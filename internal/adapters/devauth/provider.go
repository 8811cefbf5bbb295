package devauth

// Package devauth provides a simple, config-driven SessionMinter for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/ports"
)

// RejectToken is the ID credential the dev minter always refuses, so that
// authentication-failure paths can be exercised locally.
const RejectToken = "invalid"

var _ ports.SessionMinter = (*Provider)(nil)

// Config controls the dev minter behavior.
type Config struct {
	// Prefix is prepended to generated credentials (default "dev").
	Prefix string
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Provider implements ports.SessionMinter without any upstream.
// Any non-empty ID credential other than RejectToken yields a random opaque credential.
type Provider struct {
	prefix string
	now    func() time.Time
}

// NewProvider constructs a dev minter from Config.
func NewProvider(cfg Config) *Provider {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dev"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{prefix: prefix, now: now}
}

// MintSessionCredential returns a locally generated credential.
func (p *Provider) MintSessionCredential(
	_ context.Context,
	idToken string,
	validity time.Duration,
) (domainauth.SessionCredential, error) {
	if idToken == "" {
		return domainauth.SessionCredential{}, domainauth.ErrIDTokenRequired
	}
	if idToken == RejectToken {
		return domainauth.SessionCredential{}, fmt.Errorf("dev auth: %w", domainauth.ErrAuthenticationFailed)
	}
	if validity <= 0 {
		validity = domainauth.SessionTTL
	}
	suffix, err := randomString(32)
	if err != nil {
		return domainauth.SessionCredential{}, fmt.Errorf("generate credential: %w", err)
	}
	return domainauth.SessionCredential{
		Value:     p.prefix + "." + suffix,
		ExpiresAt: p.now().Add(validity),
	}, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:n], nil
}
