// Package ports defines interfaces (hexagonal ports) for session-bridge behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
)

// SessionMinter exchanges a short-lived ID credential for a longer-lived session credential.
// Implementations return errors wrapping domainauth.ErrUpstreamUnavailable or
// domainauth.ErrAuthenticationFailed.
type SessionMinter interface {
	MintSessionCredential(ctx context.Context, idToken string, validity time.Duration) (domainauth.SessionCredential, error)
}

// IDTokenVerifier validates an ID credential and returns the principal it proves.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (domainauth.Principal, error)
}

// RateLimitDecision is the result of a single rate-limit check.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter meters session-create attempts per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitDecision, error)
}

// AuditSink records session-bridge outcomes.
type AuditSink interface {
	Record(ctx context.Context, ev domainauth.AuditEvent) error
}
