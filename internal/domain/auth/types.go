package auth

// Package auth contains domain-level types for the session bridge.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"time"
)

const (
	// SessionCookieName is the fixed name of the session cookie.
	SessionCookieName = "__session"

	// SessionTTL is the validity window requested for every session credential.
	SessionTTL = 24 * time.Hour

	// RenewalInterval is how often an authenticated client re-mints its session.
	// Must stay below SessionTTL.
	RenewalInterval = 19 * time.Hour

	// UpstreamTimeout bounds every call to the identity provider.
	UpstreamTimeout = 10 * time.Second
)

var (
	// ErrUpstreamUnavailable signals a transport failure or timeout talking to the identity provider.
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")

	// ErrAuthenticationFailed signals that the identity provider rejected the ID credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRateLimited signals that the caller exceeded the session-create budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrIDTokenRequired signals a missing or empty ID credential.
	ErrIDTokenRequired = errors.New("ID Token is required")
)

// Principal is the authenticated identity as represented by the identity provider.
// Only the stable identifier is modeled; everything else belongs to the provider.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// SessionCredential is the opaque, provider-minted token embedded in the session cookie.
type SessionCredential struct {
	Value     string
	ExpiresAt time.Time
}

// Operation names a session-bridge operation for logs, metrics and audit rows.
type Operation string

const (
	OpCreate  Operation = "create"
	OpDestroy Operation = "destroy"
	OpCheck   Operation = "check"
)

// Outcome describes how an operation ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeInvalid     Outcome = "invalid"
)

// OutcomeFor maps an operation error to an Outcome.
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrIDTokenRequired):
		return OutcomeInvalid
	case errors.Is(err, ErrUpstreamUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeRejected
	}
}

// AuditEvent is a single recorded session-bridge outcome.
type AuditEvent struct {
	ID        string
	Operation Operation
	Outcome   Outcome
	Subject   string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
}
