package auth

// Package auth contains simple hand-written test doubles for session-bridge ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SessionMinter   = (*MockMinter)(nil)
	_ ports.IDTokenVerifier = (*StaticVerifier)(nil)
	_ ports.RateLimiter     = (*MemoryRateLimiter)(nil)
	_ ports.AuditSink       = (*MemoryAuditSink)(nil)
)

// MockMinter simulates the identity provider with deterministic credentials.
type MockMinter struct {
	MintFunc func(ctx context.Context, idToken string, validity time.Duration) (domainauth.SessionCredential, error)

	// Prefix for generated credential values (default "session").
	Prefix string

	mu        sync.Mutex
	callCount int
	tokens    []string
}

// NewMockMinter creates a MockMinter with sensible defaults.
func NewMockMinter() *MockMinter {
	return &MockMinter{Prefix: "session"}
}

func (m *MockMinter) MintSessionCredential(
	ctx context.Context,
	idToken string,
	validity time.Duration,
) (domainauth.SessionCredential, error) {
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.tokens = append(m.tokens, idToken)
	m.mu.Unlock()

	if m.MintFunc != nil {
		return m.MintFunc(ctx, idToken, validity)
	}

	prefix := m.Prefix
	if prefix == "" {
		prefix = "session"
	}
	return domainauth.SessionCredential{
		Value:     fmt.Sprintf("%s-%d", prefix, n),
		ExpiresAt: time.Now().Add(validity),
	}, nil
}

// Calls returns how many times MintSessionCredential was invoked.
func (m *MockMinter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Tokens returns the ID credentials seen so far.
func (m *MockMinter) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tokens...)
}

// StaticVerifier accepts a fixed set of tokens.
type StaticVerifier struct {
	Principals map[string]domainauth.Principal
}

func (v *StaticVerifier) Verify(_ context.Context, idToken string) (domainauth.Principal, error) {
	p, ok := v.Principals[idToken]
	if !ok {
		return domainauth.Principal{}, fmt.Errorf("unknown token: %w", domainauth.ErrAuthenticationFailed)
	}
	return p, nil
}

// MemoryRateLimiter allows Limit calls per key and then denies.
type MemoryRateLimiter struct {
	Limit      int
	RetryAfter time.Duration
	Err        error

	mu     sync.Mutex
	counts map[string]int
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (ports.RateLimitDecision, error) {
	if l.Err != nil {
		return ports.RateLimitDecision{}, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	used := l.counts[key]
	if used > l.Limit {
		return ports.RateLimitDecision{Allowed: false, RetryAfter: l.RetryAfter}, nil
	}
	return ports.RateLimitDecision{Allowed: true, Remaining: l.Limit - used}, nil
}

// MemoryAuditSink collects audit events in memory.
type MemoryAuditSink struct {
	Err error

	mu     sync.Mutex
	events []domainauth.AuditEvent
}

func (s *MemoryAuditSink) Record(_ context.Context, ev domainauth.AuditEvent) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemoryAuditSink) Events() []domainauth.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domainauth.AuditEvent(nil), s.events...)
}
