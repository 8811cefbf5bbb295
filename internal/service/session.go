package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/observability/metrics"
	"github.com/target/session-bridge/internal/observability/statsd"
	"github.com/target/session-bridge/internal/ports"
	"github.com/target/session-bridge/internal/sessioncookie"
)

// auditTimeout bounds a single audit write; it runs detached from the request context.
const auditTimeout = 2 * time.Second

// SessionServiceOptions groups dependencies for SessionService.
// Only Minter is required.
type SessionServiceOptions struct {
	Minter   ports.SessionMinter
	Verifier ports.IDTokenVerifier
	Limiter  ports.RateLimiter
	Audit    ports.AuditSink
	Metrics  statsd.Sink
	Logger   *slog.Logger

	// CookieName defaults to domainauth.SessionCookieName.
	CookieName string
	// MintTimeout defaults to domainauth.UpstreamTimeout.
	MintTimeout time.Duration
	Now         func() time.Time
}

// SessionService orchestrates session minting, destruction and presence checks.
type SessionService struct {
	minter      ports.SessionMinter
	verifier    ports.IDTokenVerifier
	limiter     ports.RateLimiter
	audit       ports.AuditSink
	metrics     statsd.Sink
	logger      *slog.Logger
	cookieName  string
	mintTimeout time.Duration
	now         func() time.Time
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Minter == nil {
		return nil, errors.New("session minter is required")
	}
	s := &SessionService{
		minter:      opts.Minter,
		verifier:    opts.Verifier,
		limiter:     opts.Limiter,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		cookieName:  opts.CookieName,
		mintTimeout: opts.MintTimeout,
		now:         opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cookieName == "" {
		s.cookieName = domainauth.SessionCookieName
	}
	if s.mintTimeout <= 0 {
		s.mintTimeout = domainauth.UpstreamTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// RateLimitedError is returned by Create when the caller exceeded its budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "rate limited; retry after " + e.RetryAfter.String()
}

// Unwrap lets errors.Is match domainauth.ErrRateLimited.
func (e *RateLimitedError) Unwrap() error { return domainauth.ErrRateLimited }

// RetryAfterSeconds renders RetryAfter for a Retry-After header, never below 1.
func (e *RateLimitedError) RetryAfterSeconds() string {
	secs := int(e.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// RequestMeta describes the caller for audit and rate limiting.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
}

// CreateInput groups parameters for Create.
type CreateInput struct {
	IDToken string
	RequestMeta
}

// CreateResult contains the minted credential and the cookie Max-Age to use.
type CreateResult struct {
	Credential    domainauth.SessionCredential
	Principal     domainauth.Principal
	MaxAgeSeconds int
}

// Create exchanges an ID credential for a session credential.
// Errors wrap one of the domainauth sentinels; nothing sensitive is included in them.
func (s *SessionService) Create(ctx context.Context, in CreateInput) (result *CreateResult, err error) {
	var principal domainauth.Principal
	defer func() {
		s.finish(ctx, domainauth.OpCreate, principal.UID, in.RequestMeta, err)
	}()

	if in.IDToken == "" {
		return nil, domainauth.ErrIDTokenRequired
	}

	if limitErr := s.checkRateLimit(ctx, in.ClientIP); limitErr != nil {
		return nil, limitErr
	}

	if s.verifier != nil {
		p, verifyErr := s.verifier.Verify(ctx, in.IDToken)
		if verifyErr != nil {
			return nil, fmt.Errorf("verify id token: %w", verifyErr)
		}
		principal = p
	}

	mintCtx, cancel := context.WithTimeout(ctx, s.mintTimeout)
	defer cancel()

	start := s.now()
	cred, err := s.minter.MintSessionCredential(mintCtx, in.IDToken, domainauth.SessionTTL)
	metrics.EmitMintDuration(s.metrics, s.now().Sub(start), err)
	if err != nil {
		if errors.Is(mintCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domainauth.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", domainauth.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("mint session credential: %w", err)
	}

	return &CreateResult{
		Credential:    cred,
		Principal:     principal,
		MaxAgeSeconds: int(domainauth.SessionTTL / time.Second),
	}, nil
}

// Destroy records a logout. Clearing the cookie is the caller's job and never fails.
func (s *SessionService) Destroy(ctx context.Context, meta RequestMeta) {
	s.finish(ctx, domainauth.OpDestroy, "", meta, nil)
}

// Check reports whether cookieHeader carries the session cookie.
// This is a presence check only; the credential is not validated.
func (s *SessionService) Check(ctx context.Context, cookieHeader string) bool {
	has := sessioncookie.HasSessionCookie(cookieHeader, s.cookieName)
	metrics.EmitSessionOperation(s.metrics, metrics.SessionMetric{Operation: domainauth.OpCheck, HasSession: has})
	s.logger.DebugContext(ctx, "session check", "has_session", has)
	return has
}

// CookieName returns the name of the session cookie this service manages.
func (s *SessionService) CookieName() string { return s.cookieName }

func (s *SessionService) checkRateLimit(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Limiter failures fail open.
		s.logger.WarnContext(ctx, "rate limiter unavailable; allowing request", slog.Any("error", err))
		return nil
	}
	if !decision.Allowed {
		return &RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (s *SessionService) finish(ctx context.Context, op domainauth.Operation, subject string, meta RequestMeta, err error) {
	outcome := domainauth.OutcomeFor(err)
	attrs := []any{"op", string(op), "outcome", string(outcome), "client_ip", meta.ClientIP}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	switch outcome {
	case domainauth.OutcomeSuccess:
		s.logger.InfoContext(ctx, "session operation completed", attrs...)
	case domainauth.OutcomeUnavailable:
		s.logger.ErrorContext(ctx, "session operation failed", append(attrs, slog.Any("error", err))...)
	default:
		s.logger.WarnContext(ctx, "session operation rejected", append(attrs, slog.Any("error", err))...)
	}

	metrics.EmitSessionOperation(s.metrics, metrics.SessionMetric{Operation: op, Err: err})
	s.record(ctx, domainauth.AuditEvent{
		Operation: op,
		Outcome:   outcome,
		Subject:   subject,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now(),
	})
}

func (s *SessionService) record(ctx context.Context, ev domainauth.AuditEvent) {
	if s.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Record(auditCtx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "op", string(ev.Operation), slog.Any("error", err))
	}
}
