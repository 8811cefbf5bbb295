package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/mocks"
	mockauth "github.com/target/session-bridge/internal/mocks/auth"
	"github.com/target/session-bridge/internal/observability/statsd"
	"github.com/target/session-bridge/internal/ports"
	"go.uber.org/mock/gomock"
)

var testMeta = RequestMeta{ClientIP: "203.0.113.5", UserAgent: "test-agent"}

func newTestService(t *testing.T, opts SessionServiceOptions) *SessionService {
	t.Helper()
	if opts.Minter == nil {
		opts.Minter = mockauth.NewMockMinter()
	}
	svc, err := NewSessionService(opts)
	require.NoError(t, err)
	return svc
}

func TestNewSessionService_RequiresMinter(t *testing.T) {
	_, err := NewSessionService(SessionServiceOptions{})
	require.Error(t, err)
}

func TestSessionService_Create_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	minter := mocks.NewMockSessionMinter(ctrl)
	minter.EXPECT().
		MintSessionCredential(gomock.Any(), "id-token", domainauth.SessionTTL).
		Return(domainauth.SessionCredential{Value: "minted"}, nil)

	audit := &mockauth.MemoryAuditSink{}
	rec := &statsd.Recorder{}
	svc := newTestService(t, SessionServiceOptions{Minter: minter, Audit: audit, Metrics: rec})

	res, err := svc.Create(context.Background(), CreateInput{IDToken: "id-token", RequestMeta: testMeta})
	require.NoError(t, err)
	assert.Equal(t, "minted", res.Credential.Value)
	assert.Equal(t, 86400, res.MaxAgeSeconds)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.OpCreate, events[0].Operation)
	assert.Equal(t, domainauth.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, testMeta.ClientIP, events[0].ClientIP)

	creates := rec.Named("session.create")
	require.Len(t, creates, 1)
	assert.Equal(t, "success", creates[0].Tags["result"])
}

func TestSessionService_Create_MissingToken(t *testing.T) {
	minter := mockauth.NewMockMinter()
	svc := newTestService(t, SessionServiceOptions{Minter: minter})

	_, err := svc.Create(context.Background(), CreateInput{RequestMeta: testMeta})
	require.ErrorIs(t, err, domainauth.ErrIDTokenRequired)
	assert.Zero(t, minter.Calls(), "provider must not be called without an ID credential")
}

func TestSessionService_Create_MinterErrors(t *testing.T) {
	tests := []struct {
		name    string
		mintErr error
		wantErr error
		outcome domainauth.Outcome
	}{
		{"rejected", fmt.Errorf("provider: %w", domainauth.ErrAuthenticationFailed), domainauth.ErrAuthenticationFailed, domainauth.OutcomeRejected},
		{"unavailable", fmt.Errorf("dial: %w", domainauth.ErrUpstreamUnavailable), domainauth.ErrUpstreamUnavailable, domainauth.OutcomeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			minter := mocks.NewMockSessionMinter(ctrl)
			minter.EXPECT().MintSessionCredential(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(domainauth.SessionCredential{}, tt.mintErr)

			audit := &mockauth.MemoryAuditSink{}
			svc := newTestService(t, SessionServiceOptions{Minter: minter, Audit: audit})

			res, err := svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
			assert.Nil(t, res)
			require.ErrorIs(t, err, tt.wantErr)
			require.Len(t, audit.Events(), 1)
			assert.Equal(t, tt.outcome, audit.Events()[0].Outcome)
		})
	}
}

func TestSessionService_Create_MintTimeoutIsUnavailable(t *testing.T) {
	minter := mockauth.NewMockMinter()
	minter.MintFunc = func(ctx context.Context, _ string, _ time.Duration) (domainauth.SessionCredential, error) {
		<-ctx.Done()
		return domainauth.SessionCredential{}, ctx.Err()
	}
	svc := newTestService(t, SessionServiceOptions{Minter: minter, MintTimeout: 20 * time.Millisecond})

	_, err := svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
	require.ErrorIs(t, err, domainauth.ErrUpstreamUnavailable)
}

func TestSessionService_Create_Verifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockIDTokenVerifier(ctrl)
	minter := mockauth.NewMockMinter()
	audit := &mockauth.MemoryAuditSink{}
	svc := newTestService(t, SessionServiceOptions{Minter: minter, Verifier: verifier, Audit: audit})

	verifier.EXPECT().Verify(gomock.Any(), "good").Return(domainauth.Principal{UID: "uid-9"}, nil)
	res, err := svc.Create(context.Background(), CreateInput{IDToken: "good", RequestMeta: testMeta})
	require.NoError(t, err)
	assert.Equal(t, "uid-9", res.Principal.UID)

	verifier.EXPECT().Verify(gomock.Any(), "bad").
		Return(domainauth.Principal{}, fmt.Errorf("sig: %w", domainauth.ErrAuthenticationFailed))
	_, err = svc.Create(context.Background(), CreateInput{IDToken: "bad", RequestMeta: testMeta})
	require.ErrorIs(t, err, domainauth.ErrAuthenticationFailed)

	assert.Equal(t, 1, minter.Calls(), "rejected credentials must not reach the provider")
	events := audit.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "uid-9", events[0].Subject)
}

func TestSessionService_Create_RateLimited(t *testing.T) {
	limiter := &mockauth.MemoryRateLimiter{Limit: 1, RetryAfter: 30 * time.Second}
	minter := mockauth.NewMockMinter()
	svc := newTestService(t, SessionServiceOptions{Minter: minter, Limiter: limiter})

	_, err := svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
	require.ErrorIs(t, err, domainauth.ErrRateLimited)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "30", rl.RetryAfterSeconds())
	assert.Equal(t, 1, minter.Calls())

	// A different client is unaffected.
	_, err = svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: RequestMeta{ClientIP: "198.51.100.1"}})
	require.NoError(t, err)
}

func TestSessionService_Create_LimiterFailureFailsOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockRateLimiter(ctrl)
	limiter.EXPECT().Allow(gomock.Any(), testMeta.ClientIP).Return(ports.RateLimitDecision{}, errors.New("redis down"))

	svc := newTestService(t, SessionServiceOptions{Limiter: limiter})
	_, err := svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
	require.NoError(t, err)
}

func TestSessionService_AuditFailureDoesNotFailRequest(t *testing.T) {
	audit := &mockauth.MemoryAuditSink{Err: errors.New("db down")}
	svc := newTestService(t, SessionServiceOptions{Audit: audit})

	_, err := svc.Create(context.Background(), CreateInput{IDToken: "tok", RequestMeta: testMeta})
	require.NoError(t, err)
}

func TestSessionService_Destroy(t *testing.T) {
	audit := &mockauth.MemoryAuditSink{}
	rec := &statsd.Recorder{}
	svc := newTestService(t, SessionServiceOptions{Audit: audit, Metrics: rec})

	svc.Destroy(context.Background(), testMeta)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.OpDestroy, events[0].Operation)
	assert.Equal(t, domainauth.OutcomeSuccess, events[0].Outcome)
	assert.Len(t, rec.Named("session.destroy"), 1)
}

func TestSessionService_Check(t *testing.T) {
	rec := &statsd.Recorder{}
	svc := newTestService(t, SessionServiceOptions{Metrics: rec})
	ctx := context.Background()

	assert.True(t, svc.Check(ctx, "__session=abc; theme=dark"))
	assert.True(t, svc.Check(ctx, "theme=dark; __session=abc"))
	assert.False(t, svc.Check(ctx, "theme=dark"))
	assert.False(t, svc.Check(ctx, ""))

	checks := rec.Named("session.check")
	require.Len(t, checks, 4)
	assert.Equal(t, "true", checks[0].Tags["has_session"])
	assert.Equal(t, "false", checks[3].Tags["has_session"])
}

func TestRateLimitedError_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", (&RateLimitedError{}).RetryAfterSeconds())
	assert.Equal(t, "2", (&RateLimitedError{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.True(t, errors.Is(&RateLimitedError{}, domainauth.ErrRateLimited))
}
