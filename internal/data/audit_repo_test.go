package data

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
	apperrors "github.com/target/session-bridge/internal/errors"
	"github.com/target/session-bridge/internal/testutil"
)

func TestAuditRepo_RecordAndRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewAuditRepo(db)
	repo.Now = testutil.FixedTimeFunc(base)

	require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{
		Operation: domainauth.OpCreate,
		Outcome:   domainauth.OutcomeSuccess,
		Subject:   "uid-1",
		ClientIP:  "203.0.113.9",
		UserAgent: strings.Repeat("a", 600),
	}))
	require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{
		Operation: domainauth.OpDestroy,
		Outcome:   domainauth.OutcomeSuccess,
		ClientIP:  "203.0.113.9",
		CreatedAt: base.Add(time.Minute),
	}))

	events, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domainauth.OpDestroy, events[0].Operation)
	assert.Equal(t, domainauth.OpCreate, events[1].Operation)
	assert.Equal(t, "uid-1", events[1].Subject)
	assert.Len(t, events[1].UserAgent, maxUserAgentLen)
	assert.NotEmpty(t, events[1].ID)
	assert.True(t, events[1].CreatedAt.Equal(base))
}

func TestAuditRepo_DeleteOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepo(db)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{Operation: domainauth.OpCreate, Outcome: domainauth.OutcomeRejected, CreatedAt: old}))
	require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{Operation: domainauth.OpCreate, Outcome: domainauth.OutcomeSuccess}))

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domainauth.OutcomeSuccess, events[0].Outcome)
}

func TestAuditRepo_DeleteOlderThanBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepo(db)

	old := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{
			Operation: domainauth.OpDestroy,
			Outcome:   domainauth.OutcomeSuccess,
			CreatedAt: old.Add(time.Duration(i) * time.Minute),
		}))
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	n, err := repo.DeleteOlderThanBatch(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteOlderThanBatch(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteOlderThanBatch(ctx, cutoff, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditRepo_DuplicateIDIsConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepo(db)

	ev := domainauth.AuditEvent{ID: "7d2c4c57-3f0e-4a53-8f61-8f3f0c1d2e3a", Operation: domainauth.OpCreate, Outcome: domainauth.OutcomeSuccess}
	require.NoError(t, repo.Record(ctx, ev))

	err := repo.Record(ctx, ev)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestAuditRepo_RecordValidation(t *testing.T) {
	repo := &AuditRepo{}
	require.Error(t, repo.Record(context.Background(), domainauth.AuditEvent{Operation: domainauth.OpCreate, Outcome: domainauth.OutcomeSuccess}))

	var nilRepo *AuditRepo
	require.Error(t, nilRepo.Record(context.Background(), domainauth.AuditEvent{}))
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "curl/8.0", n: 16, want: "curl/8.0"},
		{name: "ascii cut", in: "abcdef", n: 3, want: "abc"},
		{name: "cut inside two-byte rune", in: "aé", n: 2, want: "a"},
		{name: "cut inside four-byte rune", in: "ab😀", n: 4, want: "ab"},
		{name: "cut on rune boundary", in: "éé", n: 2, want: "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestAuditRepo_RecordMultiByteUserAgent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepo(db)

	ua := "a" + strings.Repeat("é", maxUserAgentLen)
	require.NoError(t, repo.Record(ctx, domainauth.AuditEvent{
		Operation: domainauth.OpCreate,
		Outcome:   domainauth.OutcomeSuccess,
		UserAgent: ua,
	}))

	events, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, utf8.ValidString(events[0].UserAgent))
	assert.Len(t, events[0].UserAgent, maxUserAgentLen-1)
}
