package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/session-bridge/internal/observability/statsd"
)

// fakePruner returns queued batch counts, then zero.
type fakePruner struct {
	mu      sync.Mutex
	batches []int64
	err     error
	calls   int
	cutoffs []time.Time
}

func (f *fakePruner) DeleteOlderThanBatch(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakePruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewAuditReaperService_Validation(t *testing.T) {
	_, err := NewAuditReaperService(AuditReaperOptions{Retention: time.Hour})
	require.Error(t, err)

	_, err = NewAuditReaperService(AuditReaperOptions{Repo: &fakePruner{}})
	require.Error(t, err)
}

func TestAuditReaperService_PruneLoopsUntilShortBatch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakePruner{batches: []int64{10, 10, 3}}
	var rec statsd.Recorder

	svc, err := NewAuditReaperService(AuditReaperOptions{
		Repo:      repo,
		Retention: 24 * time.Hour,
		BatchSize: 10,
		Metrics:   &rec,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	n, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(23), n)
	assert.Equal(t, 3, repo.calls)
	assert.True(t, repo.cutoffs[0].Equal(now.Add(-24*time.Hour)))

	deleted := rec.Named("audit.reaper.deleted")
	require.Len(t, deleted, 1)
	assert.InDelta(t, 23, deleted[0].Value, 0)
	assert.Equal(t, "success", deleted[0].Tags["result"])
}

func TestAuditReaperService_PruneError(t *testing.T) {
	repo := &fakePruner{err: errors.New("connection reset")}
	var rec statsd.Recorder

	svc, err := NewAuditReaperService(AuditReaperOptions{Repo: repo, Retention: time.Hour, Metrics: &rec})
	require.NoError(t, err)

	_, err = svc.Prune(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune audit trail")

	deleted := rec.Named("audit.reaper.deleted")
	require.Len(t, deleted, 1)
	assert.Equal(t, "error", deleted[0].Tags["result"])
}

func TestAuditReaperService_RunStopsOnCancel(t *testing.T) {
	repo := &fakePruner{}
	svc, err := NewAuditReaperService(AuditReaperOptions{
		Repo:      repo,
		Retention: time.Hour,
		Interval:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool { return repo.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
