package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/session-bridge/internal/observability/metrics"
	"github.com/target/session-bridge/internal/observability/statsd"
)

// AuditPruner deletes audit rows in batches.
type AuditPruner interface {
	DeleteOlderThanBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// AuditReaperOptions groups dependencies for AuditReaperService.
type AuditReaperOptions struct {
	Repo      AuditPruner   // Required
	Retention time.Duration // Required: rows older than this are deleted
	Interval  time.Duration // Optional, defaults to 1h
	BatchSize int           // Optional, defaults to 1000
	Logger    *slog.Logger  // Optional
	Metrics   statsd.Sink   // Optional
	Now       func() time.Time
}

// AuditReaperService enforces audit trail retention on a fixed interval.
type AuditReaperService struct {
	repo      AuditPruner
	retention time.Duration
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewAuditReaperService validates opts and returns the service.
func NewAuditReaperService(opts AuditReaperOptions) (*AuditReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("audit pruner is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	s := &AuditReaperService{
		repo:      opts.Repo,
		retention: opts.Retention,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 1000
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "audit_reaper")
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run prunes once after a short jitter, then every interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *AuditReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting audit reaper", "interval", s.interval, "retention", s.retention)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if _, err := s.Prune(ctx); err != nil && !isContextCancellation(err) {
		s.logger.WarnContext(ctx, "initial audit prune failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "audit reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil && !isContextCancellation(err) {
				s.logger.WarnContext(ctx, "audit prune failed", "error", err)
			}
		}
	}
}

// Prune deletes every row older than the retention window, batch by batch.
func (s *AuditReaperService) Prune(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.retention)

	var total int64
	var err error
	for {
		var n int64
		n, err = s.repo.DeleteOlderThanBatch(ctx, cutoff, s.batchSize)
		total += n
		if err != nil {
			err = fmt.Errorf("prune audit trail: %w", err)
			break
		}
		if n < int64(s.batchSize) {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}

	metrics.EmitAuditReap(s.metrics, metrics.AuditReapMetric{
		Deleted: total,
		Elapsed: time.Since(start),
		Err:     suppressContextCancellation(err),
	})
	if total > 0 {
		s.logger.InfoContext(ctx, "pruned audit trail", "count", total, "cutoff", cutoff)
	}
	return total, err
}

// waitWithJitter delays up to 10% of the interval so replicas do not prune in lockstep.
func (s *AuditReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
