package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/session-bridge/config"
	redisadapter "github.com/target/session-bridge/internal/adapters/redis"
	"github.com/target/session-bridge/internal/data"
	"github.com/target/session-bridge/internal/observability/statsd"
	"github.com/target/session-bridge/internal/ports"
	"github.com/target/session-bridge/internal/service"
)

// ServiceDeps holds the infrastructure the session service is built from.
// DB and Redis are optional; features that need them are disabled when absent.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger

	// Minter and Verifier override the ones derived from Config (tests).
	Minter   ports.SessionMinter
	Verifier ports.IDTokenVerifier
}

// ServiceContainer holds the constructed services.
type ServiceContainer struct {
	Sessions *service.SessionService
	Metrics  *statsd.Client
	Audit    *data.AuditRepo             // nil when auditing is off
	Limiter  *redisadapter.RateLimiter   // nil when rate limiting is off
	Reaper   *service.AuditReaperService // nil without audit retention
}

// Background returns the tasks that run alongside the HTTP server.
func (c ServiceContainer) Background() []BackgroundTask {
	var tasks []BackgroundTask
	if c.Reaper != nil {
		tasks = append(tasks, BackgroundTask{Name: "audit-reaper", Run: c.Reaper.Run})
	}
	return tasks
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	if c.Metrics != nil {
		return c.Metrics.Close()
	}
	return nil
}

// NewServices wires minter, verifier, limiter, audit and metrics into a SessionService.
func NewServices(ctx context.Context, deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	minter := deps.Minter
	if minter == nil {
		m, err := BuildMinter(cfg.Auth, logger)
		if err != nil {
			return ServiceContainer{}, err
		}
		minter = m
	}

	verifier := deps.Verifier
	if verifier == nil {
		v, err := BuildVerifier(ctx, cfg.Auth)
		if err != nil {
			return ServiceContainer{}, err
		}
		verifier = v
	}

	var out ServiceContainer
	out.Metrics = buildMetrics(logger, cfg.Observability)

	opts := service.SessionServiceOptions{
		Minter:      minter,
		Verifier:    verifier,
		Metrics:     out.Metrics,
		Logger:      logger,
		CookieName:  cfg.Session.CookieName,
		MintTimeout: cfg.Session.MintTimeout,
	}

	limiter, err := buildLimiter(cfg.RateLimit, deps.Redis, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	if limiter != nil {
		out.Limiter = limiter
		opts.Limiter = limiter
	}

	if audit := buildAudit(cfg.Audit, deps.DB, logger); audit != nil {
		out.Audit = audit
		opts.Audit = audit
		if cfg.Audit.Retention > 0 {
			reaper, rerr := service.NewAuditReaperService(service.AuditReaperOptions{
				Repo:      audit,
				Retention: cfg.Audit.Retention,
				Interval:  cfg.Audit.ReapInterval,
				BatchSize: cfg.Audit.ReapBatchSize,
				Logger:    logger,
				Metrics:   out.Metrics,
			})
			if rerr != nil {
				return ServiceContainer{}, fmt.Errorf("audit reaper: %w", rerr)
			}
			out.Reaper = reaper
		}
	}

	sessions, err := service.NewSessionService(opts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("session service: %w", err)
	}
	out.Sessions = sessions
	return out, nil
}

func buildMetrics(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		// A disabled client drops every metric.
		client, _ = statsd.NewClient(statsd.Config{Logger: logger})
	}
	return client
}

func buildLimiter(
	cfg config.RateLimitConfig,
	client redis.UniversalClient,
	logger *slog.Logger,
) (*redisadapter.RateLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if client == nil {
		logger.Warn("rate limiting disabled: redis client not configured")
		return nil, nil
	}
	l, err := redisadapter.NewRateLimiter(client, redisadapter.RateLimiterConfig{
		Limit:  cfg.Requests,
		Window: cfg.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l, nil
}

func buildAudit(cfg config.AuditConfig, db *sql.DB, logger *slog.Logger) *data.AuditRepo {
	if !cfg.Enabled {
		return nil
	}
	if db == nil {
		logger.Warn("audit trail disabled: database not configured")
		return nil
	}
	return data.NewAuditRepo(db)
}
