package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/session-bridge/config"
	httpx "github.com/target/session-bridge/internal/http"
	"github.com/target/session-bridge/internal/service"
	"github.com/target/session-bridge/internal/sessioncookie"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// NewHTTPServer builds the HTTP server serving the session endpoints.
func NewHTTPServer(cfg *config.AppConfig, sessions *service.SessionService, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}

	handlers := &httpx.SessionHandlers{
		Svc:                       sessions,
		Cookie:                    sessioncookie.New(sessions.CookieName(), cfg.Session.CookieDomain),
		CORS:                      httpx.CORSConfig{AllowedOrigin: cfg.HTTP.AllowedOrigin},
		DistinguishUpstreamErrors: cfg.Session.DistinguishUpstreamErrors,
		TrustProxyHeaders:         cfg.HTTP.TrustProxyHeaders,
		Logger:                    logger,
	}

	addr := cfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(httpx.RouterOptions{Sessions: handlers, Logger: logger}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// BackgroundTask runs alongside the HTTP server until its context is done.
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// ServeConfig controls RunHTTPServer.
type ServeConfig struct {
	Server     *http.Server
	Listener   net.Listener  // Optional, defaults to listening on Server.Addr
	Timeout    time.Duration // Optional graceful shutdown bound, defaults to 10s
	Background []BackgroundTask
	Logger     *slog.Logger
}

// RunHTTPServer serves until ctx is done or a background task fails, then shuts
// down gracefully. It returns the first serve, task or shutdown error.
func RunHTTPServer(ctx context.Context, cfg ServeConfig) error {
	if cfg.Server == nil {
		return errors.New("http server is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ln := cfg.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
		if err := cfg.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	for _, task := range cfg.Background {
		g.Go(func() error {
			if err := task.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			logger.InfoContext(ctx, task.Name+" stopped")
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(ctx, "shutting down HTTP server")

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		logger.InfoContext(ctx, "HTTP server stopped")
		return nil
	})
	return g.Wait()
}
