package httpx

import (
	"log/slog"
	"net/http"
)

// Session endpoint paths.
const (
	PathCreateSession = "/auth/session"
	PathLogout        = "/auth/logout"
	PathCheckSession  = "/auth/check"
)

// RouterOptions holds what the HTTP router needs.
type RouterOptions struct {
	Sessions *SessionHandlers
	Logger   *slog.Logger // optional
}

// NewRouter creates the HTTP handler: session endpoints and health probes behind
// the Recover → RequestID → Logging middleware chain.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	// Session routes match every method so the handlers can answer preflight and 405 themselves.
	if opts.Sessions != nil {
		mux.HandleFunc(PathCreateSession, opts.Sessions.CreateSession)
		mux.HandleFunc(PathLogout, opts.Sessions.Logout)
		mux.HandleFunc(PathCheckSession, opts.Sessions.CheckSession)
	}
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var h http.Handler = mux
	h = Logging(logger)(h)
	h = RequestID()(h)
	h = Recover(logger)(h)
	return h
}
