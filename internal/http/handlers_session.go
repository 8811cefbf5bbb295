package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	apperrors "github.com/target/session-bridge/internal/errors"
	"github.com/target/session-bridge/internal/service"
	"github.com/target/session-bridge/internal/sessioncookie"
)

// maxCreateBodyBytes bounds the create-session request body.
const maxCreateBodyBytes = 64 << 10

// SessionServiceInterface defines the session operations the handlers depend on.
type SessionServiceInterface interface {
	Create(ctx context.Context, in service.CreateInput) (*service.CreateResult, error)
	Destroy(ctx context.Context, meta service.RequestMeta)
	Check(ctx context.Context, cookieHeader string) bool
}

// SessionHandlers provides the session bridge endpoints.
type SessionHandlers struct {
	Svc    SessionServiceInterface
	Cookie sessioncookie.Codec
	CORS   CORSConfig
	// DistinguishUpstreamErrors answers provider outages with 503 instead of 401.
	DistinguishUpstreamErrors bool
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-Ip.
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// preamble handles preflight and method enforcement. It returns false when the
// exchange has already been answered.
func (h *SessionHandlers) preamble(x *exchange, r *http.Request, method string) bool {
	if isPreflight(r) {
		h.CORS.apply(x.w.Header())
		x.w.WriteHeader(http.StatusOK)
		x.state = stateResponded
		return false
	}
	if r.Method != method {
		x.fail(http.StatusMethodNotAllowed, msgMethodNotAllowed, nil)
		return false
	}
	return true
}

func (h *SessionHandlers) requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		ClientIP:  ClientIP(r, h.TrustProxyHeaders),
		UserAgent: r.UserAgent(),
	}
}

// createSessionRequest is the create-session body. IDToken stays untyped so a
// non-string value is reported as a missing token rather than a decode error.
type createSessionRequest struct {
	IDToken any `json:"idToken"`
}

// CreateSession exchanges an ID credential for a session cookie.
// POST /auth/session {"idToken": "..."}.
func (h *SessionHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	x := newExchange(domainauth.OpCreate, w, r, h)
	defer x.recoverFault()
	if !h.preamble(x, r, http.MethodPost) {
		return
	}

	idToken, err := readIDToken(w, r)
	if err != nil {
		x.fail(http.StatusBadRequest, msgIDTokenRequired, nil)
		return
	}
	x.advance(stateValidated)

	res, err := h.Svc.Create(r.Context(), service.CreateInput{IDToken: idToken, RequestMeta: h.requestMeta(r)})
	if err != nil {
		h.failCreate(x, err)
		return
	}
	x.advance(stateProcessed)

	x.respond(http.StatusOK, okResponse(), h.Cookie.Session(res.Credential.Value, res.MaxAgeSeconds))
}

func (h *SessionHandlers) failCreate(x *exchange, err error) {
	appErr := apperrors.FromSession(err)
	switch appErr.Code {
	case apperrors.ErrCodeValidation:
		x.fail(http.StatusBadRequest, msgIDTokenRequired, err)
	case apperrors.ErrCodeRateLimited:
		var rl *service.RateLimitedError
		if errors.As(err, &rl) {
			x.w.Header().Set("Retry-After", rl.RetryAfterSeconds())
		}
		x.fail(http.StatusTooManyRequests, msgTooManyRequests, err)
	case apperrors.ErrCodeUnauthorized:
		x.fail(http.StatusUnauthorized, msgAuthFailed, err)
	case apperrors.ErrCodeUnavailable, apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled:
		if h.DistinguishUpstreamErrors {
			x.fail(http.StatusServiceUnavailable, msgServiceUnavailable, err)
			return
		}
		x.fail(http.StatusUnauthorized, msgAuthFailed, err)
	default:
		x.fail(http.StatusInternalServerError, msgInternalError, err)
	}
}

// readIDToken extracts a non-empty string idToken from the request body.
func readIDToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil {
		return "", domainauth.ErrIDTokenRequired
	}
	var req createSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", domainauth.ErrIDTokenRequired
		}
		return "", err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return "", errors.New("request body must hold a single JSON object")
	}
	tok, ok := req.IDToken.(string)
	if !ok || strings.TrimSpace(tok) == "" {
		return "", domainauth.ErrIDTokenRequired
	}
	return tok, nil
}

// Logout clears the session cookie. It succeeds whether or not a session exists.
// POST /auth/logout.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	x := newExchange(domainauth.OpDestroy, w, r, h)
	defer x.recoverFault()
	if !h.preamble(x, r, http.MethodPost) {
		return
	}
	x.advance(stateValidated)

	h.Svc.Destroy(r.Context(), h.requestMeta(r))
	x.advance(stateProcessed)

	x.respond(http.StatusOK, sessionResponse{OK: true, Message: msgLoggedOut}, h.Cookie.Cleared())
}

// CheckSession reports whether the request carries the session cookie.
// This is an advisory presence check; it does not authenticate the credential.
// GET /auth/check.
func (h *SessionHandlers) CheckSession(w http.ResponseWriter, r *http.Request) {
	x := newExchange(domainauth.OpCheck, w, r, h)
	defer x.recoverFault()
	if !h.preamble(x, r, http.MethodGet) {
		return
	}
	x.advance(stateValidated)

	// HTTP/2 clients may split cookies across several header fields.
	has := h.Svc.Check(r.Context(), strings.Join(r.Header.Values("Cookie"), "; "))
	x.advance(stateProcessed)

	x.respond(http.StatusOK, checkResponse(has), "")
}
