package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
)

// handlerState is a step of a session endpoint's lifecycle.
type handlerState string

const (
	stateReceived  handlerState = "RECEIVED"
	stateValidated handlerState = "VALIDATED"
	stateProcessed handlerState = "PROCESSED"
	stateResponded handlerState = "RESPONDED"
	stateErrored   handlerState = "ERRORED"
)

// terminal reports whether no further transition is allowed.
func (s handlerState) terminal() bool {
	return s == stateResponded || s == stateErrored
}

// canTransition encodes RECEIVED → VALIDATED → PROCESSED → RESPONDED,
// with ERRORED reachable from every non-terminal state.
func canTransition(from, to handlerState) bool {
	if from.terminal() {
		return false
	}
	if to == stateErrored {
		return true
	}
	switch from {
	case stateReceived:
		return to == stateValidated
	case stateValidated:
		return to == stateProcessed
	case stateProcessed:
		return to == stateResponded
	default:
		return false
	}
}

// exchange drives one request through the handler state machine and owns its response.
type exchange struct {
	ctx    context.Context
	op     domainauth.Operation
	state  handlerState
	w      http.ResponseWriter
	cors   CORSConfig
	logger *slog.Logger
}

func newExchange(op domainauth.Operation, w http.ResponseWriter, r *http.Request, h *SessionHandlers) *exchange {
	return &exchange{
		ctx:    r.Context(),
		op:     op,
		state:  stateReceived,
		w:      w,
		cors:   h.CORS,
		logger: h.logger().With("request_id", RequestIDFromContext(r.Context())),
	}
}

func (x *exchange) advance(to handlerState) {
	if !canTransition(x.state, to) {
		panic(fmt.Sprintf("illegal %s handler transition %s -> %s", x.op, x.state, to))
	}
	x.logger.DebugContext(x.ctx, "handler transition", "op", string(x.op), "from", string(x.state), "to", string(to))
	x.state = to
}

// respond completes the exchange successfully. setCookie is omitted when empty.
func (x *exchange) respond(status int, body sessionResponse, setCookie string) {
	x.advance(stateResponded)
	x.cors.apply(x.w.Header())
	if setCookie != "" {
		x.w.Header().Add("Set-Cookie", setCookie)
	}
	WriteJSON(x.w, status, body)
}

// fail moves the exchange to ERRORED and writes a generic error body.
// err is logged only; it never reaches the client.
func (x *exchange) fail(status int, message string, err error) {
	if x.state.terminal() {
		return
	}
	x.advance(stateErrored)
	if err != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		x.logger.Log(x.ctx, level, "session request failed",
			"op", string(x.op), "status", status, slog.Any("error", err))
	}
	h := x.w.Header()
	h.Del("Set-Cookie")
	x.cors.apply(h)
	WriteJSON(x.w, status, errorResponse(message))
}

// recoverFault converts a panic inside a handler into a 500 response.
// It must be deferred directly by the handler.
func (x *exchange) recoverFault() {
	rec := recover()
	if rec == nil {
		return
	}
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", rec)
	}
	if x.state.terminal() {
		x.logger.ErrorContext(x.ctx, "panic after response", "op", string(x.op), slog.Any("error", err))
		return
	}
	x.fail(http.StatusInternalServerError, msgInternalError, err)
}
