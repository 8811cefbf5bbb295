package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Response messages. These are the only error texts clients ever see.
const (
	msgIDTokenRequired    = "ID Token is required"
	msgAuthFailed         = "Authentication failed"
	msgMethodNotAllowed   = "Method not allowed"
	msgInternalError      = "Internal server error"
	msgLoggedOut          = "Logged out successfully"
	msgTooManyRequests    = "Too many requests"
	msgServiceUnavailable = "Service unavailable"
)

// sessionResponse is the JSON envelope shared by every session endpoint.
type sessionResponse struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	HasSession *bool  `json:"hasSession,omitempty"`
}

func okResponse() sessionResponse { return sessionResponse{OK: true} }

func errorResponse(message string) sessionResponse {
	return sessionResponse{OK: false, Message: message}
}

func checkResponse(has bool) sessionResponse {
	return sessionResponse{OK: true, HasSession: &has}
}

// WriteJSON writes a JSON response with the given status code and data.
// The body is encoded before any header is written so encoding failures still yield a clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		code = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"ok":false,"message":"` + msgInternalError + `"}` + "\n")
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}
