package httpx

import (
	"net/http"
	"strconv"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = 86400
)

// CORSConfig scopes cross-origin access to a single trusted origin.
type CORSConfig struct {
	AllowedOrigin string
}

// apply writes the fixed CORS header set.
func (c CORSConfig) apply(h http.Header) {
	if c.AllowedOrigin != "" {
		h.Set("Access-Control-Allow-Origin", c.AllowedOrigin)
	}
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
}

// isPreflight reports whether r is a CORS preflight request.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}
