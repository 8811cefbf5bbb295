package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	apperrors "github.com/target/session-bridge/internal/errors"
)

// Classify returns a low-cardinality error class suitable for tagging metrics/logs.
// Known session errors map to stable names; anything else falls back to the
// innermost concrete type name in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, domainauth.ErrIDTokenRequired):
		return "id_token_required"
	case goerrors.Is(err, domainauth.ErrRateLimited):
		return "rate_limited"
	case goerrors.Is(err, domainauth.ErrAuthenticationFailed):
		return "authentication_failed"
	case goerrors.Is(err, domainauth.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
