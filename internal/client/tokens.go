package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// IDTokenSource supplies ID credentials from the identity provider.
type IDTokenSource interface {
	// IDToken returns an ID credential. forceRefresh asks for a newly issued one.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
}

// IDTokenFunc adapts a function to IDTokenSource.
type IDTokenFunc func(ctx context.Context, forceRefresh bool) (string, error)

// IDToken calls f.
func (f IDTokenFunc) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	return f(ctx, forceRefresh)
}

// ErrNoIDToken is returned when a source has no credential to offer.
var ErrNoIDToken = errors.New("no ID token available")

// FileTokenSource reads the ID credential from a file on every call, so an external
// process can refresh it in place.
type FileTokenSource struct {
	Path string
}

// IDToken reads and trims the file contents.
func (s FileTokenSource) IDToken(ctx context.Context, _ bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read ID token file: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", ErrNoIDToken
	}
	return tok, nil
}
