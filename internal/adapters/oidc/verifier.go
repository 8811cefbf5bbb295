// Package oidc verifies ID credentials against the identity provider's OIDC issuer.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/ports"
	"golang.org/x/oauth2"
)

// IssuerPrefix is the issuer of provider ID credentials; the project ID is appended.
const IssuerPrefix = "https://securetoken.google.com/"

var _ ports.IDTokenVerifier = (*Verifier)(nil)

// VerifierConfig holds configuration for the ID credential verifier.
type VerifierConfig struct {
	ProjectID  string
	Issuer     string       // Optional, defaults to IssuerPrefix + ProjectID
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// Verifier checks signature, issuer, audience and expiry of ID credentials.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewVerifier performs OIDC discovery against the issuer and returns a Verifier.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}
	issuer := issuerFor(cfg)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return &Verifier{verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ProjectID})}, nil
}

// NewVerifierWithKeySet builds a Verifier without discovery, using a caller-supplied key set.
func NewVerifierWithKeySet(cfg VerifierConfig, keySet gooidc.KeySet) (*Verifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}
	if keySet == nil {
		return nil, errors.New("key set is required")
	}
	v := gooidc.NewVerifier(issuerFor(cfg), keySet, &gooidc.Config{ClientID: cfg.ProjectID})
	return &Verifier{verifier: v}, nil
}

// idTokenClaims captures the claims we map into a Principal.
type idTokenClaims struct {
	Sub    string `json:"sub"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Verify validates rawIDToken and returns the principal it proves.
// Every verification failure wraps domainauth.ErrAuthenticationFailed.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (domainauth.Principal, error) {
	if rawIDToken == "" {
		return domainauth.Principal{}, domainauth.ErrIDTokenRequired
	}
	tok, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return domainauth.Principal{}, fmt.Errorf("verify id_token: %w: %w", domainauth.ErrAuthenticationFailed, err)
	}
	var claims idTokenClaims
	if claimsErr := tok.Claims(&claims); claimsErr != nil {
		return domainauth.Principal{}, fmt.Errorf("parse id_token claims: %w: %w", domainauth.ErrAuthenticationFailed, claimsErr)
	}
	uid := firstNonEmpty(claims.UserID, claims.Sub)
	if uid == "" {
		return domainauth.Principal{}, fmt.Errorf("id_token has no subject: %w", domainauth.ErrAuthenticationFailed)
	}
	return domainauth.Principal{UID: uid, Email: claims.Email}, nil
}

func issuerFor(cfg VerifierConfig) string {
	if cfg.Issuer != "" {
		return strings.TrimSuffix(cfg.Issuer, "/")
	}
	return IssuerPrefix + cfg.ProjectID
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
