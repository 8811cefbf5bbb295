package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/session-bridge/config"
	"github.com/target/session-bridge/internal/adapters/devauth"
	"github.com/target/session-bridge/internal/adapters/identitytoolkit"
	"github.com/target/session-bridge/internal/adapters/oidc"
	"github.com/target/session-bridge/internal/ports"
)

// BuildMinter returns the session minter for the configured auth mode.
//
//nolint:ireturn // the minter implementation is chosen at runtime.
func BuildMinter(cfg config.AuthConfig, logger *slog.Logger) (ports.SessionMinter, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		if logger != nil {
			logger.Warn("AUTH_MODE=mock: session credentials are minted locally; do not use in production")
		}
		return devauth.NewProvider(devauth.Config{Prefix: cfg.DevAuth.Prefix}), nil

	case config.AuthModeIdentityToolkit, "":
		id := cfg.Identity
		prov, err := identitytoolkit.NewProvider(identitytoolkit.Config{
			BaseURL:        id.BaseURL,
			ProjectID:      id.ProjectID,
			APIKey:         id.APIKey,
			CredentialPath: id.CredentialPath,
			ErrorPath:      id.ErrorPath,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("identity toolkit provider: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// BuildVerifier returns an ID credential verifier, or nil when verification is off.
//
//nolint:ireturn // a nil interface disables verification in the session service.
func BuildVerifier(ctx context.Context, cfg config.AuthConfig) (ports.IDTokenVerifier, error) {
	if !cfg.Identity.VerifyIDTokens {
		return nil, nil
	}
	if cfg.Identity.ProjectID == "" {
		return nil, errors.New("IDENTITY_VERIFY_ID_TOKENS requires IDENTITY_PROJECT_ID")
	}
	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		ProjectID: cfg.Identity.ProjectID,
		Issuer:    cfg.Identity.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc verifier: %w", err)
	}
	return v, nil
}
