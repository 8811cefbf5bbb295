package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the session minting backend.
type AuthMode string

const (
	// AuthModeIdentityToolkit mints session credentials through the identity provider REST API.
	AuthModeIdentityToolkit AuthMode = "identitytoolkit"
	// AuthModeMock mints local credentials (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "identitytoolkit", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: identitytoolkit, mock)", v)
	}
}

// IdentityConfig contains identity provider settings.
type IdentityConfig struct {
	ProjectID string `env:"PROJECT_ID"`
	APIKey    string `env:"API_KEY"`
	// BaseURL overrides the provider endpoint (emulators, tests).
	BaseURL string `env:"BASE_URL" envDefault:"https://identitytoolkit.googleapis.com"`

	// CredentialPath and ErrorPath are JMESPath expressions into the provider response.
	CredentialPath string `env:"CREDENTIAL_PATH" envDefault:"sessionCookie"`
	ErrorPath      string `env:"ERROR_PATH"      envDefault:"error.message"`

	// VerifyIDTokens checks ID credential signature, issuer and audience before minting.
	VerifyIDTokens bool   `env:"VERIFY_ID_TOKENS" envDefault:"false"`
	Issuer         string `env:"ISSUER"`
}

// DevAuthConfig controls the local minter used when AUTH_MODE=mock.
type DevAuthConfig struct {
	Prefix string `env:"PREFIX" envDefault:"dev"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which minter backs the session endpoints.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"identitytoolkit"`

	Identity IdentityConfig `envPrefix:"IDENTITY_"`
	DevAuth  DevAuthConfig  `envPrefix:"DEV_AUTH_"`
}

func (a *AuthConfig) sanitize() {
	a.Identity.ProjectID = strings.TrimSpace(a.Identity.ProjectID)
	a.Identity.APIKey = strings.TrimSpace(a.Identity.APIKey)
	a.Identity.BaseURL = strings.TrimRight(strings.TrimSpace(a.Identity.BaseURL), "/")
	a.Identity.Issuer = strings.TrimSpace(a.Identity.Issuer)
}

func (a *AuthConfig) validate() error {
	if a.Mode == "" {
		a.Mode = AuthModeIdentityToolkit
	}
	if a.Mode != AuthModeIdentityToolkit {
		return nil
	}
	if a.Identity.APIKey == "" {
		return fmt.Errorf("IDENTITY_API_KEY is required when AUTH_MODE=%s", a.Mode)
	}
	if a.Identity.ProjectID == "" {
		return fmt.Errorf("IDENTITY_PROJECT_ID is required when AUTH_MODE=%s", a.Mode)
	}
	return nil
}
