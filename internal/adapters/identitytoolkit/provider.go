package identitytoolkit

// Package identitytoolkit adapts the identity provider's REST token service to ports.SessionMinter.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
	"github.com/target/session-bridge/internal/ports"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the public endpoint of the identity toolkit API.
	DefaultBaseURL = "https://identitytoolkit.googleapis.com"

	defaultCredentialPath = "sessionCookie"
	defaultErrorPath      = "error.message"
	maxResponseBytes      = 1 << 20
)

var _ ports.SessionMinter = (*Provider)(nil)

// Config holds configuration for the identity toolkit adapter.
type Config struct {
	BaseURL   string
	ProjectID string
	APIKey    string

	// CredentialPath is a JMESPath expression selecting the session credential
	// from a successful response body. Defaults to "sessionCookie".
	CredentialPath string
	// ErrorPath is a JMESPath expression selecting the provider error message
	// from a failed response body, for logging only. Defaults to "error.message".
	ErrorPath string

	// TokenSource, when set, authorizes upstream calls with a bearer token.
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client  // Optional, defaults to a client with Timeout
	Timeout     time.Duration // Optional, defaults to domainauth.UpstreamTimeout
	Logger      *slog.Logger
}

// Provider mints session credentials through the createSessionCookie endpoint.
// It is stateless apart from its configuration and safe for concurrent use.
type Provider struct {
	endpoint       string
	credentialPath string
	errorPath      string
	timeout        time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	credPath := firstNonEmpty(cfg.CredentialPath, defaultCredentialPath)
	if _, err := jmespath.Compile(credPath); err != nil {
		return nil, fmt.Errorf("invalid credential path: %w", err)
	}
	errPath := firstNonEmpty(cfg.ErrorPath, defaultErrorPath)
	if _, err := jmespath.Compile(errPath); err != nil {
		return nil, fmt.Errorf("invalid error path: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domainauth.UpstreamTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.TokenSource != nil {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource), Base: base}
		httpClient = &wrapped
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := url.Values{}
	q.Set("key", cfg.APIKey)
	endpoint := fmt.Sprintf("%s/v1/projects/%s:createSessionCookie?%s",
		base, url.PathEscape(cfg.ProjectID), q.Encode())

	return &Provider{
		endpoint:       endpoint,
		credentialPath: credPath,
		errorPath:      errPath,
		timeout:        timeout,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

type createSessionRequest struct {
	IDToken       string `json:"idToken"`
	ValidDuration string `json:"validDuration"`
}

// MintSessionCredential exchanges idToken for a session credential valid for validity.
// Transport failures and timeouts wrap domainauth.ErrUpstreamUnavailable; any non-2xx
// response wraps domainauth.ErrAuthenticationFailed. The provider's error body is logged
// and never returned to callers.
func (p *Provider) MintSessionCredential(
	ctx context.Context,
	idToken string,
	validity time.Duration,
) (domainauth.SessionCredential, error) {
	if idToken == "" {
		return domainauth.SessionCredential{}, domainauth.ErrIDTokenRequired
	}
	if validity <= 0 {
		validity = domainauth.SessionTTL
	}

	payload, err := json.Marshal(createSessionRequest{
		IDToken:       idToken,
		ValidDuration: strconv.FormatInt(int64(validity/time.Second), 10),
	})
	if err != nil {
		return domainauth.SessionCredential{}, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domainauth.SessionCredential{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	issuedAt := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		// url.Error carries the endpoint, which includes the API key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return domainauth.SessionCredential{}, fmt.Errorf("create session cookie: %w: %w", domainauth.ErrUpstreamUnavailable, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.DebugContext(ctx, "close provider response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domainauth.SessionCredential{}, fmt.Errorf("read response: %w: %w", domainauth.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.WarnContext(ctx, "identity provider rejected session cookie request",
			"status", resp.StatusCode,
			"provider_error", p.extractString(body, p.errorPath),
		)
		return domainauth.SessionCredential{}, fmt.Errorf("create session cookie: status %d: %w",
			resp.StatusCode, domainauth.ErrAuthenticationFailed)
	}

	value := p.extractString(body, p.credentialPath)
	if value == "" {
		p.logger.ErrorContext(ctx, "identity provider response missing session credential",
			"status", resp.StatusCode, "path", p.credentialPath)
		return domainauth.SessionCredential{}, fmt.Errorf("create session cookie: empty credential: %w",
			domainauth.ErrUpstreamUnavailable)
	}

	return domainauth.SessionCredential{
		Value:     value,
		ExpiresAt: issuedAt.Add(validity),
	}, nil
}

// extractString evaluates a JMESPath expression against a JSON body and returns
// the result when it is a string.
func (p *Provider) extractString(body []byte, expr string) string {
	if len(body) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
