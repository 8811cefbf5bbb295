package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	httpx "github.com/target/session-bridge/internal/http"
	"golang.org/x/net/publicsuffix"
)

// Transport performs the three session bridge calls.
type Transport interface {
	CheckSession(ctx context.Context) (bool, error)
	CreateSession(ctx context.Context, idToken string) error
	DestroySession(ctx context.Context) error
}

// HTTPTransportConfig configures HTTPTransport.
type HTTPTransportConfig struct {
	BaseURL string
	// Origin is sent as the Origin header when set.
	Origin string
	// HTTPClient overrides the default client. Its Jar must hold the session cookie.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// HTTPTransport talks to the session bridge over HTTP and keeps the session cookie
// in a public-suffix aware cookie jar.
type HTTPTransport struct {
	base   *url.URL
	origin string
	client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport validates cfg and builds the transport.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		jar, jerr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jerr != nil {
			return nil, fmt.Errorf("create cookie jar: %w", jerr)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = domainauth.UpstreamTimeout
		}
		client = &http.Client{Jar: jar, Timeout: timeout}
	}

	return &HTTPTransport{base: base, origin: cfg.Origin, client: client}, nil
}

// Seed stores a session cookie in the jar so a session minted elsewhere can be
// checked or destroyed.
func (t *HTTPTransport) Seed(name, value string) error {
	if t.client.Jar == nil {
		return errors.New("http client has no cookie jar")
	}
	t.client.Jar.SetCookies(t.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	return nil
}

type bridgeResponse struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message"`
	HasSession *bool  `json:"hasSession"`
}

// CheckSession calls GET /auth/check.
func (t *HTTPTransport) CheckSession(ctx context.Context) (bool, error) {
	resp, err := t.do(ctx, http.MethodGet, httpx.PathCheckSession, nil)
	if err != nil {
		return false, err
	}
	if resp.HasSession == nil {
		return false, errors.New("check session: response missing hasSession")
	}
	return *resp.HasSession, nil
}

// CreateSession calls POST /auth/session with the ID credential.
func (t *HTTPTransport) CreateSession(ctx context.Context, idToken string) error {
	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = t.do(ctx, http.MethodPost, httpx.PathCreateSession, body)
	return err
}

// DestroySession calls POST /auth/logout.
func (t *HTTPTransport) DestroySession(ctx context.Context) error {
	_, err := t.do(ctx, http.MethodPost, httpx.PathLogout, nil)
	return err
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*bridgeResponse, error) {
	u := t.base.JoinPath(path)

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.origin != "" {
		req.Header.Set("Origin", t.origin)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, domainauth.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out bridgeResponse
	if derr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); derr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, derr)
	}

	if resp.StatusCode == http.StatusOK && out.OK {
		return &out, nil
	}
	return nil, statusError(method, path, resp.StatusCode, out.Message)
}

func statusError(method, path string, status int, message string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = domainauth.ErrIDTokenRequired
	case http.StatusUnauthorized:
		sentinel = domainauth.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		sentinel = domainauth.ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		sentinel = domainauth.ErrUpstreamUnavailable
	}
	if sentinel != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, status, sentinel)
	}
	if message != "" {
		return fmt.Errorf("%s %s: status %d: %s", method, path, status, message)
	}
	return fmt.Errorf("%s %s: status %d", method, path, status)
}
