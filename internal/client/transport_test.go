package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/session-bridge/internal/domain/auth"
	httpx "github.com/target/session-bridge/internal/http"
	mockauth "github.com/target/session-bridge/internal/mocks/auth"
	"github.com/target/session-bridge/internal/service"
	"github.com/target/session-bridge/internal/sessioncookie"
)

// handlerRoundTripper serves requests in-process so the cookie jar sees the real
// bridge host name.
type handlerRoundTripper struct {
	h http.Handler
}

func (rt handlerRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	req.RemoteAddr = "203.0.113.7:4242"
	rec := httptest.NewRecorder()
	rt.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func newBridge(t *testing.T, minter *mockauth.MockMinter) http.Handler {
	t.Helper()
	svc, err := service.NewSessionService(service.SessionServiceOptions{Minter: minter})
	require.NoError(t, err)
	return httpx.NewRouter(httpx.RouterOptions{
		Sessions: &httpx.SessionHandlers{
			Svc:    svc,
			Cookie: sessioncookie.New(domainauth.SessionCookieName, ".example.com"),
			CORS:   httpx.CORSConfig{AllowedOrigin: "https://www.example.com"},
		},
	})
}

func newJarTransport(t *testing.T, h http.Handler) *HTTPTransport {
	t.Helper()
	base, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: "https://auth.example.com"})
	require.NoError(t, err)
	base.client.Transport = handlerRoundTripper{h: h}
	return base
}

func TestHTTPTransport_CookieJarRoundTrip(t *testing.T) {
	minter := mockauth.NewMockMinter()
	tr := newJarTransport(t, newBridge(t, minter))
	ctx := context.Background()

	has, err := tr.CheckSession(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, tr.CreateSession(ctx, "id-token"))
	assert.Equal(t, []string{"id-token"}, minter.Tokens())

	has, err = tr.CheckSession(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, tr.DestroySession(ctx))
	has, err = tr.CheckSession(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHTTPTransport_ControllerAgainstBridge(t *testing.T) {
	minter := mockauth.NewMockMinter()
	tr := newJarTransport(t, newBridge(t, minter))
	c, err := NewController(Options{
		Transport: tr,
		Tokens: IDTokenFunc(func(context.Context, bool) (string, error) {
			return "id-token", nil
		}),
	})
	require.NoError(t, err)

	c.HandleAuthStateChanged(context.Background(), alice)
	c.Wait()
	assert.True(t, c.State().HasSession)
	assert.Equal(t, 1, minter.Calls())

	c.HandleAuthStateChanged(context.Background(), alice)
	c.Wait()
	assert.Equal(t, 1, minter.Calls(), "existing session must not be re-minted")

	c.HandleAuthStateChanged(context.Background(), nil)
	c.Wait()
	has, err := tr.CheckSession(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHTTPTransport_RenewalFinishingAfterSignOutLeavesNoCookie(t *testing.T) {
	minter := mockauth.NewMockMinter()
	var blockNext atomic.Bool
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	minter.MintFunc = func(_ context.Context, _ string, validity time.Duration) (domainauth.SessionCredential, error) {
		if blockNext.CompareAndSwap(true, false) {
			started <- struct{}{}
			<-release
		}
		return domainauth.SessionCredential{Value: "cred", ExpiresAt: time.Now().Add(validity)}, nil
	}

	tr := newJarTransport(t, newBridge(t, minter))
	c, err := NewController(Options{
		Transport: tr,
		Tokens: IDTokenFunc(func(context.Context, bool) (string, error) {
			return "id-token", nil
		}),
	})
	require.NoError(t, err)
	ctx := context.Background()

	c.HandleAuthStateChanged(ctx, alice)
	c.Wait()
	require.True(t, c.State().HasSession)

	blockNext.Store(true)
	c.Renew(ctx)
	<-started

	c.HandleAuthStateChanged(ctx, nil)
	require.Eventually(t, func() bool {
		return c.State().Phase == PhaseIdle
	}, time.Second, 5*time.Millisecond)
	has, err := tr.CheckSession(ctx)
	require.NoError(t, err)
	require.False(t, has)

	// The renewal response sets the cookie again after the logout went through.
	close(release)
	c.Wait()

	s := c.State()
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.HasSession)
	assert.Equal(t, 2, minter.Calls())

	has, err = tr.CheckSession(ctx)
	require.NoError(t, err)
	assert.False(t, has, "bridge must not see a session after sign-out")
}

func TestHTTPTransport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"ok":false,"message":"ID Token is required"}`, want: domainauth.ErrIDTokenRequired},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"ok":false,"message":"Authentication failed"}`, want: domainauth.ErrAuthenticationFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"ok":false}`, want: domainauth.ErrRateLimited},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: `{"ok":false}`, want: domainauth.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			tr, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: srv.URL})
			require.NoError(t, err)
			err = tr.CreateSession(context.Background(), "tok")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("internal error keeps message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"ok":false,"message":"Internal server error"}`)
		}))
		defer srv.Close()

		tr, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: srv.URL})
		require.NoError(t, err)
		err = tr.DestroySession(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Internal server error")
	})

	t.Run("connection failure is upstream unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		tr, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: url})
		require.NoError(t, err)
		_, err = tr.CheckSession(context.Background())
		assert.ErrorIs(t, err, domainauth.ErrUpstreamUnavailable)
	})
}

func TestHTTPTransport_RequestShape(t *testing.T) {
	var gotMethod, gotPath, gotOrigin, gotCT string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotOrigin = r.Header.Get("Origin")
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: srv.URL + "/", Origin: "https://www.example.com"})
	require.NoError(t, err)
	require.NoError(t, tr.CreateSession(context.Background(), "abc"))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, httpx.PathCreateSession, gotPath)
	assert.Equal(t, "https://www.example.com", gotOrigin)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, map[string]any{"idToken": "abc"}, gotBody)
}

func TestHTTPTransport_CheckRequiresHasSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = tr.CheckSession(context.Background())
	assert.Error(t, err)
}

func TestNewHTTPTransport_InvalidBaseURL(t *testing.T) {
	_, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestFileTokenSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id_token")
	src := FileTokenSource{Path: path}

	_, err := src.IDToken(context.Background(), true)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, err = src.IDToken(context.Background(), true)
	assert.True(t, errors.Is(err, ErrNoIDToken))

	require.NoError(t, os.WriteFile(path, []byte("token-1\n"), 0o600))
	tok, err := src.IDToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
}

func TestHTTPTransport_SeedResumesSession(t *testing.T) {
	minter := mockauth.NewMockMinter()
	tr := newJarTransport(t, newBridge(t, minter))

	require.NoError(t, tr.Seed(domainauth.SessionCookieName, "minted-elsewhere"))
	has, err := tr.CheckSession(context.Background())
	require.NoError(t, err)
	assert.True(t, has)

	tr.client.Jar = nil
	assert.Error(t, tr.Seed(domainauth.SessionCookieName, "x"))
}
