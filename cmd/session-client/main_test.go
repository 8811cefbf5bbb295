package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/session-bridge/config"
)

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	out := buf.String()
	for _, name := range []string{"watch", "check", "logout"} {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "check"), strings.Index(out, "logout"))
}

type fakeBridge struct {
	creates  atomic.Int32
	destroys atomic.Int32
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/check":
		_, err := r.Cookie("__session")
		if err == nil {
			_, _ = io.WriteString(w, `{"ok":true,"hasSession":true}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"hasSession":false}`)
	case "/auth/session":
		b.creates.Add(1)
		_, _ = io.WriteString(w, `{"ok":true}`)
	case "/auth/logout":
		b.destroys.Add(1)
		_, _ = io.WriteString(w, `{"ok":true,"message":"Logged out"}`)
	default:
		http.NotFound(w, r)
	}
}

func newCommandContext(t *testing.T, ctx context.Context, baseURL string) (*commandContext, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.ClientConfig{BaseURL: baseURL, Timeout: time.Second, Renewal: time.Hour}
	return &commandContext{
		Ctx:    ctx,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Stdout: &out,
	}, &out
}

func TestRunCheck(t *testing.T) {
	srv := httptest.NewServer(&fakeBridge{})
	defer srv.Close()

	cmdCtx, out := newCommandContext(t, context.Background(), srv.URL)
	require.NoError(t, runCheck(cmdCtx, nil))
	assert.JSONEq(t, `{"hasSession":false}`, out.String())

	out.Reset()
	require.NoError(t, runCheck(cmdCtx, []string{"-session", "abc"}))
	assert.JSONEq(t, `{"hasSession":true}`, out.String())
}

func TestRunLogout(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	cmdCtx, out := newCommandContext(t, context.Background(), srv.URL)
	require.NoError(t, runLogout(cmdCtx, nil))
	assert.JSONEq(t, `{"ok":true}`, out.String())
	assert.Equal(t, int32(1), bridge.destroys.Load())
}

func TestRunWatch_SignsInThenOutOnCancel(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "id_token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("id-token\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cmdCtx, _ := newCommandContext(t, ctx, srv.URL)

	done := make(chan error, 1)
	go func() {
		done <- runWatch(cmdCtx, []string{"-id-token-file", tokenFile, "-uid", "user-1"})
	}()

	require.Eventually(t, func() bool { return bridge.creates.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit")
	}
	assert.Equal(t, int32(1), bridge.destroys.Load())
}

func TestRunWatch_RequiresFlags(t *testing.T) {
	cmdCtx, _ := newCommandContext(t, context.Background(), "http://localhost:1")
	assert.ErrorContains(t, runWatch(cmdCtx, nil), "-id-token-file")
	assert.ErrorContains(t, runWatch(cmdCtx, []string{"-id-token-file", "x"}), "-uid")
}

func TestRunCheck_InvalidBaseURL(t *testing.T) {
	cmdCtx, _ := newCommandContext(t, context.Background(), "ftp://bad")
	assert.Error(t, runCheck(cmdCtx, nil))
}
