package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/session"
)

const adminKey = "test-admin-key"

// tokenAuth issues tok-1, tok-2, ... and points at an upstream test server.
type tokenAuth struct {
	base    string
	caps    auth.Capabilities
	calls   atomic.Int32
	logouts atomic.Int32
}

func (a *tokenAuth) Provider() string                { return "stub" }
func (a *tokenAuth) Capabilities() auth.Capabilities { return a.caps }
func (a *tokenAuth) BaseURL(auth.Credentials) string { return a.base }

func (a *tokenAuth) Authenticate(context.Context, auth.Credentials) (*auth.Grant, error) {
	token := fmt.Sprintf("tok-%d", a.calls.Add(1))
	return &auth.Grant{
		Secret:  token,
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Params:  map[string]string{"UIDARUBA": token},
	}, nil
}

func (a *tokenAuth) Logout(context.Context, auth.Credentials, string) error {
	a.logouts.Add(1)
	return nil
}

// upstream records what reaches the appliance and accepts only the given token.
type upstream struct {
	*httptest.Server
	hits atomic.Int32

	mu       sync.Mutex
	accept   string
	lastReq  *http.Request
	lastBody string
}

func newUpstream(t *testing.T, accept string) *upstream {
	t.Helper()
	u := &upstream{accept: accept}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		body, _ := io.ReadAll(r.Body)

		u.mu.Lock()
		u.lastReq = r.Clone(context.Background())
		u.lastBody = string(body)
		accept := u.accept
		u.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+accept {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "upstream=1")
		_, _ = w.Write([]byte(`{"_data":{"vlan_id":[{"id":10}]}}`))
	}))
	t.Cleanup(u.Close)
	return u
}

func newTestServer(t *testing.T, a *tokenAuth, opts Options) *Server {
	t.Helper()
	t.Setenv("ADMIN_API_KEY", adminKey)
	open := func(ctx context.Context) (*session.Session, error) {
		return session.Open(ctx, a, auth.Credentials{})
	}
	s := NewServer(open, opts)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func do(t *testing.T, s http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

var authorized = map[string]string{"Authorization": "Bearer " + adminKey}

func TestAdminMiddleware(t *testing.T) {
	a := &tokenAuth{base: "http://127.0.0.1:1"}
	s := newTestServer(t, a, Options{})

	testCases := []struct {
		name   string
		header map[string]string
		status int
	}{
		{name: "missing credentials", status: http.StatusUnauthorized},
		{name: "malformed authorization", header: map[string]string{"Authorization": "Basic abc def"}, status: http.StatusUnauthorized},
		{name: "wrong key", header: map[string]string{"X-API-Key": "nope"}, status: http.StatusUnauthorized},
		{name: "bearer key", header: authorized, status: http.StatusOK},
		{name: "x-api-key", header: map[string]string{"X-API-Key": adminKey}, status: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/admin/session/status", "", tc.header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	t.Run("not configured", func(t *testing.T) {
		t.Setenv("ADMIN_API_KEY", "")
		rec := do(t, s, http.MethodGet, "/admin/session/status", "", authorized)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestProxyAttachesSession(t *testing.T) {
	up := newUpstream(t, "tok-1")
	a := &tokenAuth{base: up.URL + "/v1/configuration"}
	s := newTestServer(t, a, Options{HTTPClient: up.Client()})

	rec := do(t, s, http.MethodPost, "/object/vlan_id?config_path=%2Fmd", `{"id":10}`, map[string]string{
		"Authorization": "Bearer " + adminKey,
		"Content-Type":  "application/json",
		"Cookie":        "client=1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"_data":{"vlan_id":[{"id":10}]}}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Set-Cookie"))

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "/v1/configuration/object/vlan_id", up.lastReq.URL.Path)
	assert.Equal(t, "/md", up.lastReq.URL.Query().Get("config_path"))
	assert.Equal(t, "tok-1", up.lastReq.URL.Query().Get("UIDARUBA"))
	assert.Equal(t, "Bearer tok-1", up.lastReq.Header.Get("Authorization"))
	assert.Empty(t, up.lastReq.Header.Get("Cookie"))
	assert.Equal(t, "application/json", up.lastReq.Header.Get("Content-Type"))
	assert.Equal(t, `{"id":10}`, up.lastBody)
}

func TestProxyRefreshesOnUnauthorized(t *testing.T) {
	up := newUpstream(t, "tok-2")
	a := &tokenAuth{base: up.URL}

	var hooked atomic.Int32
	s := newTestServer(t, a, Options{HTTPClient: up.Client(), OnRefresh: func(*session.Session) { hooked.Add(1) }})

	rec := do(t, s, http.MethodGet, "/vlans", "", authorized)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), a.calls.Load(), "open plus one refresh")
	assert.Equal(t, int32(2), up.hits.Load(), "original call plus one retry")
	assert.Equal(t, int32(1), hooked.Load())
}

func TestProxyRetriesOnlyOnce(t *testing.T) {
	up := newUpstream(t, "never")
	a := &tokenAuth{base: up.URL}
	s := newTestServer(t, a, Options{HTTPClient: up.Client()})

	rec := do(t, s, http.MethodGet, "/vlans", "", authorized)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(2), up.hits.Load())
}

func TestProxyOpenFailure(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", adminKey)
	s := NewServer(func(context.Context) (*session.Session, error) {
		return nil, errors.New("clearpass unreachable")
	}, Options{})

	rec := do(t, s, http.MethodGet, "/vlans", "", authorized)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "clearpass unreachable")
}

func TestSessionStatusAndRefresh(t *testing.T) {
	a := &tokenAuth{base: "https://cppm/api", caps: auth.Capabilities{Renew: true}}
	var hooked atomic.Int32
	s := newTestServer(t, a, Options{OnRefresh: func(*session.Session) { hooked.Add(1) }})

	status := func() map[string]any {
		rec := do(t, s, http.MethodGet, "/admin/session/status", "", authorized)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, "unauthenticated", status()["state"])

	rec := do(t, s, http.MethodGet, "/admin/session/refresh", "", authorized)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodPost, "/admin/session/refresh", "", authorized)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Equal(t, int32(2), a.calls.Load(), "open plus explicit refresh")
	assert.Equal(t, int32(1), hooked.Load())

	body := status()
	assert.Equal(t, "live", body["state"])
	assert.Equal(t, "stub", body["provider"])
	assert.Equal(t, "https://cppm/api", body["base_url"])
	assert.Equal(t, true, body["renewable"])
	assert.Equal(t, "2h0m0s", body["refresh_interval"])
}

func TestCloseLogsOut(t *testing.T) {
	a := &tokenAuth{base: "https://md", caps: auth.Capabilities{Logout: true}}
	s := newTestServer(t, a, Options{})

	rec := do(t, s, http.MethodPost, "/admin/session/refresh", "", authorized)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, int32(1), a.logouts.Load())
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	h := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := do(t, h, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/", "", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestUpstreamURL(t *testing.T) {
	assert.Equal(t, "https://md:4343/v1/configuration/object/vlan_id", upstreamURL("https://md:4343/v1/configuration/", "/object/vlan_id", nil))
	assert.Equal(t, "https://sw/rest/v4/vlans?a=1", upstreamURL("https://sw/rest/v4", "vlans", map[string][]string{"a": {"1"}}))
}
