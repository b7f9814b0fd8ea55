package clearpass

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/session"
)

// cppm is a mock ClearPass server.
type cppm struct {
	*httptest.Server

	mu       sync.Mutex
	calls    []string
	patches  []map[string]map[string]string
	query    string
	sessions []AccountingSession
	failPath string
}

func newCPPM(t *testing.T) *cppm {
	t.Helper()
	c := &cppm{
		sessions: []AccountingSession{{ID: "R0001", NASIPAddress: "10.0.0.2", CallingStationID: "aa:bb:cc:dd:ee:ff"}},
	}
	c.Server = httptest.NewTLSServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

func (c *cppm) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, r.Method+" "+r.URL.Path)

	if r.URL.Path == c.failPath {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"forbidden"}`))
		return
	}

	if r.URL.Path == "/api/oauth" {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok-1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/endpoint/mac-address/"):
		var update map[string]map[string]string
		_ = json.Unmarshal(body, &update)
		c.patches = append(c.patches, update)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		c.query = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"_embedded": map[string]any{"items": c.sessions}})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/disconnect"):
		if string(body) != `{"confirm_disconnect":true}` {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (c *cppm) host() string {
	return strings.TrimPrefix(c.URL, "https://")
}

func (c *cppm) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func openSession(t *testing.T, srv *cppm) *session.Session {
	t.Helper()
	s, err := session.Open(context.Background(), auth.NewClearPass(auth.Options{InsecureSkipVerify: true}), auth.Credentials{
		APIHost:      srv.host(),
		GrantType:    auth.GrantClientCredentials,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	return s
}

func TestClient(t *testing.T) {
	srv := newCPPM(t)
	c := NewClient(openSession(t, srv), true)
	ctx := context.Background()

	require.NoError(t, c.UpdateEndpointThreat(ctx, "aa:bb:cc:dd:ee:ff", true))
	require.NoError(t, c.UpdateEndpointThreat(ctx, "aa:bb:cc:dd:ee:ff", false))

	acct, err := c.LatestSession(ctx, "aa:bb:cc:dd:ee:ff", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "R0001", acct.ID)

	require.NoError(t, c.Disconnect(ctx, acct.ID))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []map[string]map[string]string{
		{"attributes": {"Threat Severity": "Critical", "Threat Status": "In Progress"}},
		{"attributes": {"Threat Severity": "Low", "Threat Status": "Resolved"}},
	}, srv.patches)
	assert.Contains(t, srv.query, "sort=-acctstarttime")
	assert.Contains(t, srv.query, "limit=1")
	assert.Contains(t, srv.calls, "POST /api/session/R0001/disconnect")
}

func TestClientNoSession(t *testing.T) {
	srv := newCPPM(t)
	srv.mu.Lock()
	srv.sessions = nil
	srv.mu.Unlock()
	c := NewClient(openSession(t, srv), true)

	_, err := c.LatestSession(context.Background(), "aa:bb:cc:dd:ee:ff", "10.0.0.2")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClientRequestError(t *testing.T) {
	srv := newCPPM(t)
	srv.mu.Lock()
	srv.failPath = "/api/endpoint/mac-address/aa:bb:cc:dd:ee:ff"
	srv.mu.Unlock()
	c := NewClient(openSession(t, srv), true)

	err := c.UpdateEndpointThreat(context.Background(), "aa:bb:cc:dd:ee:ff", true)
	var re *auth.RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusForbidden, re.StatusCode)
	assert.Contains(t, re.Body, "forbidden")
}

func TestCoAHandlerWithMessageCredentials(t *testing.T) {
	srv := newCPPM(t)
	h := NewCoAHandler(nil, true)

	msg := `{"host":"` + srv.host() + `","user":"id","pass":"secret","endpoint_mac":"aa:bb:cc:dd:ee:ff","nas_ip":"10.0.0.2","threat":true}`
	reply, err := h.Handle(context.Background(), "coa", []byte(msg))
	require.NoError(t, err)
	assert.Nil(t, reply)

	assert.Equal(t, []string{
		"POST /api/oauth",
		"PATCH /api/endpoint/mac-address/aa:bb:cc:dd:ee:ff",
		"GET /api/session",
		"POST /api/session/R0001/disconnect",
	}, srv.recorded())
}

func TestCoAHandlerWithSharedSession(t *testing.T) {
	srv := newCPPM(t)
	shared := openSession(t, srv)
	h := NewCoAHandler(shared, true)

	_, err := h.Handle(context.Background(), "coa", []byte(`{"endpoint_mac":"aa:bb:cc:dd:ee:ff","nas_ip":"10.0.0.2","threat":false}`))
	require.NoError(t, err)

	calls := srv.recorded()
	assert.Len(t, calls, 4, "one handshake at open, none per message")
	assert.Equal(t, session.StateLive, shared.State(), "shared session stays open")
}

func TestCoAHandlerMalformed(t *testing.T) {
	testCases := []struct {
		name  string
		msg   string
		field string
	}{
		{name: "missing host", msg: `{"user":"u","pass":"p","endpoint_mac":"m","nas_ip":"n","threat":true}`, field: "host"},
		{name: "missing mac", msg: `{"host":"h","user":"u","pass":"p","nas_ip":"n","threat":true}`, field: "endpoint_mac"},
		{name: "missing threat", msg: `{"host":"h","user":"u","pass":"p","endpoint_mac":"m","nas_ip":"n"}`, field: "threat"},
	}

	h := NewCoAHandler(nil, true)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), "coa", []byte(tc.msg))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := h.Handle(context.Background(), "coa", []byte(`not json`))
	assert.Error(t, err)
}

func TestCoAHandlerPropagatesFailures(t *testing.T) {
	srv := newCPPM(t)
	srv.mu.Lock()
	srv.failPath = "/api/session"
	srv.mu.Unlock()
	h := NewCoAHandler(nil, true)

	msg := `{"host":"` + srv.host() + `","user":"id","pass":"secret","endpoint_mac":"aa:bb:cc:dd:ee:ff","nas_ip":"10.0.0.2","threat":true}`
	_, err := h.Handle(context.Background(), "coa", []byte(msg))
	assert.True(t, auth.IsRequestError(err))
	assert.NotContains(t, srv.recorded(), "POST /api/session/R0001/disconnect")
}
