package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/session"
)

// Headers that belong to one hop, or that carry the proxy's own credentials,
// are never forwarded upstream.
var strippedRequestHeaders = []string{
	"Authorization",
	"Connection",
	"Cookie",
	"Keep-Alive",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"X-Api-Key",
}

var strippedResponseHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Set-Cookie",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// proxyHandler forwards /{path} to the session base URL with the session
// headers and params attached. A 401 from upstream triggers one refresh and
// one retry.
func (s *Server) proxyHandler(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		l := s.log
		log = &l
	}

	sess, err := s.getSession(r.Context())
	if err != nil {
		http.Error(w, "Failed to open session: "+err.Error(), http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read request body")
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	resp, err := s.forward(r.Context(), sess, r, body)
	if err != nil {
		log.Error().Err(err).Msg("Upstream request failed")
		http.Error(w, "Upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	// Check for 401 Unauthorized and attempt a session refresh
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		log.Info().Str("session_id", sess.ID()).Msg("Upstream rejected the session, refreshing...")

		if err := sess.Refresh(r.Context()); err != nil {
			log.Error().Err(err).Msg("Failed to refresh session")
			http.Error(w, "Failed to refresh session: "+err.Error(), http.StatusBadGateway)
			return
		}
		s.refreshed(sess)

		resp, err = s.forward(r.Context(), sess, r, body)
		if err != nil {
			log.Error().Err(err).Msg("Upstream request failed after refresh")
			http.Error(w, "Upstream request failed: "+err.Error(), http.StatusBadGateway)
			return
		}
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	for _, key := range strippedResponseHeaders {
		w.Header().Del(key)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Error().Err(err).Msg("Failed to copy upstream response")
	}
}

// forward builds and sends the upstream request from one session snapshot.
func (s *Server) forward(ctx context.Context, sess *session.Session, r *http.Request, body []byte) (*http.Response, error) {
	headers, params := sess.Snapshot()

	query := r.URL.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	target := upstreamURL(sess.BaseURL(), r.URL.Path, query)

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header = r.Header.Clone()
	for _, key := range strippedRequestHeaders {
		req.Header.Del(key)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return s.httpClient.Do(req)
}

func upstreamURL(base, path string, query url.Values) string {
	target := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}
