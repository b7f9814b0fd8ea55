// Package server exposes an authenticated Aruba REST session as a plain HTTP
// reverse proxy, with admin endpoints to inspect and renew the session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	agorahttp "github.com/ArubaIberia/agora/internal/http"
	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/session"
)

// Opener returns the session to proxy for. It is called on first use and
// again after a failure.
type Opener func(ctx context.Context) (*session.Session, error)

// Static returns an Opener for an already open session.
func Static(s *session.Session) Opener {
	return func(context.Context) (*session.Session, error) { return s, nil }
}

// Options configure a Server.
type Options struct {
	// HTTPClient overrides the client built from InsecureSkipVerify.
	HTTPClient         agorahttp.HTTPClient
	InsecureSkipVerify bool
	// RefreshInterval drives periodic renewal for renewable providers.
	RefreshInterval time.Duration
	// OnRefresh runs after every successful renewal, e.g. to persist the
	// newest refresh token.
	OnRefresh func(*session.Session)
}

// Server represents the proxy server with its dependencies
type Server struct {
	httpClient agorahttp.HTTPClient
	open       Opener
	opts       Options
	mux        *http.ServeMux
	log        zerolog.Logger

	mu      sync.Mutex
	session *session.Session
	sched   *session.Scheduler
}

// NewServer creates a new server instance for the sessions returned by open
func NewServer(open Opener, opts Options) *Server {
	client := opts.HTTPClient
	if client == nil {
		client = agorahttp.NewHTTPClient(opts.InsecureSkipVerify)
	}
	s := &Server{
		httpClient: client,
		open:       open,
		opts:       opts,
		mux:        http.NewServeMux(),
		log:        logger.For("server"),
	}
	s.setupRoutes()

	return s
}

// Start opens the session, starts periodic renewal and serves on addr until
// ctx is done. The session is closed on return.
func (s *Server) Start(ctx context.Context, addr string) error {
	if _, err := s.getSession(ctx); err != nil {
		return err
	}
	defer s.Close(context.WithoutCancel(ctx))

	srv := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msgf("Starting proxy server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down proxy server")
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops periodic renewal and closes the session.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	sess, sched := s.session, s.sched
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if sess == nil {
		return nil
	}
	return sess.Close(ctx)
}

// getSession returns the session, opening it and starting its renewal loop
// on first use.
func (s *Server) getSession(ctx context.Context) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}

	sess, err := s.open(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to open session")
		return nil, err
	}
	s.session = sess
	s.startRefreshLoop(sess)
	return sess, nil
}

// startRefreshLoop starts periodic renewal when the provider allows it.
func (s *Server) startRefreshLoop(sess *session.Session) {
	if !sess.Capabilities().Renew {
		s.log.Info().Str("provider", sess.Provider()).Msg("Periodic refresh disabled for this provider")
		return
	}

	renew := func(ctx context.Context) error {
		if err := sess.Refresh(ctx); err != nil {
			return err
		}
		s.refreshed(sess)
		return nil
	}
	s.sched = session.NewScheduler(renew, s.opts.RefreshInterval, session.WithOnError(func(err error) {
		s.log.Warn().Err(err).Msg("Session will be renewed again on the next interval")
	}))
	s.sched.Start(context.Background())
}

func (s *Server) refreshed(sess *session.Session) {
	if s.opts.OnRefresh != nil {
		s.opts.OnRefresh(sess)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/admin/session/refresh", s.adminMiddleware(s.sessionRefreshHandler))
	s.mux.HandleFunc("/admin/session/status", s.adminMiddleware(s.sessionStatusHandler))
	s.mux.HandleFunc("/", s.adminMiddleware(s.proxyHandler))
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// sessionRefreshHandler handles POST /admin/session/refresh
func (s *Server) sessionRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, err := s.getSession(r.Context())
	if err != nil {
		http.Error(w, "Failed to open session: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Failed to refresh session")
		http.Error(w, "Failed to refresh session: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.refreshed(sess)

	w.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"success":      true,
		"message":      "Session refreshed successfully",
		"refreshed_at": sess.RefreshedAt().Format(time.RFC3339),
	}
	json.NewEncoder(w).Encode(response)
}

// sessionStatusHandler handles GET /admin/session/status
func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	sess, sched := s.session, s.sched
	s.mu.Unlock()

	response := map[string]interface{}{
		"state": session.StateUnauthenticated.String(),
	}
	if sess != nil {
		caps := sess.Capabilities()
		response["state"] = sess.State().String()
		response["session_id"] = sess.ID()
		response["provider"] = sess.Provider()
		response["base_url"] = sess.BaseURL()
		response["refreshed_at"] = sess.RefreshedAt().Format(time.RFC3339)
		response["renewable"] = caps.Renew
		response["logout"] = caps.Logout
		response["has_refresh_token"] = sess.RefreshToken() != ""
	}
	if sched != nil {
		response["refresh_interval"] = sched.Interval().String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
