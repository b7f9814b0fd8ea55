// Package session holds one authenticated connection to an Aruba REST API and
// keeps its secret renewed.
//
// A Session is safe for concurrent use. Readers of Headers, Params and
// Snapshot always observe the attachments of a single secret, and at most one
// handshake runs per Session at any time.
package session

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/logger"
)

// ErrClosed is returned by Refresh once the session has been closed.
var ErrClosed = errors.New("session is closed")

// DefaultLogoutTimeout bounds the logout call made by Close.
const DefaultLogoutTimeout = 15 * time.Second

// DefaultHandshakeTimeout bounds a shared refresh handshake.
const DefaultHandshakeTimeout = time.Minute

// State is the lifecycle state of a session's secret.
type State int32

const (
	StateUnauthenticated State = iota
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// snapshot is the immutable result of one handshake.
type snapshot struct {
	secret       string
	headers      map[string]string
	params       map[string]string
	refreshToken string
	refreshedAt  time.Time
}

var emptySnapshot = &snapshot{}

// Option configures a Session.
type Option func(*Session)

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithLogoutTimeout bounds the logout call made by Close.
func WithLogoutTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.logoutTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the handshake run by Refresh.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// Session is an authenticated connection. Its identity never changes: Refresh
// replaces the secret in place, so every holder sees the renewed value.
type Session struct {
	id               string
	auth             auth.Authenticator
	caps             auth.Capabilities
	baseURL          string
	log              zerolog.Logger
	logoutTimeout    time.Duration
	handshakeTimeout time.Duration

	// mu serializes handshakes, logout and access to creds.
	mu    sync.Mutex
	creds auth.Credentials

	state atomic.Int32
	snap  atomic.Pointer[snapshot]
	group singleflight.Group

	closeOnce sync.Once
	closeErr  error
}

// Open performs the handshake and returns a live session. No session is
// returned when the handshake fails.
func Open(ctx context.Context, a auth.Authenticator, creds auth.Credentials, opts ...Option) (*Session, error) {
	s := &Session{
		id:               uuid.NewString(),
		auth:             a,
		caps:             a.Capabilities(),
		baseURL:          a.BaseURL(creds),
		logoutTimeout:    DefaultLogoutTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		creds:            creds,
	}
	s.log = logger.For("session")
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session_id", s.id).Str("provider", a.Provider()).Logger()
	s.snap.Store(emptySnapshot)

	// Nobody else holds s yet, so the handshake runs on the caller's ctx.
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.log.Info().Str("base_url", s.baseURL).Msg("Session opened")
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Provider returns the name of the provider the session is connected to.
func (s *Session) Provider() string { return s.auth.Provider() }

// BaseURL returns the base URL for downstream calls.
func (s *Session) BaseURL() string { return s.baseURL }

// Capabilities returns the capabilities of the provider.
func (s *Session) Capabilities() auth.Capabilities { return s.caps }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Secret returns the live secret.
func (s *Session) Secret() string { return s.snap.Load().secret }

// RefreshToken returns the newest ClearPass refresh token, if any. Persisting
// it is left to the caller.
func (s *Session) RefreshToken() string { return s.snap.Load().refreshToken }

// RefreshedAt returns the time of the last successful handshake.
func (s *Session) RefreshedAt() time.Time { return s.snap.Load().refreshedAt }

// Headers returns extra merged with the authentication headers. Authentication
// headers win on collision. extra is not modified.
func (s *Session) Headers(extra map[string]string) map[string]string {
	return merge(extra, s.snap.Load().headers)
}

// Params is the query/body parameter counterpart of Headers.
func (s *Session) Params(extra map[string]string) map[string]string {
	return merge(extra, s.snap.Load().params)
}

// Snapshot returns the headers and params of the same secret.
func (s *Session) Snapshot() (headers, params map[string]string) {
	snap := s.snap.Load()
	return merge(nil, snap.headers), merge(nil, snap.params)
}

func merge(extra, attach map[string]string) map[string]string {
	out := make(map[string]string, len(extra)+len(attach))
	maps.Copy(out, extra)
	maps.Copy(out, attach)
	return out
}

// Refresh re-runs the handshake with the stored credentials and swaps in the
// new secret. Concurrent calls share a single handshake. On failure the
// previous secret stays in place and the error is returned unchanged.
//
// The shared handshake is detached from every caller's cancellation and
// bounded by the handshake timeout. A caller whose ctx ends stops waiting
// with ctx.Err() while the others still get the result.
func (s *Session) Refresh(ctx context.Context) error {
	ch := s.group.DoChan("refresh", func() (any, error) {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.handshakeTimeout)
		defer cancel()
		return nil, s.refresh(hctx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.log.Debug().Msg("Joined in-flight refresh")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return ErrClosed
	}

	grant, err := s.auth.Authenticate(ctx, s.creds)
	if err != nil {
		s.log.Warn().Err(err).Msg("Handshake failed")
		return err
	}

	if grant.RefreshToken != "" {
		s.creds.RefreshToken = grant.RefreshToken
	}
	s.snap.Store(&snapshot{
		secret:       grant.Secret,
		headers:      maps.Clone(grant.Headers),
		params:       maps.Clone(grant.Params),
		refreshToken: s.creds.RefreshToken,
		refreshedAt:  time.Now(),
	})
	s.state.Store(int32(StateLive))
	s.log.Debug().Msg("Secret renewed")
	return nil
}

// Close releases the session, logging out when the provider keeps
// server-side sessions. It runs once; later calls return the first result.
// An in-flight refresh is allowed to finish first. The logout is not
// cancelled with ctx, only bounded by the logout timeout.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.closeErr
}

func (s *Session) close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := State(s.state.Swap(int32(StateClosed)))
	if prev != StateLive || !s.caps.Logout {
		s.log.Debug().Msg("Session closed")
		return nil
	}
	lo, ok := s.auth.(auth.Logouter)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.logoutTimeout)
	defer cancel()
	if err := lo.Logout(ctx, s.creds, s.Secret()); err != nil {
		s.log.Warn().Err(err).Msg("Logout failed")
		return err
	}
	s.log.Info().Msg("Session closed")
	return nil
}
