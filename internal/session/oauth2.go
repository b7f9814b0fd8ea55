package session

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoBearer is returned by a session TokenSource when the provider does not
// authenticate with a bearer token.
var ErrNoBearer = errors.New("session has no bearer token")

type tokenSource struct {
	s *Session
}

// TokenSource exposes a bearer session to golang.org/x/oauth2 transports. The
// live secret is read on every call, so refreshes are picked up immediately.
func TokenSource(s *Session) oauth2.TokenSource {
	return tokenSource{s: s}
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	if t.s.State() == StateClosed {
		return nil, ErrClosed
	}
	header := t.s.snap.Load().headers["Authorization"]
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrNoBearer
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
