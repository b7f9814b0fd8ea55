package session

import (
	"context"

	"github.com/ArubaIberia/agora/internal/auth"
)

// With opens a session, runs fn with it and closes it on every exit path,
// panics included. When fn fails its error is returned and a logout error is
// only logged. When fn succeeds the logout error is returned.
func With(ctx context.Context, a auth.Authenticator, creds auth.Credentials, fn func(context.Context, *Session) error, opts ...Option) (err error) {
	s, err := Open(ctx, a, creds, opts...)
	if err != nil {
		return err
	}

	defer func() {
		r := recover()
		closeErr := s.Close(ctx)
		switch {
		case r != nil:
			if closeErr != nil {
				s.log.Error().Err(closeErr).Msg("Logout failed while unwinding panic")
			}
			panic(r)
		case err != nil:
			if closeErr != nil {
				s.log.Error().Err(closeErr).Msg("Logout failed after error")
			}
		default:
			err = closeErr
		}
	}()

	return fn(ctx, s)
}
