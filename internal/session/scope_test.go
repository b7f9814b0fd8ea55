package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArubaIberia/agora/internal/auth"
)

func TestWith(t *testing.T) {
	bodyErr := errors.New("body failed")
	logoutErr := errors.New("logout failed")

	testCases := []struct {
		name      string
		body      error
		logoutErr error
		want      error
	}{
		{name: "success", want: nil},
		{name: "body error", body: bodyErr, want: bodyErr},
		{name: "logout error", logoutErr: logoutErr, want: logoutErr},
		{name: "body error wins over logout error", body: bodyErr, logoutErr: logoutErr, want: bodyErr},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := &stubAuth{caps: auth.Capabilities{Logout: true}, logoutErr: tc.logoutErr}

			var seen *Session
			err := With(context.Background(), a, auth.Credentials{}, func(ctx context.Context, s *Session) error {
				seen = s
				assert.Equal(t, StateLive, s.State())
				return tc.body
			})

			assert.Equal(t, tc.want, err)
			require.NotNil(t, seen)
			assert.Equal(t, StateClosed, seen.State())
			assert.Equal(t, int32(1), a.logouts.Load())
		})
	}
}

func TestWithClosesOnPanic(t *testing.T) {
	a := &stubAuth{caps: auth.Capabilities{Logout: true}}

	assert.PanicsWithValue(t, "boom", func() {
		_ = With(context.Background(), a, auth.Credentials{}, func(ctx context.Context, s *Session) error {
			panic("boom")
		})
	})
	assert.Equal(t, int32(1), a.logouts.Load())
}

func TestWithOpenFailure(t *testing.T) {
	a := &stubAuth{caps: auth.Capabilities{Logout: true}}
	a.failWith(&auth.ValidationError{Provider: "stub", Field: "username"})

	called := false
	err := With(context.Background(), a, auth.Credentials{}, func(ctx context.Context, s *Session) error {
		called = true
		return nil
	})

	assert.True(t, auth.IsValidationError(err))
	assert.False(t, called)
	assert.Zero(t, a.logouts.Load())
}
