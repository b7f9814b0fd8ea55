// Package auth implements the login handshakes of the Aruba REST APIs:
// ClearPass OAuth, Mobility Controller / Mobility Master UIDARUBA sessions and
// ArubaOS-Switch cookie sessions.
package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/credentials"
	agorahttp "github.com/ArubaIberia/agora/internal/http"
	"github.com/ArubaIberia/agora/internal/logger"
)

// Credentials is an alias so callers of this package need not import the
// store package for the common case.
type Credentials = credentials.Credentials

// Capabilities describes what a provider supports beyond the login handshake.
type Capabilities struct {
	// Logout is set when the provider keeps a server-side session that
	// must be released.
	Logout bool
	// Renew is set when re-running the handshake on a timer is safe.
	Renew bool
}

// Grant is the outcome of a successful handshake.
type Grant struct {
	// Secret is the bearer token, session cookie or UIDARUBA.
	Secret string
	// Headers and Params must be attached to every authenticated request.
	Headers map[string]string
	Params  map[string]string
	// RefreshToken is the newest ClearPass refresh token, when one was used or minted.
	RefreshToken string
}

// Authenticator performs the login handshake of one provider.
type Authenticator interface {
	// Provider returns the provider name, also its section in the store.
	Provider() string
	Capabilities() Capabilities
	// BaseURL returns the base URL for calls made with the resulting secret.
	BaseURL(creds Credentials) string
	// Authenticate logs in. Failures are *AuthError values.
	Authenticate(ctx context.Context, creds Credentials) (*Grant, error)
}

// Logouter is implemented by providers whose sessions are released server-side.
type Logouter interface {
	Logout(ctx context.Context, creds Credentials, secret string) error
}

// Options configure every variant.
type Options struct {
	// HTTPClient overrides the client built from InsecureSkipVerify.
	HTTPClient agorahttp.HTTPClient
	// InsecureSkipVerify disables certificate verification on every call
	// made by the authenticator.
	InsecureSkipVerify bool
	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

func (o Options) client() agorahttp.HTTPClient {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return agorahttp.NewHTTPClient(o.InsecureSkipVerify)
}

func (o Options) logger(provider string) zerolog.Logger {
	if o.Logger != nil {
		return o.Logger.With().Str("provider", provider).Logger()
	}
	return logger.For("auth").With().Str("provider", provider).Logger()
}

// Providers lists the names accepted by New.
var Providers = []string{credentials.SectionClearPass, credentials.SectionController, credentials.SectionSwitch}

// New selects an authenticator by provider name.
func New(provider string, opts Options) (Authenticator, error) {
	switch provider {
	case credentials.SectionClearPass:
		return NewClearPass(opts), nil
	case credentials.SectionController:
		return NewController(opts), nil
	case credentials.SectionSwitch:
		return NewSwitch(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected one of %v)", provider, Providers)
	}
}

// Resolve merges the caller-supplied credentials over the provider's stored
// defaults. Required fields are checked by Authenticate.
func Resolve(store credentials.Store, provider string, given Credentials) (Credentials, error) {
	if store == nil {
		return given, nil
	}
	defaults, err := store.Defaults(provider)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read %s defaults from %s: %w", provider, store.Name(), err)
	}
	return credentials.Merge(given, defaults), nil
}

// requireFields returns a ValidationError for the first empty field.
func requireFields(provider string, fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return &ValidationError{Provider: provider, Field: f[0]}
		}
	}
	return nil
}
